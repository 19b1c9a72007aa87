package match

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/quizrace/internal/game/player"
	"github.com/cory-johannsen/quizrace/internal/game/player/playertest"
	"github.com/cory-johannsen/quizrace/internal/game/room"
)

func testQueueConfig() Config {
	return Config{
		Timeout:   time.Second,
		ScoreBand: 200,
	}
}

func newTestQueue(cfg Config, scores ScoreProvider) (*Queue, *room.Registry) {
	rooms := room.NewRegistry()
	return NewQueue(cfg, rooms, scores, zap.NewNop()), rooms
}

func newPlayer(i, totalScore int) (*player.Handle, *playertest.RecordingSender) {
	sender := playertest.NewRecordingSender()
	h := player.NewHandle(fmt.Sprintf("uid-%d", i), fmt.Sprintf("player-%d", i), totalScore, sender)
	return h, sender
}

// mapScores is a ScoreProvider over a fixed map, with optional fault injection.
type mapScores struct {
	scores map[string]int
	err    error
}

func (m *mapScores) TotalScore(_ context.Context, uid string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.scores[uid], nil
}

func TestFindMatchPairsWithinBand(t *testing.T) {
	q, rooms := newTestQueue(testQueueConfig(), nil)
	ctx := context.Background()

	host, hostSender := newPlayer(1, 100)
	guest, guestSender := newPlayer(2, 250)

	require.NoError(t, q.FindMatch(ctx, host, "math", "easy"))
	require.Equal(t, 1, q.PendingCount())

	require.NoError(t, q.FindMatch(ctx, guest, "math", "easy"))
	assert.Equal(t, 0, q.PendingCount())

	require.Equal(t, 1, hostSender.MatchFoundCount())
	require.Equal(t, 1, guestSender.MatchFoundCount())
	assert.Equal(t, guest.UID(), hostSender.MatchFounds[0].Opponent.UID)
	assert.Equal(t, host.UID(), guestSender.MatchFounds[0].Opponent.UID)

	roomID := hostSender.MatchFounds[0].RoomID
	assert.Equal(t, roomID, guestSender.MatchFounds[0].RoomID)

	snap, ok := rooms.GetRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, host.UID(), snap.HostUID, "queued player becomes host")
	assert.Equal(t, 2, snap.MaxPlayers)
	assert.Equal(t, "math", snap.Subject)
	assert.Len(t, snap.Members, 2)
}

func TestFindMatchRespectsScoreBand(t *testing.T) {
	q, rooms := newTestQueue(testQueueConfig(), nil)
	ctx := context.Background()

	low, lowSender := newPlayer(1, 0)
	high, highSender := newPlayer(2, 500)

	require.NoError(t, q.FindMatch(ctx, low, "math", "easy"))
	require.NoError(t, q.FindMatch(ctx, high, "math", "easy"))

	assert.Equal(t, 2, q.PendingCount())
	assert.Equal(t, 0, lowSender.MatchFoundCount())
	assert.Equal(t, 0, highSender.MatchFoundCount())
	assert.Equal(t, 0, rooms.RoomCount())
}

func TestFindMatchBucketsBySubjectAndDifficulty(t *testing.T) {
	q, _ := newTestQueue(testQueueConfig(), nil)
	ctx := context.Background()

	a, aSender := newPlayer(1, 0)
	b, bSender := newPlayer(2, 0)
	c, cSender := newPlayer(3, 0)

	require.NoError(t, q.FindMatch(ctx, a, "math", "easy"))
	require.NoError(t, q.FindMatch(ctx, b, "english", "easy"))
	require.NoError(t, q.FindMatch(ctx, c, "math", "hard"))

	assert.Equal(t, 3, q.PendingCount())
	assert.Equal(t, 0, aSender.MatchFoundCount())
	assert.Equal(t, 0, bSender.MatchFoundCount())
	assert.Equal(t, 0, cSender.MatchFoundCount())
}

func TestOldestCompatibleRequestWins(t *testing.T) {
	q, _ := newTestQueue(testQueueConfig(), nil)
	ctx := context.Background()

	first, firstSender := newPlayer(1, 0)
	second, secondSender := newPlayer(2, 0)
	third, _ := newPlayer(3, 0)

	require.NoError(t, q.FindMatch(ctx, first, "math", "easy"))
	require.NoError(t, q.FindMatch(ctx, second, "math", "easy"))
	require.Equal(t, 1, firstSender.MatchFoundCount())

	require.NoError(t, q.FindMatch(ctx, third, "math", "easy"))
	assert.Equal(t, 0, q.PendingCount())
	assert.Equal(t, 1, secondSender.MatchFoundCount())
}

func TestDuplicateRequestRejected(t *testing.T) {
	q, _ := newTestQueue(testQueueConfig(), nil)
	ctx := context.Background()

	h, _ := newPlayer(1, 0)
	require.NoError(t, q.FindMatch(ctx, h, "math", "easy"))

	err := q.FindMatch(ctx, h, "math", "easy")
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Equal(t, 1, q.PendingCount())
}

func TestCancelFindMatch(t *testing.T) {
	cfg := testQueueConfig()
	cfg.Timeout = 30 * time.Millisecond
	q, _ := newTestQueue(cfg, nil)
	ctx := context.Background()

	h, sender := newPlayer(1, 0)
	require.NoError(t, q.FindMatch(ctx, h, "math", "easy"))

	require.NoError(t, q.CancelFindMatch(h.UID()))
	assert.Equal(t, 1, sender.CancelConfirms)
	assert.Equal(t, 0, q.PendingCount())

	assert.ErrorIs(t, q.CancelFindMatch(h.UID()), ErrNotQueued)

	// The cancelled request's timeout never fires a failure.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, sender.MatchFailedCount())
}

func TestRequestTimesOut(t *testing.T) {
	cfg := testQueueConfig()
	cfg.Timeout = 30 * time.Millisecond
	q, _ := newTestQueue(cfg, nil)
	ctx := context.Background()

	h, sender := newPlayer(1, 0)
	require.NoError(t, q.FindMatch(ctx, h, "math", "easy"))

	require.Eventually(t, func() bool {
		return sender.MatchFailedCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, sender.MatchFaileds[0].Timeout)
	assert.Equal(t, FailReasonTimeout, sender.MatchFaileds[0].Reason)
	assert.Equal(t, 0, q.PendingCount())

	// A timed-out player can queue again.
	require.NoError(t, q.FindMatch(ctx, h, "math", "easy"))
	assert.Equal(t, 1, q.PendingCount())
}

func TestScanSkipsAndExpiresOverdueCandidate(t *testing.T) {
	q, rooms := newTestQueue(testQueueConfig(), nil)
	ctx := context.Background()

	stale, staleSender := newPlayer(1, 0)
	require.NoError(t, q.FindMatch(ctx, stale, "math", "easy"))

	// The stale request's wait window has elapsed but its timer has not
	// fired yet. A compatible arrival must not pair with it.
	q.now = func() time.Time { return time.Now().Add(2 * time.Second) }

	fresh, freshSender := newPlayer(2, 0)
	require.NoError(t, q.FindMatch(ctx, fresh, "math", "easy"))

	assert.Equal(t, 0, staleSender.MatchFoundCount())
	assert.Equal(t, 0, freshSender.MatchFoundCount())
	assert.Equal(t, 0, rooms.RoomCount())

	// The stale request is dropped with a timeout failure; the new arrival
	// stays queued.
	require.Equal(t, 1, staleSender.MatchFailedCount())
	assert.True(t, staleSender.MatchFaileds[0].Timeout)
	assert.Equal(t, FailReasonTimeout, staleSender.MatchFaileds[0].Reason)
	assert.Equal(t, 1, q.PendingCount())

	// The stopped timer fires no second failure.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, staleSender.MatchFailedCount())
}

func TestSweepExpiresOverdueRequests(t *testing.T) {
	q, _ := newTestQueue(testQueueConfig(), nil)
	ctx := context.Background()

	h, sender := newPlayer(1, 0)
	require.NoError(t, q.FindMatch(ctx, h, "math", "easy"))

	// Nothing is overdue yet.
	q.Sweep()
	assert.Equal(t, 1, q.PendingCount())
	assert.Equal(t, 0, sender.MatchFailedCount())

	q.now = func() time.Time { return time.Now().Add(2 * time.Second) }
	q.Sweep()
	assert.Equal(t, 0, q.PendingCount())
	require.Equal(t, 1, sender.MatchFailedCount())
	assert.True(t, sender.MatchFaileds[0].Timeout)

	// The stopped timer fires no second failure.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sender.MatchFailedCount())
}

func TestHandleDisconnectDropsRequestSilently(t *testing.T) {
	q, _ := newTestQueue(testQueueConfig(), nil)
	ctx := context.Background()

	h, sender := newPlayer(1, 0)
	require.NoError(t, q.FindMatch(ctx, h, "math", "easy"))

	q.HandleDisconnect(h.UID())
	assert.Equal(t, 0, q.PendingCount())
	assert.Equal(t, 0, sender.MatchFailedCount())
	assert.Equal(t, 0, sender.CancelConfirms)

	q.HandleDisconnect(h.UID())
}

func TestScoreProviderOverridesHandleScore(t *testing.T) {
	provider := &mapScores{scores: map[string]int{
		"uid-1": 0,
		"uid-2": 1000,
	}}
	q, _ := newTestQueue(testQueueConfig(), provider)
	ctx := context.Background()

	// Handle scores are within the band but the provider says otherwise.
	a, aSender := newPlayer(1, 100)
	b, _ := newPlayer(2, 100)

	require.NoError(t, q.FindMatch(ctx, a, "math", "easy"))
	require.NoError(t, q.FindMatch(ctx, b, "math", "easy"))

	assert.Equal(t, 2, q.PendingCount())
	assert.Equal(t, 0, aSender.MatchFoundCount())
}

func TestScoreProviderFailureFallsBackToHandle(t *testing.T) {
	provider := &mapScores{err: errors.New("cache down")}
	q, _ := newTestQueue(testQueueConfig(), provider)
	ctx := context.Background()

	a, aSender := newPlayer(1, 100)
	b, bSender := newPlayer(2, 150)

	require.NoError(t, q.FindMatch(ctx, a, "math", "easy"))
	require.NoError(t, q.FindMatch(ctx, b, "math", "easy"))

	assert.Equal(t, 1, aSender.MatchFoundCount())
	assert.Equal(t, 1, bSender.MatchFoundCount())
}

// failingRooms rejects every room operation.
type failingRooms struct{}

func (failingRooms) CreateRoom(*player.Handle, string, string, string, int) (string, error) {
	return "", errors.New("registry unavailable")
}

func (failingRooms) JoinRoom(*player.Handle, string) error {
	return errors.New("registry unavailable")
}

func (failingRooms) LeaveRoom(string, string) error {
	return errors.New("registry unavailable")
}

func TestRoomSetupFailureNotifiesBothPlayers(t *testing.T) {
	q := NewQueue(testQueueConfig(), failingRooms{}, nil, zap.NewNop())
	ctx := context.Background()

	a, aSender := newPlayer(1, 0)
	b, bSender := newPlayer(2, 0)

	require.NoError(t, q.FindMatch(ctx, a, "math", "easy"))
	require.NoError(t, q.FindMatch(ctx, b, "math", "easy"))

	require.Equal(t, 1, aSender.MatchFailedCount())
	require.Equal(t, 1, bSender.MatchFailedCount())
	assert.False(t, aSender.MatchFaileds[0].Timeout)
	assert.Equal(t, FailReasonRoom, aSender.MatchFaileds[0].Reason)
	assert.Equal(t, 0, q.PendingCount())
}
