// Package match pairs players of similar skill into two-player rooms.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/quizrace/internal/game/clock"
	"github.com/cory-johannsen/quizrace/internal/game/player"
)

// ErrAlreadyQueued is returned when the player already has a pending request.
var ErrAlreadyQueued = errors.New("player already queued for matchmaking")

// ErrNotQueued is returned when the player has no pending request to cancel.
var ErrNotQueued = errors.New("player not queued for matchmaking")

// FailReasonTimeout is sent when no opponent appeared within the wait window.
const FailReasonTimeout = "no opponent found"

// FailReasonRoom is sent when pairing succeeded but room setup failed.
const FailReasonRoom = "could not set up a room"

// ScoreProvider resolves a player's cumulative score for band matching.
// Implementations may be backed by a cache; errors fall back to the score
// carried on the player handle.
type ScoreProvider interface {
	TotalScore(ctx context.Context, uid string) (int, error)
}

// Rooms is the slice of the room registry the queue needs to pair players.
type Rooms interface {
	CreateRoom(host *player.Handle, name, subject, difficulty string, maxPlayers int) (string, error)
	JoinRoom(h *player.Handle, roomID string) error
	LeaveRoom(uid, roomID string) error
}

// Config holds the matchmaking knobs.
type Config struct {
	// Timeout is how long a request waits before failing.
	Timeout time.Duration
	// ScoreBand is the maximum cumulative-score gap between opponents.
	ScoreBand int
}

type bucketKey struct {
	subject    string
	difficulty string
}

type request struct {
	handle     *player.Handle
	subject    string
	difficulty string
	score      int
	enqueued   time.Time
	timer      *clock.GameTimer
}

// Queue holds pending match requests bucketed by subject and difficulty.
// Within a bucket the oldest compatible request wins, so nobody starves
// while compatible opponents keep arriving. All methods are safe for
// concurrent use.
type Queue struct {
	cfg    Config
	rooms  Rooms
	scores ScoreProvider
	logger *zap.Logger

	mu      sync.Mutex
	buckets map[bucketKey][]*request
	pending map[string]*request // uid -> request
	now     func() time.Time
}

// NewQueue creates a Queue. scores may be nil; the handle score is used then.
func NewQueue(cfg Config, rooms Rooms, scores ScoreProvider, logger *zap.Logger) *Queue {
	return &Queue{
		cfg:     cfg,
		rooms:   rooms,
		scores:  scores,
		logger:  logger,
		buckets: make(map[bucketKey][]*request),
		pending: make(map[string]*request),
		now:     time.Now,
	}
}

// FindMatch pairs h with the oldest queued player of the same subject and
// difficulty whose cumulative score is within the configured band. If no
// compatible opponent is waiting, h is queued; the request expires after the
// configured timeout with a match-failed notification.
//
// Postcondition: On a pairing both players receive a match-found
// notification for the same two-player room, the queued opponent as host.
func (q *Queue) FindMatch(ctx context.Context, h *player.Handle, subject, difficulty string) error {
	score := q.resolveScore(ctx, h)
	key := bucketKey{subject: subject, difficulty: difficulty}

	q.mu.Lock()
	if _, exists := q.pending[h.UID()]; exists {
		q.mu.Unlock()
		return ErrAlreadyQueued
	}
	opponent, expired := q.takeCompatibleLocked(key, score)
	if opponent == nil {
		req := &request{
			handle:     h,
			subject:    subject,
			difficulty: difficulty,
			score:      score,
			enqueued:   q.now(),
		}
		uid := h.UID()
		req.timer = clock.NewGameTimer(q.cfg.Timeout, func() {
			q.expire(uid)
		})
		q.buckets[key] = append(q.buckets[key], req)
		q.pending[uid] = req
		q.mu.Unlock()

		q.failExpired(expired)
		q.logger.Debug("match request queued",
			zap.String("uid", uid),
			zap.String("subject", subject),
			zap.String("difficulty", difficulty),
			zap.Int("score", score),
		)
		return nil
	}
	q.mu.Unlock()

	q.failExpired(expired)
	q.pair(opponent, h, subject, difficulty)
	return nil
}

// CancelFindMatch withdraws the player's pending request.
//
// Postcondition: Returns nil and confirms the cancellation, or ErrNotQueued
// if no request was pending.
func (q *Queue) CancelFindMatch(uid string) error {
	q.mu.Lock()
	req, ok := q.pending[uid]
	if !ok {
		q.mu.Unlock()
		return ErrNotQueued
	}
	q.removeLocked(req)
	q.mu.Unlock()

	req.timer.Stop()
	req.handle.Sender().SendMatchCancelled()
	return nil
}

// HandleDisconnect drops the player's pending request, if any, without a
// notification.
func (q *Queue) HandleDisconnect(uid string) {
	q.mu.Lock()
	req, ok := q.pending[uid]
	if ok {
		q.removeLocked(req)
	}
	q.mu.Unlock()
	if ok {
		req.timer.Stop()
	}
}

// Sweep expires requests whose wait window elapsed but whose timer has not
// fired yet. Registered on a periodic tick as a backstop; the per-request
// timer remains the primary expiry path.
func (q *Queue) Sweep() {
	cutoff := q.now().Add(-q.cfg.Timeout)
	q.mu.Lock()
	var stale []*request
	for _, req := range q.pending {
		if req.enqueued.Before(cutoff) {
			stale = append(stale, req)
		}
	}
	for _, req := range stale {
		q.removeLocked(req)
	}
	q.mu.Unlock()

	for _, req := range stale {
		req.timer.Stop()
		req.handle.Sender().SendMatchFailed(FailReasonTimeout, true)
	}
}

// PendingCount returns the number of queued requests.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// resolveScore reads the player's cumulative score from the provider,
// falling back to the score carried on the handle.
func (q *Queue) resolveScore(ctx context.Context, h *player.Handle) int {
	if q.scores == nil {
		return h.TotalScore()
	}
	score, err := q.scores.TotalScore(ctx, h.UID())
	if err != nil {
		q.logger.Warn("score lookup failed, using handle score",
			zap.String("uid", h.UID()),
			zap.Error(err),
		)
		return h.TotalScore()
	}
	return score
}

// takeCompatibleLocked removes and returns the oldest non-expired queued
// request in key's bucket within the score band, or nil. Requests whose wait
// window already elapsed are removed during the scan and returned for failure
// notification; their timers cannot be trusted to have fired yet. Caller must
// hold the queue mutex.
func (q *Queue) takeCompatibleLocked(key bucketKey, score int) (*request, []*request) {
	cutoff := q.now().Add(-q.cfg.Timeout)
	var match *request
	var expired []*request
	for _, req := range q.buckets[key] {
		if !req.enqueued.After(cutoff) {
			expired = append(expired, req)
			continue
		}
		gap := req.score - score
		if gap < 0 {
			gap = -gap
		}
		if gap <= q.cfg.ScoreBand {
			match = req
			break
		}
	}
	for _, req := range expired {
		q.removeLocked(req)
	}
	if match != nil {
		q.removeLocked(match)
	}
	return match, expired
}

// failExpired stops the timers of requests collected during a scan and sends
// each a timeout failure. Runs without the queue mutex.
func (q *Queue) failExpired(expired []*request) {
	for _, req := range expired {
		req.timer.Stop()
		q.logger.Debug("stale match request dropped during scan",
			zap.String("uid", req.handle.UID()),
			zap.Duration("waited", q.now().Sub(req.enqueued)),
		)
		req.handle.Sender().SendMatchFailed(FailReasonTimeout, true)
	}
}

// pair sets up a two-player room with the queued opponent as host and
// notifies both sides.
func (q *Queue) pair(opponent *request, h *player.Handle, subject, difficulty string) {
	opponent.timer.Stop()

	name := fmt.Sprintf("quick match: %s", subject)
	roomID, err := q.rooms.CreateRoom(opponent.handle, name, subject, difficulty, 2)
	if err != nil {
		q.logger.Error("match room creation failed",
			zap.String("host", opponent.handle.UID()),
			zap.Error(err),
		)
		opponent.handle.Sender().SendMatchFailed(FailReasonRoom, false)
		h.Sender().SendMatchFailed(FailReasonRoom, false)
		return
	}
	if err := q.rooms.JoinRoom(h, roomID); err != nil {
		q.logger.Error("match room join failed",
			zap.String("room", roomID),
			zap.String("uid", h.UID()),
			zap.Error(err),
		)
		if leaveErr := q.rooms.LeaveRoom(opponent.handle.UID(), roomID); leaveErr != nil {
			q.logger.Warn("match room rollback failed",
				zap.String("room", roomID),
				zap.Error(leaveErr),
			)
		}
		opponent.handle.Sender().SendMatchFailed(FailReasonRoom, false)
		h.Sender().SendMatchFailed(FailReasonRoom, false)
		return
	}

	q.logger.Info("match found",
		zap.String("room", roomID),
		zap.String("host", opponent.handle.UID()),
		zap.String("guest", h.UID()),
		zap.String("subject", subject),
		zap.String("difficulty", difficulty),
	)
	opponent.handle.Sender().SendMatchFound(roomID, h.Profile())
	h.Sender().SendMatchFound(roomID, opponent.handle.Profile())
}

// expire fails the player's request after the wait window. A request already
// paired or cancelled is left alone.
func (q *Queue) expire(uid string) {
	q.mu.Lock()
	req, ok := q.pending[uid]
	if ok {
		q.removeLocked(req)
	}
	q.mu.Unlock()
	if !ok {
		return
	}

	q.logger.Debug("match request timed out",
		zap.String("uid", uid),
		zap.Duration("waited", q.now().Sub(req.enqueued)),
	)
	req.handle.Sender().SendMatchFailed(FailReasonTimeout, true)
}

// removeLocked drops req from its bucket and the pending index. Caller must
// hold the queue mutex.
func (q *Queue) removeLocked(req *request) {
	key := bucketKey{subject: req.subject, difficulty: req.difficulty}
	bucket := q.buckets[key]
	for i, other := range bucket {
		if other == req {
			q.buckets[key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(q.buckets[key]) == 0 {
		delete(q.buckets, key)
	}
	delete(q.pending, req.handle.UID())
}
