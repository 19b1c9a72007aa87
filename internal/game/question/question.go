// Package question defines the quiz question model and the loading contract
// implemented by the storage layer.
package question

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// OptionCount is the fixed number of answer options per question.
const OptionCount = 4

// Question is a single quiz question. Immutable once loaded: every
// participant of a session reads the same shuffled sequence.
type Question struct {
	// ID is the database identifier.
	ID int64
	// Subject is the question category (e.g. "math", "english").
	Subject string
	// Difficulty is the difficulty label (e.g. "easy", "hard").
	Difficulty string
	// Prompt is the question text shown to players.
	Prompt string
	// Options are the four answer choices in display order.
	Options [OptionCount]string
	// Correct is the index into Options of the right answer.
	Correct int
	// Weight multiplies the score awarded for this question.
	Weight int
	// TimeLimit is how long a player has to answer.
	TimeLimit time.Duration
}

// Validate checks the question invariants.
//
// Postcondition: Returns nil iff the question is well-formed.
func (q Question) Validate() error {
	if q.Prompt == "" {
		return fmt.Errorf("question %d: prompt must not be empty", q.ID)
	}
	for i, opt := range q.Options {
		if opt == "" {
			return fmt.Errorf("question %d: option %d must not be empty", q.ID, i)
		}
	}
	if q.Correct < 0 || q.Correct >= OptionCount {
		return fmt.Errorf("question %d: correct index %d out of range", q.ID, q.Correct)
	}
	if q.Weight < 1 {
		return fmt.Errorf("question %d: weight must be >= 1, got %d", q.ID, q.Weight)
	}
	if q.TimeLimit <= 0 {
		return fmt.Errorf("question %d: time limit must be > 0", q.ID)
	}
	return nil
}

// View is the player-facing projection of a question. The correct option is
// withheld until the answer result is broadcast.
type View struct {
	ID        int64
	Prompt    string
	Options   [OptionCount]string
	Weight    int
	TimeLimit time.Duration
}

// View returns the player-facing projection of q.
func (q Question) View() View {
	return View{
		ID:        q.ID,
		Prompt:    q.Prompt,
		Options:   q.Options,
		Weight:    q.Weight,
		TimeLimit: q.TimeLimit,
	}
}

// Shuffle returns a new slice with the questions in random order.
// The input is not modified.
func Shuffle(qs []Question, rng *rand.Rand) []Question {
	out := make([]Question, len(qs))
	copy(out, qs)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Source loads questions for a subject and difficulty. Implementations may
// under-deliver; an empty result triggers a relaxed-difficulty retry in the
// orchestration layer. Difficulty "" means any difficulty.
type Source interface {
	LoadQuestions(ctx context.Context, subject, difficulty string, count int) ([]Question, error)
}
