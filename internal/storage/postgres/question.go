package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/quizrace/internal/game/question"
)

// ErrQuestionNotFound is returned when a question lookup yields no results.
var ErrQuestionNotFound = errors.New("question not found")

// QuestionRepository provides question persistence operations. It implements
// question.Source.
type QuestionRepository struct {
	db *pgxpool.Pool
}

// NewQuestionRepository creates a QuestionRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewQuestionRepository(db *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// LoadQuestions returns up to count random questions for the subject.
// Difficulty "" matches any difficulty. Fewer rows than requested is not an
// error; the caller decides whether the set is usable.
//
// Postcondition: Every returned question has four options and a valid
// correct index.
func (r *QuestionRepository) LoadQuestions(ctx context.Context, subject, difficulty string, count int) ([]question.Question, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, subject, difficulty, prompt,
		        option_a, option_b, option_c, option_d,
		        correct_option, weight, time_limit_ms
		 FROM questions
		 WHERE subject = $1 AND ($2 = '' OR difficulty = $2)
		 ORDER BY random()
		 LIMIT $3`,
		subject, difficulty, count,
	)
	if err != nil {
		return nil, fmt.Errorf("querying questions: %w", err)
	}
	defer rows.Close()

	var out []question.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading questions: %w", err)
	}
	return out, nil
}

// Insert stores a question and returns its assigned id.
//
// Precondition: q must pass Validate.
func (r *QuestionRepository) Insert(ctx context.Context, q question.Question) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO questions
		   (subject, difficulty, prompt,
		    option_a, option_b, option_c, option_d,
		    correct_option, weight, time_limit_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		q.Subject, q.Difficulty, q.Prompt,
		q.Options[0], q.Options[1], q.Options[2], q.Options[3],
		q.Correct, q.Weight, q.TimeLimit.Milliseconds(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting question: %w", err)
	}
	return id, nil
}

// CountBySubject returns how many questions exist for the subject across
// all difficulties.
func (r *QuestionRepository) CountBySubject(ctx context.Context, subject string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM questions WHERE subject = $1`, subject,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting questions: %w", err)
	}
	return n, nil
}

func scanQuestion(scan func(dest ...any) error) (question.Question, error) {
	var (
		q           question.Question
		timeLimitMS int64
	)
	err := scan(
		&q.ID, &q.Subject, &q.Difficulty, &q.Prompt,
		&q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3],
		&q.Correct, &q.Weight, &timeLimitMS,
	)
	if err != nil {
		return question.Question{}, fmt.Errorf("scanning question: %w", err)
	}
	q.TimeLimit = time.Duration(timeLimitMS) * time.Millisecond
	return q, nil
}
