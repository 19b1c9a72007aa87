// Package redisstore caches cumulative player scores in Redis for the
// matchmaking score-band check.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/quizrace/internal/config"
)

const scoreKeyPrefix = "quizrace:score:"

// LoaderFunc resolves a player's cumulative score from the durable store on
// a cache miss. A player with no history resolves to zero.
type LoaderFunc func(ctx context.Context, uid string) (int, error)

// ScoreCache is a read-through cumulative-score cache. TotalScore serves
// matchmaking; AddScore folds in each finished game. The cache is advisory:
// callers fall back to other score sources on error.
type ScoreCache struct {
	client *redis.Client
	loader LoaderFunc
}

// NewScoreCache creates a ScoreCache over a Redis client. loader may be nil;
// misses then resolve to zero.
func NewScoreCache(client *redis.Client, loader LoaderFunc) *ScoreCache {
	return &ScoreCache{client: client, loader: loader}
}

// NewClient creates a Redis client from the given configuration and verifies
// connectivity.
//
// Postcondition: Returns a connected client or a non-nil error.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// TotalScore returns the player's cumulative score, loading it from the
// durable store on a miss.
func (c *ScoreCache) TotalScore(ctx context.Context, uid string) (int, error) {
	val, err := c.client.Get(ctx, scoreKey(uid)).Result()
	if err == nil {
		score, convErr := strconv.Atoi(val)
		if convErr != nil {
			return 0, fmt.Errorf("corrupt score for %s: %w", uid, convErr)
		}
		return score, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("reading score: %w", err)
	}

	score := 0
	if c.loader != nil {
		score, err = c.loader(ctx, uid)
		if err != nil {
			return 0, fmt.Errorf("loading score for %s: %w", uid, err)
		}
	}
	// Lost races leave the concurrent writer's value in place.
	if err := c.client.SetNX(ctx, scoreKey(uid), score, 0).Err(); err != nil {
		return score, nil
	}
	return score, nil
}

// AddScore folds a finished game's score into the cached total.
func (c *ScoreCache) AddScore(ctx context.Context, uid string, delta int) error {
	if err := c.client.IncrBy(ctx, scoreKey(uid), int64(delta)).Err(); err != nil {
		return fmt.Errorf("incrementing score: %w", err)
	}
	return nil
}

// Forget drops the cached score so the next read goes through the loader.
func (c *ScoreCache) Forget(ctx context.Context, uid string) error {
	if err := c.client.Del(ctx, scoreKey(uid)).Err(); err != nil {
		return fmt.Errorf("deleting score: %w", err)
	}
	return nil
}

func scoreKey(uid string) string {
	return scoreKeyPrefix + uid
}
