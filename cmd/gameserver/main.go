// Package main provides the game server binary: matchmaking, rooms, and
// quiz race sessions behind a dispatch surface for the transport layer.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/quizrace/internal/config"
	"github.com/cory-johannsen/quizrace/internal/game/clock"
	"github.com/cory-johannsen/quizrace/internal/game/match"
	"github.com/cory-johannsen/quizrace/internal/game/room"
	"github.com/cory-johannsen/quizrace/internal/game/session"
	"github.com/cory-johannsen/quizrace/internal/gameserver"
	"github.com/cory-johannsen/quizrace/internal/observability"
	"github.com/cory-johannsen/quizrace/internal/server"
	"github.com/cory-johannsen/quizrace/internal/storage/postgres"
	"github.com/cory-johannsen/quizrace/internal/storage/redisstore"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting quiz race server")

	// Connect to PostgreSQL for questions and results.
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	questionRepo := postgres.NewQuestionRepository(pool.DB())
	resultRepo := postgres.NewResultRepository(pool.DB())

	// The score cache is advisory: without Redis, matchmaking falls back to
	// handle scores and the server still runs.
	var scoreCache *redisstore.ScoreCache
	if redisClient, err := redisstore.NewClient(ctx, cfg.Redis); err != nil {
		logger.Warn("redis unavailable, score cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		scoreCache = redisstore.NewScoreCache(redisClient, func(ctx context.Context, uid string) (int, error) {
			stats, err := resultRepo.GetStats(ctx, uid)
			if errors.Is(err, postgres.ErrStatsNotFound) {
				return 0, nil
			}
			if err != nil {
				return 0, err
			}
			return stats.TotalScore, nil
		})
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	positionTicks := clock.NewTickService(cfg.Game.PositionTick)
	sweepTicks := clock.NewTickService(cfg.Game.MatchSweepInterval)

	rooms := room.NewRegistry()
	engine := session.NewEngine(session.Config{
		Countdown:       cfg.Game.Countdown,
		TimeLimit:       cfg.Game.SessionTimeLimit,
		BasePoints:      cfg.Game.BasePoints,
		SpeedBonusMax:   cfg.Game.SpeedBonusMax,
		NitroStreak:     cfg.Game.NitroStreak,
		PositionDivisor: cfg.Game.PositionDivisor,
	}, positionTicks, logger)

	var scores match.ScoreProvider
	if scoreCache != nil {
		scores = scoreCache
	}
	queue := match.NewQueue(match.Config{
		Timeout:   cfg.Game.MatchTimeout,
		ScoreBand: cfg.Game.ScoreBand,
	}, rooms, scores, logger)
	sweepTicks.Register("match:sweep", queue.Sweep)

	var cache gameserver.ScoreCache
	if scoreCache != nil {
		cache = scoreCache
	}
	manager := gameserver.NewGameManager(
		cfg.Game.QuestionCount, questionRepo, resultRepo, cache, engine, logger,
	)
	srv := gameserver.NewServer(logger, rooms, queue, manager, engine)

	lifecycle := server.NewLifecycle(logger)

	// End and persist in-flight games while the database pool is still up.
	lifecycle.AddDrain("sessions", func() {
		for _, roomID := range engine.RoomIDs() {
			manager.EndGame(ctx, roomID)
		}
	})

	tickCtx, tickCancel := context.WithCancel(ctx)
	lifecycle.Add("ticks", &server.FuncService{
		StartFn: func() error {
			positionTicks.Start(tickCtx)
			sweepTicks.Start(tickCtx)
			return nil
		},
		StopFn: tickCancel,
	})

	lifecycle.Add("status", &server.FuncService{
		StartFn: func() error {
			for {
				select {
				case <-tickCtx.Done():
					return nil
				case <-time.After(time.Minute):
					logger.Info("server status",
						zap.Int("online", srv.OnlineCount()),
						zap.Int("rooms", rooms.RoomCount()),
						zap.Int("sessions", engine.Count()),
						zap.Int("queued", queue.PendingCount()),
					)
				}
			}
		},
		StopFn: func() {},
	})

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("quiz race server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Duration("countdown", cfg.Game.Countdown),
		zap.Duration("match_timeout", cfg.Game.MatchTimeout),
		zap.Int("score_band", cfg.Game.ScoreBand),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
