// Package main provides the question bank importer: reads YAML bank files
// and inserts their questions into the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/quizrace/internal/config"
	"github.com/cory-johannsen/quizrace/internal/game/question"
	"github.com/cory-johannsen/quizrace/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	banksDir := flag.String("banks", "content/questions", "path to question bank YAML directory")
	flag.Parse()

	if *banksDir == "" {
		fmt.Fprintln(os.Stderr, "usage: import-questions -banks <dir> [-config <file>]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	qs, err := question.LoadBanksFromDir(*banksDir)
	if err != nil {
		log.Fatalf("loading question banks: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewQuestionRepository(pool.DB())
	inserted := 0
	for _, q := range qs {
		if _, err := repo.Insert(ctx, q); err != nil {
			log.Fatalf("inserting question %q: %v", q.Prompt, err)
		}
		inserted++
	}

	fmt.Printf("imported %d questions in %s\n", inserted, time.Since(start).Round(time.Millisecond))
}
