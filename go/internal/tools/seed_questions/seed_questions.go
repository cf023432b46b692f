package main

import (
	"context"
	"fmt"
	"os"

	"github.com/booxclash/booxclash/go/internal/dbconfig"
	"github.com/booxclash/booxclash/go/internal/knockout/questionbank"
	"github.com/booxclash/booxclash/go/internal/sqlutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createQuestions = `
CREATE TABLE IF NOT EXISTS questions (
  id             BIGSERIAL PRIMARY KEY,
  subject        TEXT NOT NULL,
  level          TEXT NOT NULL,
  prompt         TEXT NOT NULL,
  options        TEXT[] NOT NULL,
  correct_option TEXT NOT NULL,
  metadata       JSONB,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (subject, level, prompt)
)`

func main() {
	ctx := context.Background()

	path := "go/internal/assets/questions.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load and validate the catalog
	catalog, err := questionbank.LoadCatalog(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect to DB
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, createQuestions); err != nil {
		fmt.Fprintf(os.Stderr, "create table: %v\n", err)
		os.Exit(1)
	}

	// 3) Seed questions pool by pool
	total, inserted, skipped, errs := 0, 0, 0, 0
	for _, info := range catalog.Pools() {
		for _, q := range catalog[info.Subject][info.Level] {
			total++

			metadata, err := sqlutil.ToNullRawMessage(q.Metadata)
			if err != nil {
				errs++
				continue
			}

			tag, err := pool.Exec(ctx, `
            INSERT INTO questions (
              subject, level, prompt, options, correct_option, metadata
            ) VALUES ($1,$2,$3,$4,$5,$6)
            ON CONFLICT (subject, level, prompt) DO NOTHING
        `, info.Subject, info.Level, q.Prompt, q.Options, q.CorrectOption, metadata)
			if err != nil {
				errs++
				continue
			}
			if tag.RowsAffected() == 1 {
				inserted++
			} else {
				skipped++
			}
		}
	}
	// 4) Tell running gateways to reload
	if inserted > 0 {
		if _, err := pool.Exec(ctx, `SELECT pg_notify('questions_changed', $1)`, path); err != nil {
			fmt.Fprintf(os.Stderr, "notify: %v\n", err)
		}
	}

	fmt.Printf(
		"Questions seed: total=%d inserted=%d skipped=%d errors=%d\n",
		total, inserted, skipped, errs,
	)
}
