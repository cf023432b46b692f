package questionbank

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/booxclash/booxclash/go/internal/sqlutil"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

const selectQuestions = `
SELECT subject, level, prompt, options, correct_option, metadata
FROM questions
ORDER BY subject, level, id`

// PostgresSource loads the catalog from the questions table
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a source over an open postgres connection
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Load reads every question row into a validated catalog. The rows are read
// in one snapshot so a concurrent reseed is never seen half applied.
func (s *PostgresSource) Load(ctx context.Context) (Catalog, error) {
	catalog := make(Catalog)
	err := sqlutil.Run(ctx, s.db, sqlutil.ReadOnly, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, selectQuestions)
		if err != nil {
			return fmt.Errorf("failed to query questions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				subject, level string
				q              models.Question
				metadata       pqtype.NullRawMessage
			)
			if err := rows.Scan(&subject, &level, &q.Prompt, pq.Array(&q.Options), &q.CorrectOption, &metadata); err != nil {
				return fmt.Errorf("failed to scan question: %w", err)
			}
			if q.Metadata, err = sqlutil.FromNullRawMessage(metadata); err != nil {
				return fmt.Errorf("question %s/%s %q: %w", subject, level, q.Prompt, err)
			}
			catalog.add(subject, level, q)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate questions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	log.Info().Int("questions", catalog.Count()).Msg("loaded question catalog from postgres")
	return catalog, nil
}
