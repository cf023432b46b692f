package questionbank

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no questions are configured for a subject/level
var ErrNotFound = errors.New("no questions available")

// Catalog is the question source format: subject -> level -> questions
type Catalog map[string]map[string][]models.Question

// Rand is the randomness the bank needs. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// PoolInfo summarizes one subject/level pool
type PoolInfo struct {
	Subject string `json:"subject"`
	Level   string `json:"level"`
	Count   int    `json:"count"`
}

// Bank serves random questions from a catalog.
// It is safe for concurrent use. Catalogs are swapped whole, never mutated.
type Bank struct {
	mu      sync.Mutex
	catalog Catalog
	rng     Rand
}

// NewBank creates a bank over a validated catalog. A nil rng uses a time-seeded source.
func NewBank(catalog Catalog, rng Rand) *Bank {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Bank{
		catalog: catalog,
		rng:     rng,
	}
}

// GetRandomQuestion samples a question uniformly from the subject/level pool.
// Repeats across calls are allowed.
func (b *Bank) GetRandomQuestion(subject, level string) (models.Question, error) {
	b.mu.Lock()
	pool := b.catalog[subject][level]
	if len(pool) == 0 {
		b.mu.Unlock()
		return models.Question{}, fmt.Errorf("%w: subject=%q level=%q", ErrNotFound, subject, level)
	}
	q := pool[b.rng.Intn(len(pool))]
	b.mu.Unlock()

	q.Options = slices.Clone(q.Options)
	return q, nil
}

// Subjects lists every configured pool, sorted by subject then level
func (b *Bank) Subjects() []PoolInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.catalog.Pools()
}

// Replace swaps in a new catalog. Matches in progress keep the questions
// they already drew.
func (b *Bank) Replace(catalog Catalog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalog = catalog
}

// ParseCatalog decodes and validates a catalog from YAML or JSON
func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse question catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// LoadCatalog reads a catalog file from disk
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question catalog: %w", err)
	}

	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("questions", catalog.Count()).
		Msg("loaded question catalog")
	return catalog, nil
}

// Pools lists every subject/level pool, sorted by subject then level
func (c Catalog) Pools() []PoolInfo {
	out := []PoolInfo{}
	for subject, levels := range c {
		for level, qs := range levels {
			out = append(out, PoolInfo{Subject: subject, Level: level, Count: len(qs)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].Level < out[j].Level
	})
	return out
}

// Validate checks every question in the catalog
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return errors.New("question catalog is empty")
	}
	for subject, levels := range c {
		for level, qs := range levels {
			for i, q := range qs {
				if err := validateQuestion(q); err != nil {
					return fmt.Errorf("%s/%s question %d: %w", subject, level, i, err)
				}
			}
		}
	}
	return nil
}

// Count returns the total number of questions
func (c Catalog) Count() int {
	n := 0
	for _, levels := range c {
		for _, qs := range levels {
			n += len(qs)
		}
	}
	return n
}

// add appends a question to the subject/level pool
func (c Catalog) add(subject, level string, q models.Question) {
	if c[subject] == nil {
		c[subject] = make(map[string][]models.Question)
	}
	c[subject][level] = append(c[subject][level], q)
}

func validateQuestion(q models.Question) error {
	if q.Prompt == "" {
		return errors.New("prompt is required")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("need at least 2 options, got %d", len(q.Options))
	}
	if !slices.Contains(q.Options, q.CorrectOption) {
		return fmt.Errorf("correct option %q is not one of the options", q.CorrectOption)
	}
	return nil
}
