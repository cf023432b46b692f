package questionbank

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
math:
  easy:
    - prompt: "What is 2+2?"
      options: ["3", "4", "5"]
      correctOption: "4"
    - prompt: "What is 3+3?"
      options: ["6", "7"]
      correctOption: "6"
  hard:
    - prompt: "What is 12*12?"
      options: ["124", "144"]
      correctOption: "144"
science:
  easy:
    - prompt: "H2O is?"
      options: ["water", "salt"]
      correctOption: "water"
      metadata:
        topic: chemistry
`

func TestParseCatalog_Valid(t *testing.T) {
	catalog, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	assert.Equal(t, 4, catalog.Count())
	require.Len(t, catalog["math"]["easy"], 2)
	assert.Equal(t, "4", catalog["math"]["easy"][0].CorrectOption)
	assert.Equal(t, "chemistry", catalog["science"]["easy"][0].Metadata["topic"])
}

func TestParseCatalog_AcceptsJSON(t *testing.T) {
	data := []byte(`{"math":{"easy":[{"prompt":"1+1?","options":["1","2"],"correctOption":"2"}]}}`)

	catalog, err := ParseCatalog(data)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.Count())
}

func TestParseCatalog_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{name: "malformed", data: `{invalid`},
		{name: "empty", data: `{}`},
		{
			name: "missing prompt",
			data: `{"math":{"easy":[{"options":["1","2"],"correctOption":"2"}]}}`,
		},
		{
			name: "too few options",
			data: `{"math":{"easy":[{"prompt":"?","options":["2"],"correctOption":"2"}]}}`,
		},
		{
			name: "correct option not in options",
			data: `{"math":{"easy":[{"prompt":"?","options":["1","2"],"correctOption":"3"}]}}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			catalog, err := ParseCatalog([]byte(tc.data))
			assert.Error(t, err)
			assert.Nil(t, catalog)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 4, catalog.Count())

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetRandomQuestion_NotFound(t *testing.T) {
	catalog, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	bank := NewBank(catalog, rand.New(rand.NewSource(1)))

	_, err = bank.GetRandomQuestion("history", "easy")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = bank.GetRandomQuestion("math", "impossible")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRandomQuestion_SamplesWithRepeats(t *testing.T) {
	catalog, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	bank := NewBank(catalog, rand.New(rand.NewSource(7)))

	seen := make(map[string]int)
	for range 200 {
		q, err := bank.GetRandomQuestion("math", "easy")
		require.NoError(t, err)
		seen[q.Prompt]++
	}

	// Two questions, 200 draws: both appear and repeats happen
	assert.Len(t, seen, 2)
	for prompt, n := range seen {
		assert.Greater(t, n, 50, prompt)
	}
}

func TestGetRandomQuestion_ReturnsCopy(t *testing.T) {
	catalog := Catalog{"math": {"easy": {
		{Prompt: "1+1?", Options: []string{"1", "2"}, CorrectOption: "2"},
	}}}
	bank := NewBank(catalog, nil)

	q, err := bank.GetRandomQuestion("math", "easy")
	require.NoError(t, err)
	q.Options[0] = "tampered"

	again, err := bank.GetRandomQuestion("math", "easy")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, again.Options)
}

func TestSubjects(t *testing.T) {
	catalog, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	got := NewBank(catalog, nil).Subjects()
	assert.Equal(t, []PoolInfo{
		{Subject: "math", Level: "easy", Count: 2},
		{Subject: "math", Level: "hard", Count: 1},
		{Subject: "science", Level: "easy", Count: 1},
	}, got)
}

func TestCatalogAdd(t *testing.T) {
	catalog := make(Catalog)
	catalog.add("math", "easy", models.Question{Prompt: "?", Options: []string{"a", "b"}, CorrectOption: "a"})
	catalog.add("math", "easy", models.Question{Prompt: "??", Options: []string{"a", "b"}, CorrectOption: "b"})

	assert.Len(t, catalog["math"]["easy"], 2)
	assert.NoError(t, catalog.Validate())
}

func TestReplaceSwapsCatalog(t *testing.T) {
	bank := NewBank(Catalog{
		"math": {"easy": {{Prompt: "1+1?", Options: []string{"1", "2"}, CorrectOption: "2"}}},
	}, nil)

	bank.Replace(Catalog{
		"science": {"easy": {{Prompt: "H2O is?", Options: []string{"water", "salt"}, CorrectOption: "water"}}},
	})

	_, err := bank.GetRandomQuestion("math", "easy")
	assert.ErrorIs(t, err, ErrNotFound)

	q, err := bank.GetRandomQuestion("science", "easy")
	require.NoError(t, err)
	assert.Equal(t, "water", q.CorrectOption)
	assert.Equal(t, []PoolInfo{{Subject: "science", Level: "easy", Count: 1}}, bank.Subjects())
}
