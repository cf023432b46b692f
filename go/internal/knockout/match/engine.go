package match

import (
	"errors"
	"fmt"

	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrInvalidState is returned for answers the match cannot accept
var ErrInvalidState = errors.New("invalid match state")

// TieBreakPolicy decides a match that ran out of questions
type TieBreakPolicy string

const (
	// TieBreakHigherScore awards the higher score and flips a coin on a tie
	TieBreakHigherScore TieBreakPolicy = "HIGHER_SCORE"
	// TieBreakCoinFlip flips a coin whenever neither player reached the
	// winning score, even if the scores differ
	TieBreakCoinFlip TieBreakPolicy = "COIN_FLIP"
)

// Rules configures match length and scoring
type Rules struct {
	WinningScore       int
	QuestionsPerPlayer int
	TieBreak           TieBreakPolicy
}

// DefaultRules returns best-of-three with a 2 point threshold
func DefaultRules() Rules {
	return Rules{
		WinningScore:       2,
		QuestionsPerPlayer: 3,
		TieBreak:           TieBreakHigherScore,
	}
}

// Topic selects the question pool for a match
type Topic struct {
	Subject string `json:"subject"`
	Level   string `json:"level"`
}

// QuestionSource supplies random questions
type QuestionSource interface {
	GetRandomQuestion(subject, level string) (models.Question, error)
}

// Rand is the randomness the engine needs for the tie-break
type Rand interface {
	Intn(n int) int
}

// Outcome is the result of one submitted answer
type Outcome struct {
	PlayerID  string
	Correct   bool
	TimedOut  bool
	MatchOver bool
	TieBreak  bool
	Winner    *models.Player
	Loser     *models.Player
}

// Engine runs matches for one topic
type Engine struct {
	questions QuestionSource
	topic     Topic
	rng       Rand
	rules     Rules
}

// NewEngine creates a match engine
func NewEngine(questions QuestionSource, topic Topic, rng Rand, rules Rules) *Engine {
	return &Engine{
		questions: questions,
		topic:     topic,
		rng:       rng,
		rules:     rules,
	}
}

// Rules returns the engine's rules
func (e *Engine) Rules() Rules {
	return e.rules
}

// CreateMatch pairs two players and draws the first question. Player a answers first.
func (e *Engine) CreateMatch(a, b models.Player) (*Match, error) {
	if a.ID == b.ID {
		return nil, fmt.Errorf("%w: player %q cannot play itself", ErrInvalidState, a.ID)
	}

	m := &Match{
		Pair:   [2]models.Player{a, b},
		Scores: map[string]int{a.ID: 0, b.ID: 0},
		phase:  PhaseAwaitingAnswer,
	}
	if err := e.drawQuestion(m); err != nil {
		return nil, err
	}
	return m, nil
}

// SubmitAnswer records the turn owner's answer. A nil answer is a timeout.
// After a non-final answer the match settles until Advance is called.
func (e *Engine) SubmitAnswer(m *Match, playerID string, answer *string) (Outcome, error) {
	switch m.phase {
	case PhaseConcluded:
		return Outcome{}, fmt.Errorf("%w: match already concluded", ErrInvalidState)
	case PhaseSettling:
		return Outcome{}, fmt.Errorf("%w: match is not ready for the next answer", ErrInvalidState)
	}

	idx := m.indexOf(playerID)
	if idx < 0 {
		return Outcome{}, fmt.Errorf("%w: player %q is not in this match", ErrInvalidState, playerID)
	}
	if idx != m.TurnOwner {
		return Outcome{}, fmt.Errorf("%w: it is not player %q's turn", ErrInvalidState, playerID)
	}
	if m.answered[idx] {
		return Outcome{}, fmt.Errorf("%w: player %q already answered this question", ErrInvalidState, playerID)
	}

	q := m.CurrentQuestion()
	out := Outcome{
		PlayerID: playerID,
		Correct:  q.IsCorrect(answer),
		TimedOut: answer == nil,
	}
	m.answered[idx] = true
	if out.Correct {
		m.Scores[playerID]++
	}

	if m.Scores[playerID] >= e.rules.WinningScore {
		m.conclude(idx, false)
		return e.finish(m, out), nil
	}

	m.TurnOwner = 1 - m.TurnOwner
	if m.TurnOwner == 0 {
		m.QuestionIndex++
		m.answered = [2]bool{}
	}

	if m.QuestionIndex >= e.rules.QuestionsPerPlayer {
		m.conclude(e.verdictWinner(m))
		return e.finish(m, out), nil
	}

	m.phase = PhaseSettling
	return out, nil
}

// Advance marks the match ready for the next answer, drawing a new question
// when both players have answered the current one.
func (e *Engine) Advance(m *Match) error {
	if m.phase != PhaseSettling {
		return fmt.Errorf("%w: match is %s", ErrInvalidState, m.phase)
	}
	if len(m.Questions) <= m.QuestionIndex {
		if err := e.drawQuestion(m); err != nil {
			return err
		}
	}
	m.phase = PhaseAwaitingAnswer
	return nil
}

func (e *Engine) drawQuestion(m *Match) error {
	q, err := e.questions.GetRandomQuestion(e.topic.Subject, e.topic.Level)
	if err != nil {
		return fmt.Errorf("failed to draw question: %w", err)
	}
	m.Questions = append(m.Questions, q)
	return nil
}

// verdictWinner picks the winner after the last question. flipped is true
// only when a coin flip decided it.
func (e *Engine) verdictWinner(m *Match) (winner int, flipped bool) {
	a := m.Scores[m.Pair[0].ID]
	b := m.Scores[m.Pair[1].ID]

	if e.rules.TieBreak == TieBreakHigherScore && a != b {
		if a > b {
			return 0, false
		}
		return 1, false
	}
	return e.rng.Intn(2), true
}

func (e *Engine) finish(m *Match, out Outcome) Outcome {
	winner, loser, _ := m.Verdict()
	out.MatchOver = true
	out.TieBreak = m.tieBreak
	out.Winner = &winner
	out.Loser = &loser

	log.Debug().
		Str("winner_id", winner.ID).
		Str("loser_id", loser.ID).
		Int("winner_score", m.Scores[winner.ID]).
		Int("loser_score", m.Scores[loser.ID]).
		Bool("tie_break", m.tieBreak).
		Msg("match concluded")
	return out
}
