package match

import (
	"maps"

	"github.com/booxclash/booxclash/go/internal/models"
)

// Phase is where a match is in its answer cycle
type Phase string

const (
	PhaseAwaitingAnswer Phase = "AWAITING_ANSWER"
	PhaseSettling       Phase = "SETTLING"
	PhaseConcluded      Phase = "CONCLUDED"
)

// Match is one head-to-head between two paired players
type Match struct {
	Pair          [2]models.Player
	Questions     []models.Question
	Scores        map[string]int
	TurnOwner     int
	QuestionIndex int

	phase    Phase
	answered [2]bool
	winner   *models.Player
	loser    *models.Player
	tieBreak bool
}

// Phase returns the current phase
func (m *Match) Phase() Phase {
	return m.phase
}

// Concluded reports whether a verdict has been reached
func (m *Match) Concluded() bool {
	return m.phase == PhaseConcluded
}

// CurrentPlayer returns the player whose turn it is
func (m *Match) CurrentPlayer() models.Player {
	return m.Pair[m.TurnOwner]
}

// CurrentQuestion returns the question being answered
func (m *Match) CurrentQuestion() models.Question {
	return m.Questions[len(m.Questions)-1]
}

// Score returns a player's score
func (m *Match) Score(playerID string) int {
	return m.Scores[playerID]
}

// ScoresSnapshot returns a copy of the score map
func (m *Match) ScoresSnapshot() map[string]int {
	return maps.Clone(m.Scores)
}

// Verdict returns the winner and loser once the match is concluded
func (m *Match) Verdict() (winner, loser models.Player, ok bool) {
	if m.winner == nil {
		return models.Player{}, models.Player{}, false
	}
	return *m.winner, *m.loser, true
}

// DecidedByTieBreak reports whether a coin flip decided the verdict
func (m *Match) DecidedByTieBreak() bool {
	return m.tieBreak
}

func (m *Match) indexOf(playerID string) int {
	for i, p := range m.Pair {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (m *Match) conclude(winnerIdx int, tieBreak bool) {
	winner := m.Pair[winnerIdx]
	loser := m.Pair[1-winnerIdx]
	m.winner = &winner
	m.loser = &loser
	m.tieBreak = tieBreak
	m.phase = PhaseConcluded
}
