package session

import (
	"time"

	"github.com/booxclash/booxclash/go/internal/knockout/tournament"
	"github.com/booxclash/booxclash/go/internal/models"
)

// RoomState is a point-in-time view of a room
type RoomState struct {
	RoomID     string             `json:"room_id"`
	Phase      Phase              `json:"phase"`
	Subject    string             `json:"subject,omitempty"`
	Level      string             `json:"level,omitempty"`
	Players    []models.PlayerRef `json:"players"`
	Tournament *tournament.State  `json:"tournament,omitempty"`
	Match      *MatchState        `json:"match,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// MatchState describes the live match. The question is only shown while
// it is open for answers.
type MatchState struct {
	PlayerA       models.PlayerRef     `json:"player_a"`
	PlayerB       models.PlayerRef     `json:"player_b"`
	Round         int                  `json:"round"`
	Stage         tournament.Stage     `json:"stage"`
	Scores        map[string]int       `json:"scores"`
	TurnOwner     models.PlayerRef     `json:"turn_owner"`
	QuestionIndex int                  `json:"question_index"`
	Question      *models.QuestionView `json:"question,omitempty"`
}

// RoomSummary is the short form used in room listings
type RoomSummary struct {
	RoomID  string `json:"room_id"`
	Phase   Phase  `json:"phase"`
	Players int    `json:"players"`
	Round   int    `json:"round"`
}

// Snapshot copies the room state
func (r *Room) Snapshot() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RoomState{
		RoomID:    r.id,
		Phase:     r.phase,
		Subject:   r.topic.Subject,
		Level:     r.topic.Level,
		Players:   make([]models.PlayerRef, 0, len(r.players)),
		LastError: r.lastError,
		CreatedAt: r.createdAt,
	}
	for _, p := range r.players {
		st.Players = append(st.Players, p.Ref())
	}

	if r.sched != nil {
		ts := r.sched.Snapshot()
		st.Tournament = &ts
	}

	if r.live != nil && r.pairing != nil {
		m := r.live
		ms := &MatchState{
			PlayerA:       m.Pair[0].Ref(),
			PlayerB:       m.Pair[1].Ref(),
			Round:         r.pairing.Round,
			Stage:         r.pairing.Stage,
			Scores:        m.ScoresSnapshot(),
			TurnOwner:     m.CurrentPlayer().Ref(),
			QuestionIndex: m.QuestionIndex,
		}
		if r.phase == PhaseQuestion {
			view := m.CurrentQuestion().View()
			ms.Question = &view
		}
		st.Match = ms
	}
	return st
}

// Summary returns the listing form of the room
func (r *Room) Summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := RoomSummary{
		RoomID:  r.id,
		Phase:   r.phase,
		Players: len(r.players),
	}
	if r.sched != nil {
		s.Round = r.sched.Round()
	}
	return s
}
