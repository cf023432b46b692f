package tournament

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrConfig is returned when a tournament cannot start with the given players
	ErrConfig = errors.New("invalid tournament configuration")
	// ErrInvalidState is returned for calls out of sequence
	ErrInvalidState = errors.New("invalid tournament state")
)

// Rand is the randomness the scheduler needs. *rand.Rand satisfies it.
type Rand interface {
	Shuffle(n int, swap func(i, j int))
}

// Pairing is a match the scheduler wants played
type Pairing struct {
	A     models.Player `json:"a"`
	B     models.Player `json:"b"`
	Round int           `json:"round"`
	Stage Stage         `json:"stage"`
	// Intro is set on the first pairing of a stage
	Intro bool `json:"intro"`
}

// Result is a finished match
type Result struct {
	Winner models.Player `json:"winner"`
	Loser  models.Player `json:"loser"`
	Round  int           `json:"round"`
	Stage  Stage         `json:"stage"`
}

// Listener receives scheduler notifications
type Listener interface {
	OnStageIntro(stage Stage, round int)
	OnMatchStart(pairing Pairing)
	OnBye(player models.Player, round int)
	OnMatchEnd(result Result)
	OnChampion(champion models.Player, matchesPlayed int)
}

// NopListener ignores every notification
type NopListener struct{}

func (NopListener) OnStageIntro(Stage, int)       {}
func (NopListener) OnMatchStart(Pairing)          {}
func (NopListener) OnBye(models.Player, int)      {}
func (NopListener) OnMatchEnd(Result)             {}
func (NopListener) OnChampion(models.Player, int) {}

// State is a read-only snapshot of the tournament
type State struct {
	Round            int             `json:"round"`
	Stage            Stage           `json:"stage"`
	Pool             []models.Player `json:"pool"`
	Advancing        []models.Player `json:"advancing"`
	Active           *Pairing        `json:"active,omitempty"`
	EliminatedCounts map[string]int  `json:"eliminated_counts"`
	MatchesPlayed    int             `json:"matches_played"`
	Champion         *models.Player  `json:"champion,omitempty"`
}

// Scheduler runs a single-elimination bracket. It is not safe for concurrent
// use; the owning room serializes access.
type Scheduler struct {
	rng      Rand
	listener Listener

	pool       []models.Player
	advancing  []models.Player
	eliminated map[string]int
	round      int
	active     *Pairing
	champion   *models.Player
	matches    int
	started    bool

	seenStages map[Stage]bool
	// byes records the round in which each player last received a bye
	byes map[string]int
}

// NewScheduler creates an idle scheduler. A nil listener discards notifications.
func NewScheduler(rng Rand, listener Listener) *Scheduler {
	if listener == nil {
		listener = NopListener{}
	}
	return &Scheduler{
		rng:        rng,
		listener:   listener,
		eliminated: make(map[string]int),
		seenStages: make(map[Stage]bool),
		byes:       make(map[string]int),
	}
}

// Start shuffles the players into the round 1 pool
func (s *Scheduler) Start(players []models.Player) error {
	if s.started {
		return fmt.Errorf("%w: tournament already started", ErrInvalidState)
	}
	if len(players) < 2 {
		return fmt.Errorf("%w: need at least 2 players, got %d", ErrConfig, len(players))
	}

	ids := make(map[string]bool, len(players))
	for _, p := range players {
		if p.ID == "" {
			return fmt.Errorf("%w: player %q has no id", ErrConfig, p.Name)
		}
		if ids[p.ID] {
			return fmt.Errorf("%w: duplicate player id %q", ErrConfig, p.ID)
		}
		ids[p.ID] = true
	}

	s.pool = slices.Clone(players)
	s.shuffle(s.pool)
	s.round = 1
	s.started = true

	log.Info().
		Int("players", len(players)).
		Msg("tournament started")
	return nil
}

// Advance moves the bracket forward to the next match. It grants byes and
// refills the pool as needed. It returns nil once a champion is crowned.
func (s *Scheduler) Advance() (*Pairing, error) {
	switch {
	case !s.started:
		return nil, fmt.Errorf("%w: tournament not started", ErrInvalidState)
	case s.champion != nil:
		return nil, fmt.Errorf("%w: tournament already has a champion", ErrInvalidState)
	case s.active != nil:
		return nil, fmt.Errorf("%w: match between %q and %q still in progress", ErrInvalidState, s.active.A.ID, s.active.B.ID)
	}

	for {
		if len(s.pool) >= 2 {
			return s.pair(), nil
		}

		if len(s.pool) == 1 {
			s.grantBye(s.pool[0])
			s.pool = s.pool[:0]
		}

		if len(s.advancing) == 1 {
			champion := s.advancing[0]
			s.advancing = nil
			s.champion = &champion

			log.Info().
				Str("champion_id", champion.ID).
				Int("matches", s.matches).
				Int("rounds", s.round).
				Msg("tournament champion decided")
			s.listener.OnChampion(champion, s.matches)
			return nil, nil
		}

		s.refill()
	}
}

// ReportResult records the verdict of the active match
func (s *Scheduler) ReportResult(winnerID string) (Result, error) {
	if s.active == nil {
		return Result{}, fmt.Errorf("%w: no match in progress", ErrInvalidState)
	}

	var winner, loser models.Player
	switch winnerID {
	case s.active.A.ID:
		winner, loser = s.active.A, s.active.B
	case s.active.B.ID:
		winner, loser = s.active.B, s.active.A
	default:
		return Result{}, fmt.Errorf("%w: player %q is not in the active match", ErrInvalidState, winnerID)
	}

	res := Result{
		Winner: winner,
		Loser:  loser,
		Round:  s.active.Round,
		Stage:  s.active.Stage,
	}
	s.active = nil
	s.matches++
	s.advancing = append(s.advancing, winner)
	s.eliminated[loser.Name]++

	log.Info().
		Str("winner_id", winner.ID).
		Str("loser_id", loser.ID).
		Int("round", res.Round).
		Msg("match result recorded")
	s.listener.OnMatchEnd(res)
	return res, nil
}

// Run drives the whole bracket synchronously, asking play for each verdict
func (s *Scheduler) Run(play func(Pairing) models.Player) (models.Player, error) {
	for {
		p, err := s.Advance()
		if err != nil {
			return models.Player{}, err
		}
		if p == nil {
			return *s.champion, nil
		}
		if _, err := s.ReportResult(play(*p).ID); err != nil {
			return models.Player{}, err
		}
	}
}

// Round returns the current round number
func (s *Scheduler) Round() int {
	return s.round
}

// Active returns the match in progress, if any
func (s *Scheduler) Active() (Pairing, bool) {
	if s.active == nil {
		return Pairing{}, false
	}
	return *s.active, true
}

// Champion returns the winner once the tournament is over
func (s *Scheduler) Champion() (models.Player, bool) {
	if s.champion == nil {
		return models.Player{}, false
	}
	return *s.champion, true
}

// MatchesPlayed returns the number of completed matches
func (s *Scheduler) MatchesPlayed() int {
	return s.matches
}

// Snapshot copies the current state
func (s *Scheduler) Snapshot() State {
	st := State{
		Round:            s.round,
		Stage:            StageForRound(s.round),
		Pool:             slices.Clone(s.pool),
		Advancing:        slices.Clone(s.advancing),
		EliminatedCounts: maps.Clone(s.eliminated),
		MatchesPlayed:    s.matches,
	}
	if s.active != nil {
		active := *s.active
		st.Active = &active
	}
	if s.champion != nil {
		champion := *s.champion
		st.Champion = &champion
	}
	return st
}

func (s *Scheduler) pair() *Pairing {
	a, b := s.pool[0], s.pool[1]
	s.pool = s.pool[2:]

	stage := StageForRound(s.round)
	p := &Pairing{
		A:     a,
		B:     b,
		Round: s.round,
		Stage: stage,
		Intro: !s.seenStages[stage],
	}
	s.active = p

	if p.Intro {
		s.seenStages[stage] = true
		s.listener.OnStageIntro(stage, s.round)
	}

	log.Debug().
		Str("player_a", a.ID).
		Str("player_b", b.ID).
		Int("round", s.round).
		Msg("pairing created")
	s.listener.OnMatchStart(*p)

	result := *p
	return &result
}

func (s *Scheduler) grantBye(p models.Player) {
	if round, ok := s.byes[p.ID]; ok && round == s.round {
		return
	}
	s.byes[p.ID] = s.round
	s.advancing = append(s.advancing, p)

	log.Info().
		Str("player_id", p.ID).
		Int("round", s.round).
		Msg("player advances on a bye")
	s.listener.OnBye(p, s.round)
}

func (s *Scheduler) refill() {
	s.pool = s.advancing
	s.advancing = nil
	s.shuffle(s.pool)
	s.round++

	log.Debug().
		Int("round", s.round).
		Int("entrants", len(s.pool)).
		Msg("round pool refilled")
}

func (s *Scheduler) shuffle(players []models.Player) {
	s.rng.Shuffle(len(players), func(i, j int) {
		players[i], players[j] = players[j], players[i]
	})
}
