package session

import "slices"

// Phase is the state of a room
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseIntro     Phase = "intro"
	PhaseCountdown Phase = "countdown"
	PhaseQuestion  Phase = "question"
	PhaseSettle    Phase = "settle"
	PhaseVerdict   Phase = "verdict"
	PhaseFinished  Phase = "finished"
	PhasePaused    Phase = "paused"
	PhaseClosed    Phase = "closed"
)

// transitions lists the legal moves out of each phase. Any phase may move
// to closed.
var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseIntro, PhaseCountdown, PhasePaused},
	PhaseIntro:     {PhaseCountdown},
	PhaseCountdown: {PhaseQuestion},
	PhaseQuestion:  {PhaseSettle},
	PhaseSettle:    {PhaseCountdown, PhaseVerdict, PhasePaused},
	PhaseVerdict:   {PhaseIntro, PhaseCountdown, PhaseFinished, PhasePaused},
	PhasePaused:    {PhaseIdle, PhaseIntro, PhaseCountdown},
	PhaseFinished:  {PhaseIdle},
}

// CanTransition reports whether a room may move from one phase to another
func CanTransition(from, to Phase) bool {
	if to == PhaseClosed {
		return from != PhaseClosed
	}
	return slices.Contains(transitions[from], to)
}

// Restartable reports whether a host may start a new tournament
func (p Phase) Restartable() bool {
	return p == PhaseIdle || p == PhasePaused || p == PhaseFinished
}
