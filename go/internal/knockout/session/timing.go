package session

import (
	"time"

	"github.com/booxclash/booxclash/go/internal/knockout/tournament"
)

// Timing holds every delay a room waits on
type Timing struct {
	Intro        time.Duration // stage intro before the first match of a stage
	FinalsIntro  time.Duration
	Countdown    time.Duration // "get ready" before each question
	Answer       time.Duration // time the turn owner has to answer
	Settle       time.Duration // pause after an answer is judged
	Result       time.Duration // pause after a verdict
	FinalsResult time.Duration
}

// DefaultTiming returns the production delays
func DefaultTiming() Timing {
	return Timing{
		Intro:        5 * time.Second,
		FinalsIntro:  10 * time.Second,
		Countdown:    5 * time.Second,
		Answer:       15 * time.Second,
		Settle:       1500 * time.Millisecond,
		Result:       2500 * time.Millisecond,
		FinalsResult: 4 * time.Second,
	}
}

// IntroFor returns the intro length for a stage
func (t Timing) IntroFor(stage tournament.Stage) time.Duration {
	if stage.IsFinals() {
		return t.FinalsIntro
	}
	return t.Intro
}

// ResultFor returns how long a verdict stays on screen
func (t Timing) ResultFor(stage tournament.Stage) time.Duration {
	if stage.IsFinals() {
		return t.FinalsResult
	}
	return t.Result
}

func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
