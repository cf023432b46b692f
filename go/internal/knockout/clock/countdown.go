package clock

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TickInterval is how often a ticking countdown reports the remaining time
const TickInterval = time.Second

// Executor serializes countdown callbacks with the rest of the owner's state.
// Do runs fn synchronously and must not be reentrant.
type Executor interface {
	Do(fn func())
}

// Countdown is a single cancellable timer slot.
// Start and Cancel must be called from inside the executor; callbacks are
// always delivered through it.
type Countdown struct {
	name  string
	clock clockwork.Clock
	exec  Executor

	// gen identifies the live run; callbacks from older runs are dropped
	gen     atomic.Uint64
	stop    chan struct{}
	running bool
}

// NewCountdown creates an idle countdown slot
func NewCountdown(name string, clk clockwork.Clock, exec Executor) *Countdown {
	return &Countdown{
		name:  name,
		clock: clk,
		exec:  exec,
	}
}

// Name returns the slot name
func (c *Countdown) Name() string {
	return c.name
}

// Active reports whether the slot has a pending expiry
func (c *Countdown) Active() bool {
	return c.running
}

// Start cancels any previous run and begins a new one. onTick receives the
// remaining time once per second; a nil onTick makes this a single-shot delay.
// onExpire fires exactly once unless the run is cancelled first.
func (c *Countdown) Start(d time.Duration, onTick func(remaining time.Duration), onExpire func()) {
	c.Cancel()

	gen := c.gen.Add(1)
	stop := make(chan struct{})
	c.stop = stop
	c.running = true

	// Timers are created here rather than in the goroutine so they exist
	// before Start returns.
	if onTick == nil || d < TickInterval {
		timer := c.clock.NewTimer(d)
		go c.waitTimer(gen, stop, timer, onExpire)
	} else {
		ticker := c.clock.NewTicker(TickInterval)
		go c.runTicker(gen, stop, ticker, d, onTick, onExpire)
	}

	log.Debug().
		Str("slot", c.name).
		Dur("duration", d).
		Msg("countdown started")
}

// Cancel stops the current run. Pending ticks and the expiry are suppressed.
func (c *Countdown) Cancel() {
	c.gen.Add(1)
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.running = false
}

func (c *Countdown) waitTimer(gen uint64, stop <-chan struct{}, timer clockwork.Timer, onExpire func()) {
	select {
	case <-stop:
		timer.Stop()
	case <-timer.Chan():
		c.fire(gen, true, func() { onExpire() })
	}
}

func (c *Countdown) runTicker(gen uint64, stop <-chan struct{}, ticker clockwork.Ticker, d time.Duration, onTick func(time.Duration), onExpire func()) {
	defer ticker.Stop()

	remaining := d
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			remaining -= TickInterval
			if remaining <= 0 {
				c.fire(gen, true, func() { onExpire() })
				return
			}

			left := remaining
			if !c.fire(gen, false, func() { onTick(left) }) {
				return
			}
		}
	}
}

// fire runs fn inside the executor if gen is still the live run
func (c *Countdown) fire(gen uint64, final bool, fn func()) bool {
	live := false
	c.exec.Do(func() {
		if c.gen.Load() != gen {
			return
		}
		live = true
		if final {
			c.stop = nil
			c.running = false
		}
		fn()
	})
	return live
}
