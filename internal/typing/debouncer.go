package typing

import (
	"sync"
	"time"
)

const defaultQuietInterval = time.Second

// DebouncerConfig configures one input context's debouncer.
type DebouncerConfig struct {
	// QuietInterval is how long the input must stay silent before the
	// stopped emission fires. Defaults to one second.
	QuietInterval time.Duration
	// OnStarted fires once per idle-to-active transition.
	OnStarted func()
	// OnStopped fires exactly once after the quiet interval elapses with
	// no further keystrokes.
	OnStopped func()
}

// Debouncer folds rapid keystroke activity into one logical typing state
// transition: at most one started emission per idle-to-active transition,
// and exactly one stopped emission once the input goes quiet. One
// debouncer serves one input context (a room's composer).
type Debouncer struct {
	quiet     time.Duration
	onStarted func()
	onStopped func()

	mu     sync.Mutex
	timer  *time.Timer
	active bool
	gen    uint64
}

func NewDebouncer(cfg DebouncerConfig) *Debouncer {
	quiet := cfg.QuietInterval
	if quiet <= 0 {
		quiet = defaultQuietInterval
	}
	onStarted := cfg.OnStarted
	if onStarted == nil {
		onStarted = func() {}
	}
	onStopped := cfg.OnStopped
	if onStopped == nil {
		onStopped = func() {}
	}
	return &Debouncer{
		quiet:     quiet,
		onStarted: onStarted,
		onStopped: onStopped,
	}
}

// Keystroke records input activity. The first keystroke while idle emits
// the started signal and arms the pending timer; every further keystroke
// re-arms it. Each arm carries a generation so an expiry that already
// fired but has not yet run cannot end a run the keystroke just extended.
func (d *Debouncer) Keystroke() {
	d.mu.Lock()
	wasActive := d.active
	d.active = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, func() { d.expire(gen) })
	d.mu.Unlock()

	if !wasActive {
		d.onStarted()
	}
}

// Flush ends the active state immediately, emitting the stopped signal if
// one was pending. Used when the input context goes away (navigation,
// message sent).
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.gen++
	d.timer.Stop()
	d.mu.Unlock()

	d.onStopped()
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if !d.active || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.mu.Unlock()

	d.onStopped()
}
