// Package supervisor owns the process lifecycle: it runs a fixed set of
// named units (the process's driving loops plus scheduled jobs),
// restarts a crashed unit with exponential back-off, and drains every unit
// on shutdown within a bounded timeout. Grounded on
// other_examples/00935cc5_rizrmd-aibot__internal-bot-orchestrator.go.go's
// Orchestrator (context/cancel/sync.WaitGroup shutdown shape, a
// bounded-timeout select around wg.Wait()), generalized from one hardcoded
// bot orchestrator into a reusable Supervisor over arbitrary named Units.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/axiomtrader/assistant/internal/obs"
)

// Unit is a long-running, restartable piece of work. Run must return
// promptly once ctx is cancelled; a Unit that returns nil is considered a
// clean exit and is not restarted.
type Unit interface {
	Name() string
	Run(ctx context.Context) error
}

// UnitFunc adapts a plain function plus name into a Unit.
type UnitFunc struct {
	UnitName string
	Fn       func(ctx context.Context) error
}

func (f UnitFunc) Name() string                   { return f.UnitName }
func (f UnitFunc) Run(ctx context.Context) error   { return f.Fn(ctx) }

// MaxBackoff caps the exponential restart delay (spec.md: wait =
// min(2^(fails-1), 60) seconds).
const MaxBackoff = 60 * time.Second

// fastCrashWindow is the elapsed-runtime threshold below which a unit exit
// counts as a "fast crash" toward the consecutive-fast-crash counter
// (spec.md: "if < 60s, increment ... else reset it"). A var, not a const,
// so tests can shrink it instead of sleeping 60 real seconds.
var fastCrashWindow = 60 * time.Second

// LifecycleEvent is emitted on every unit state transition, for the log
// sink and an optional external notifier.
type LifecycleEvent struct {
	Unit      string
	Kind      string // "started", "crashed", "restarting", "stopped"
	Err       error
	Attempt   int
	Timestamp time.Time
}

// Supervisor runs a set of Units with crash-restart and graceful shutdown.
type Supervisor struct {
	mu        sync.Mutex
	units     []Unit
	pidFile   string
	drainWait time.Duration
	onEvent   func(LifecycleEvent)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Supervisor. pidFile may be empty to skip PID-file
// management; drainWait bounds how long Stop waits for units to exit
// before giving up.
func New(pidFile string, drainWait time.Duration, onEvent func(LifecycleEvent)) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	if onEvent == nil {
		onEvent = func(LifecycleEvent) {}
	}
	return &Supervisor{pidFile: pidFile, drainWait: drainWait, onEvent: onEvent, ctx: ctx, cancel: cancel}
}

// Add registers a unit to be started by Start. Units added after Start has
// been called are started immediately.
func (s *Supervisor) Add(u Unit) {
	s.mu.Lock()
	s.units = append(s.units, u)
	started := s.ctx.Err() == nil
	s.mu.Unlock()
	if started {
		s.launch(u)
	}
}

// Start writes the PID file (if configured) and launches every registered
// unit under its own crash-restart loop.
func (s *Supervisor) Start() error {
	if s.pidFile != "" {
		if err := os.WriteFile(s.pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("writing pid file %s: %w", s.pidFile, err)
		}
	}
	s.mu.Lock()
	units := append([]Unit(nil), s.units...)
	s.mu.Unlock()
	for _, u := range units {
		s.launch(u)
	}
	return nil
}

func (s *Supervisor) launch(u Unit) {
	s.wg.Add(1)
	go s.runWithRestart(u)
}

func (s *Supervisor) runWithRestart(u Unit) {
	defer s.wg.Done()
	log := obs.Component("supervisor")

	attempt := 0
	for {
		s.emit(LifecycleEvent{Unit: u.Name(), Kind: "started", Attempt: attempt, Timestamp: time.Now()})
		startedAt := time.Now()
		err := s.runOnce(u)
		if s.ctx.Err() != nil {
			s.emit(LifecycleEvent{Unit: u.Name(), Kind: "stopped", Timestamp: time.Now()})
			return
		}
		if err == nil {
			s.emit(LifecycleEvent{Unit: u.Name(), Kind: "stopped", Timestamp: time.Now()})
			return
		}

		// A unit that ran healthily for a while before crashing resets the
		// consecutive-fast-crash counter, so back-off tracks crash-looping,
		// not lifetime crash count (spec.md: "if < 60s, increment; else
		// reset").
		if time.Since(startedAt) >= fastCrashWindow {
			attempt = 0
		}
		attempt++
		s.emit(LifecycleEvent{Unit: u.Name(), Kind: "crashed", Err: err, Attempt: attempt, Timestamp: time.Now()})
		wait := backoff(attempt)
		log.Error().Str("unit", u.Name()).Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("unit crashed, restarting")
		s.emit(LifecycleEvent{Unit: u.Name(), Kind: "restarting", Attempt: attempt, Timestamp: time.Now()})

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runOnce recovers a panicking unit into an error so one bad unit can
// never bring down the process; the crash-restart loop then applies.
func (s *Supervisor) runOnce(u Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit %s panicked: %v", u.Name(), r)
		}
	}()
	return u.Run(s.ctx)
}

// backoff implements spec.md's restart policy: wait = min(2^(fails-1), 60)
// seconds.
func backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	seconds := 1 << uint(attempt-1)
	d := time.Duration(seconds) * time.Second
	if d > MaxBackoff || seconds <= 0 /* overflow guard for large attempt counts */ {
		return MaxBackoff
	}
	return d
}

// Stop cancels every unit's context and waits up to drainWait for them to
// exit, logging (not blocking forever) if the deadline is reached.
func (s *Supervisor) Stop() {
	log := obs.Component("supervisor")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all units stopped cleanly")
	case <-time.After(s.drainWait):
		log.Warn().Dur("drain_wait", s.drainWait).Msg("drain timeout reached, exiting with units still running")
	}

	if s.pidFile != "" {
		_ = os.Remove(s.pidFile)
	}
}

func (s *Supervisor) emit(ev LifecycleEvent) {
	s.onEvent(ev)
}
