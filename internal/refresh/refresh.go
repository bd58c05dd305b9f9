// Package refresh runs the EPG export on a schedule in one background worker.
//
// The worker waits until the next run is due, runs the job, and on failure
// sleeps a short cooldown before going back to waiting. Every wait is cut
// short by Stop. After more than MaxFailures consecutive failures the
// FailurePolicy decides what happens next.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/snapetech/vodka-export/internal/metrics"
	"github.com/snapetech/vodka-export/internal/state"
)

// DefaultCooldown is the pause after a failed run.
const DefaultCooldown = 5 * time.Second

// State is the worker's position in its loop.
type State int

const (
	Idle State = iota
	Waiting
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FailurePolicy is applied once consecutive failures exceed MaxFailures.
type FailurePolicy string

const (
	// PolicyPause keeps the worker alive but never runs the job again.
	PolicyPause FailurePolicy = "pause"
	// PolicyResume skips one scheduled run, clears the counter and tries again on the next.
	PolicyResume FailurePolicy = "resume"
	// PolicyStop ends the worker.
	PolicyStop FailurePolicy = "stop"
)

// ParsePolicy accepts "pause", "resume" or "stop"; empty means PolicyResume.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case "":
		return PolicyResume, nil
	case PolicyPause, PolicyResume, PolicyStop:
		return p, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

// Clock is the time source; tests swap it for a manual one.
type Clock struct {
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

// SystemClock uses the wall clock.
func SystemClock() Clock {
	return Clock{Now: time.Now, After: time.After}
}

// Job is one export run. It must honour ctx.
type Job func(ctx context.Context) error

// Config tunes a Scheduler. Store and Metrics may be nil.
type Config struct {
	Frequency   time.Duration
	Cooldown    time.Duration
	MaxFailures int
	Policy      FailurePolicy
	Clock       Clock
	Store       state.Store
	Metrics     *metrics.Metrics
}

// Status is a snapshot for logs and the status endpoint.
type Status struct {
	State      State
	Paused     bool
	Failures   int
	Runs       int
	LastUpdate time.Time
	NextRun    time.Time
	LastError  string
}

// Label is the state name, or "paused" when the failure ceiling stopped runs.
func (s Status) Label() string {
	if s.Paused && s.State != Stopped {
		return "paused"
	}
	return s.State.String()
}

// NextDelay is how long to wait before the next run: min(freq, freq-(now-last)),
// never negative. A zero last time means a run is due now.
func NextDelay(freq time.Duration, now, last time.Time) time.Duration {
	d := freq - now.Sub(last)
	if d > freq {
		d = freq
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Scheduler owns the refresh worker.
type Scheduler struct {
	job Job
	cfg Config

	mu      sync.Mutex
	status  Status
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
}

// New returns an idle scheduler.
func New(job Job, cfg Config) *Scheduler {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyResume
	}
	if cfg.Clock.Now == nil || cfg.Clock.After == nil {
		cfg.Clock = SystemClock()
	}
	return &Scheduler{
		job:     job,
		cfg:     cfg,
		done:    make(chan struct{}),
		trigger: make(chan struct{}, 1),
	}
}

var errStarted = errors.New("refresh: scheduler already started or stopped")

// Start loads the last update time from the store and launches the worker.
// The worker ends when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return errStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.cfg.Store != nil {
		last, err := s.cfg.Store.LastUpdate(ctx)
		if err != nil {
			log.Printf("refresh: read last update: %v (running now)", err)
		}
		s.update(func(st *Status) { st.LastUpdate = last })
		s.cfg.Metrics.SetLastSuccess(last)
	}
	go s.run(ctx)
	return nil
}

// Stop cancels the worker. It is safe to call more than once and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	if !s.started {
		s.status.State = Stopped
		close(s.done)
	}
}

// Wait blocks until the worker has exited. It returns at once when the
// worker never started and Stop was called; without Stop it returns only
// after a started worker ends.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	started, stopped := s.started, s.stopped
	s.mu.Unlock()
	if !started && !stopped {
		return
	}
	<-s.done
}

// WaitTimeout is Wait bounded by d. It reports whether the worker exited.
func (s *Scheduler) WaitTimeout(d time.Duration) bool {
	ch := make(chan struct{})
	go func() {
		s.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

// Trigger wakes a waiting worker so the next run starts now. It is a no-op
// while a run is in progress or one is already pending.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the worker.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) update(fn func(*Status)) Status {
	s.mu.Lock()
	fn(&s.status)
	st := s.status
	s.mu.Unlock()
	s.cfg.Metrics.SetState(st.Label())
	s.cfg.Metrics.SetFailures(st.Failures)
	return st
}

// sleep waits d or until ctx is done; it reports false on cancellation.
// A Trigger ends the wait early when wakeable is set.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration, wakeable bool) bool {
	if err := ctx.Err(); err != nil {
		return false
	}
	var trigger <-chan struct{}
	if wakeable {
		trigger = s.trigger
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.cfg.Clock.After(d):
	case <-trigger:
	}
	return ctx.Err() == nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer s.update(func(st *Status) { st.State = Stopped; st.NextRun = time.Time{} })

	freq := s.cfg.Frequency
	skipNext := false
	for {
		st := s.Status()
		delay := NextDelay(freq, s.cfg.Clock.Now(), st.LastUpdate)
		if st.Paused || skipNext {
			// The last update is stale here; waiting on it would spin.
			delay = freq
			skipNext = false
		}
		next := s.cfg.Clock.Now().Add(delay)
		s.update(func(st *Status) { st.State = Waiting; st.NextRun = next })
		log.Printf("refresh: next epg update in %s", delay.Round(time.Second))
		if !s.sleep(ctx, delay, true) {
			log.Printf("refresh: stopped while waiting")
			return
		}

		if st := s.Status(); st.Failures > s.cfg.MaxFailures {
			switch s.cfg.Policy {
			case PolicyStop:
				log.Printf("refresh: %d consecutive failures; stopping", st.Failures)
				return
			case PolicyPause:
				if !st.Paused {
					log.Printf("refresh: %d consecutive failures; pausing updates", st.Failures)
				}
				s.update(func(st *Status) { st.Paused = true })
				continue
			default:
				log.Printf("refresh: %d consecutive failures; skipping this update and resetting", st.Failures)
				s.update(func(st *Status) { st.Failures = 0 })
				skipNext = true
				continue
			}
		}

		s.update(func(st *Status) { st.State = Running; st.NextRun = time.Time{} })
		err := s.job(ctx)
		if ctx.Err() != nil {
			log.Printf("refresh: stopped during update (%v)", err)
			return
		}
		if err == nil {
			now := s.cfg.Clock.Now()
			s.update(func(st *Status) {
				st.Failures = 0
				st.Runs++
				st.LastUpdate = now
				st.LastError = ""
			})
			s.cfg.Metrics.SetLastSuccess(now)
			if s.cfg.Store != nil {
				if perr := s.cfg.Store.SetLastUpdate(ctx, now); perr != nil {
					log.Printf("refresh: persist last update: %v", perr)
				}
			}
			continue
		}

		st = s.update(func(st *Status) {
			st.Failures++
			st.Runs++
			st.LastError = err.Error()
		})
		log.Printf("refresh: epg update failed (%d in a row): %v", st.Failures, err)
		if !s.sleep(ctx, s.cfg.Cooldown, false) {
			log.Printf("refresh: stopped during cooldown")
			return
		}
	}
}
