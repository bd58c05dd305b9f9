package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avfs/avfs/vfs/memfs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/vodka-export/internal/cache"
	"github.com/snapetech/vodka-export/internal/export"
	"github.com/snapetech/vodka-export/internal/metrics"
	"github.com/snapetech/vodka-export/internal/provider"
	"github.com/snapetech/vodka-export/internal/publish"
	"github.com/snapetech/vodka-export/internal/state"
)

type wait struct {
	d  time.Duration
	ch chan time.Time
}

// manualClock hands every requested wait to the test, which fires it.
type manualClock struct {
	mu    sync.Mutex
	now   time.Time
	waits chan wait
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now, waits: make(chan wait, 8)}
}

func (c *manualClock) Clock() Clock {
	return Clock{
		Now: func() time.Time {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.now
		},
		After: func(d time.Duration) <-chan time.Time {
			w := wait{d: d, ch: make(chan time.Time, 1)}
			c.waits <- w
			return w.ch
		},
	}
}

// next returns the worker's next wait.
func (c *manualClock) next(t *testing.T) wait {
	t.Helper()
	select {
	case w := <-c.waits:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not start waiting")
		return wait{}
	}
}

// fire advances the clock by the wait and releases it.
func (c *manualClock) fire(w wait) {
	c.mu.Lock()
	c.now = c.now.Add(w.d)
	now := c.now
	c.mu.Unlock()
	w.ch <- now
}

var epoch = time.Date(2023, 8, 9, 12, 0, 0, 0, time.UTC)

func TestNextDelay(t *testing.T) {
	freq := 3 * time.Hour
	tests := []struct {
		name string
		last time.Time
		want time.Duration
	}{
		{"never ran", time.Time{}, 0},
		{"just ran", epoch, freq},
		{"partway", epoch.Add(-time.Hour), 2 * time.Hour},
		{"overdue", epoch.Add(-5 * time.Hour), 0},
		{"last in future", epoch.Add(time.Hour), freq},
	}
	for _, tt := range tests {
		if got := NextDelay(freq, epoch, tt.last); got != tt.want {
			t.Errorf("%s: NextDelay = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]FailurePolicy{"": PolicyResume, "pause": PolicyPause, "resume": PolicyResume, "stop": PolicyStop} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("retry")
	assert.Error(t, err)
}

func TestScheduler_waitsForDueTimeAndPersists(t *testing.T) {
	clk := newManualClock(epoch)
	store := state.NewMemory()
	require.NoError(t, store.SetLastUpdate(context.Background(), epoch.Add(-time.Hour)))
	m := metrics.New()

	var runs atomic.Int32
	s := New(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, Config{Frequency: 3 * time.Hour, Clock: clk.Clock(), Store: store, Metrics: m})
	require.NoError(t, s.Start(context.Background()))

	w := clk.next(t)
	assert.Equal(t, 2*time.Hour, w.d)
	assert.Equal(t, Waiting, s.Status().State)
	assert.Equal(t, epoch.Add(2*time.Hour), s.Status().NextRun)
	clk.fire(w)

	w = clk.next(t)
	assert.Equal(t, 3*time.Hour, w.d, "full period after a success")
	assert.EqualValues(t, 1, runs.Load())

	last, err := store.LastUpdate(context.Background())
	require.NoError(t, err)
	assert.True(t, last.Equal(epoch.Add(2*time.Hour)), "last update = %s", last)

	st := s.Status()
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 0, st.Failures)
	assert.Equal(t, "waiting", st.Label())

	s.Stop()
	require.True(t, s.WaitTimeout(2*time.Second))
	assert.Equal(t, Stopped, s.Status().State)
	assert.EqualValues(t, 1, runs.Load())
}

func TestScheduler_stopDuringWait(t *testing.T) {
	clk := newManualClock(epoch)
	var runs atomic.Int32
	s := New(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, Config{Frequency: time.Hour, Clock: clk.Clock()})
	require.NoError(t, s.Start(context.Background()))
	clk.next(t)

	s.Stop()
	s.Stop()
	require.True(t, s.WaitTimeout(2*time.Second))
	assert.Equal(t, Stopped, s.Status().State)
	assert.Zero(t, runs.Load())
}

func TestScheduler_parentContextEndsWorker(t *testing.T) {
	clk := newManualClock(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	s := New(func(ctx context.Context) error { return nil }, Config{Frequency: time.Hour, Clock: clk.Clock()})
	require.NoError(t, s.Start(ctx))
	clk.next(t)
	cancel()
	require.True(t, s.WaitTimeout(2*time.Second))
	assert.Equal(t, Stopped, s.Status().State)
}

func TestScheduler_stopBeforeStart(t *testing.T) {
	s := New(func(ctx context.Context) error { return nil }, Config{Frequency: time.Hour})
	s.Stop()
	assert.Error(t, s.Start(context.Background()))
	assert.True(t, s.WaitTimeout(time.Second))
	assert.Equal(t, Stopped, s.Status().State)
}

func TestScheduler_waitWithoutStart(t *testing.T) {
	s := New(func(ctx context.Context) error { return nil }, Config{Frequency: time.Hour})
	assert.True(t, s.WaitTimeout(time.Second))
	assert.Equal(t, Idle, s.Status().State)
}

func TestScheduler_startTwice(t *testing.T) {
	clk := newManualClock(epoch)
	s := New(func(ctx context.Context) error { return nil }, Config{Frequency: time.Hour, Clock: clk.Clock()})
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	clk.next(t)
	s.Stop()
	require.True(t, s.WaitTimeout(2*time.Second))
}

func TestScheduler_triggerRunsEarly(t *testing.T) {
	clk := newManualClock(epoch)
	ran := make(chan struct{}, 1)
	s := New(func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}, Config{Frequency: time.Hour, Clock: clk.Clock(), Store: storeAt(t, epoch)})
	require.NoError(t, s.Start(context.Background()))
	w := clk.next(t)
	assert.Equal(t, time.Hour, w.d)

	s.Trigger()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not start a run")
	}
	clk.next(t)
	s.Stop()
	require.True(t, s.WaitTimeout(2*time.Second))
}

func storeAt(t *testing.T, last time.Time) state.Store {
	t.Helper()
	st := state.NewMemory()
	require.NoError(t, st.SetLastUpdate(context.Background(), last))
	return st
}

// failTwice drives an always-failing job through two failures and their
// cooldowns, leaving the worker at the wait that ends over the ceiling.
func failTwice(t *testing.T, policy FailurePolicy) (*Scheduler, *manualClock, *atomic.Int32, *metrics.Metrics) {
	t.Helper()
	clk := newManualClock(epoch)
	m := metrics.New()
	runs := &atomic.Int32{}
	s := New(func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("provider down")
	}, Config{Frequency: time.Hour, MaxFailures: 1, Policy: policy, Clock: clk.Clock(), Metrics: m})
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 2; i++ {
		w := clk.next(t)
		assert.Zero(t, w.d, "overdue run starts at once")
		clk.fire(w)
		w = clk.next(t)
		assert.Equal(t, DefaultCooldown, w.d)
		clk.fire(w)
	}
	require.EqualValues(t, 2, runs.Load())
	st := s.Status()
	assert.Equal(t, 2, st.Failures)
	assert.Equal(t, "provider down", st.LastError)
	assertGauge(t, m, "vodka_refresh_consecutive_failures", "Consecutive failed refresh cycles.", 2)
	return s, clk, runs, m
}

func assertGauge(t *testing.T, m *metrics.Metrics, name, help string, v float64) {
	t.Helper()
	want := fmt.Sprintf("# HELP %s %s\n# TYPE %s gauge\n%s %v\n", name, help, name, name, v)
	assert.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(want), name))
}

func TestScheduler_policyStop(t *testing.T) {
	s, clk, runs, _ := failTwice(t, PolicyStop)
	clk.fire(clk.next(t))
	require.True(t, s.WaitTimeout(2*time.Second))
	assert.Equal(t, Stopped, s.Status().State)
	assert.EqualValues(t, 2, runs.Load())
}

func TestScheduler_policyPause(t *testing.T) {
	s, clk, runs, _ := failTwice(t, PolicyPause)
	clk.fire(clk.next(t))

	w := clk.next(t)
	assert.Equal(t, time.Hour, w.d, "paused worker ticks at the full period")
	assert.Equal(t, "paused", s.Status().Label())
	clk.fire(w)
	clk.next(t)
	assert.EqualValues(t, 2, runs.Load(), "no runs while paused")

	s.Stop()
	require.True(t, s.WaitTimeout(2*time.Second))
	assert.Equal(t, "stopped", s.Status().Label())
}

func TestScheduler_policyResume(t *testing.T) {
	s, clk, runs, m := failTwice(t, PolicyResume)
	clk.fire(clk.next(t))

	w := clk.next(t)
	assert.Equal(t, time.Hour, w.d, "one period is skipped")
	assert.Equal(t, 0, s.Status().Failures)
	assertGauge(t, m, "vodka_refresh_consecutive_failures", "Consecutive failed refresh cycles.", 0)
	clk.fire(w)

	w = clk.next(t)
	assert.Equal(t, DefaultCooldown, w.d, "the next period runs again")
	assert.EqualValues(t, 3, runs.Load())
	assert.Equal(t, 1, s.Status().Failures)

	s.Stop()
	require.True(t, s.WaitTimeout(2*time.Second))
}

func TestScheduler_stopDuringCooldown(t *testing.T) {
	clk := newManualClock(epoch)
	s := New(func(ctx context.Context) error { return errors.New("boom") },
		Config{Frequency: time.Hour, Clock: clk.Clock()})
	require.NoError(t, s.Start(context.Background()))
	clk.fire(clk.next(t))
	w := clk.next(t)
	require.Equal(t, DefaultCooldown, w.d)

	s.Stop()
	require.True(t, s.WaitTimeout(2*time.Second))
	assert.Equal(t, Stopped, s.Status().State)
}

// blockingPager serves one full page, then blocks on the second until ctx ends.
type blockingPager struct {
	reached chan struct{}
}

func (b *blockingPager) ChannelPage(ctx context.Context, pageIndex, pageSize int) (provider.Page, error) {
	if pageIndex > 1 {
		close(b.reached)
		<-ctx.Done()
		return provider.Page{}, ctx.Err()
	}
	var objs []json.RawMessage
	for i := 0; i < pageSize; i++ {
		objs = append(objs, json.RawMessage(fmt.Sprintf(`{"id":"%d","name":"Channel %d"}`, i, i)))
	}
	return provider.Page{Objects: objs, Total: pageSize + 10}, nil
}

func (b *blockingPager) ProductPrices(ctx context.Context, ids []string) ([]provider.Price, error) {
	return nil, errors.New("unexpected entitlement call")
}

func (b *blockingPager) EPGMultiChannel(ctx context.Context, ids []string, w provider.EPGWindow) ([]byte, error) {
	return nil, errors.New("unexpected epg call")
}

func TestScheduler_stopDuringPaginationLeavesNoGuide(t *testing.T) {
	src := &blockingPager{reached: make(chan struct{})}
	pub := publish.New(memfs.New())
	exp := &export.Exporter{
		Source:    src,
		Publisher: pub,
		Opts: export.Options{
			Dir:            "/kodi/export",
			EPGName:        "epg.xml",
			AddonID:        "plugin.video.vodkatv",
			HasCredentials: true,
		},
	}
	store := state.NewMemory()
	clk := newManualClock(epoch)
	s := New(func(ctx context.Context) error {
		_, err := exp.ExportEPG(ctx, cache.NewFileLookup())
		return err
	}, Config{Frequency: time.Hour, Clock: clk.Clock(), Store: store})
	require.NoError(t, s.Start(context.Background()))
	clk.fire(clk.next(t))

	select {
	case <-src.reached:
	case <-time.After(2 * time.Second):
		t.Fatal("export never reached the second page")
	}
	assert.Equal(t, Running, s.Status().State)
	s.Stop()
	require.True(t, s.WaitTimeout(2*time.Second))

	st := s.Status()
	assert.Equal(t, Stopped, st.State)
	assert.Equal(t, 0, st.Failures, "cancellation is not a failure")
	_, err := pub.FS.Stat("/kodi/export/epg.xml")
	assert.Error(t, err, "no guide should be published")
	temps, err := pub.TempFiles("/kodi/export")
	require.NoError(t, err)
	assert.Empty(t, temps)
	last, err := store.LastUpdate(context.Background())
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}
