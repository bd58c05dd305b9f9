package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/avfs/avfs"
	"go.opentelemetry.io/otel"

	"github.com/snapetech/vodka-export/internal/cache"
	"github.com/snapetech/vodka-export/internal/config"
	"github.com/snapetech/vodka-export/internal/export"
	"github.com/snapetech/vodka-export/internal/health"
	"github.com/snapetech/vodka-export/internal/httpclient"
	"github.com/snapetech/vodka-export/internal/metrics"
	"github.com/snapetech/vodka-export/internal/provider"
	"github.com/snapetech/vodka-export/internal/publish"
	"github.com/snapetech/vodka-export/internal/refresh"
	"github.com/snapetech/vodka-export/internal/safeurl"
	"github.com/snapetech/vodka-export/internal/state"
	"github.com/snapetech/vodka-export/internal/status"
)

const tracerName = "github.com/snapetech/vodka-export"

// errServiceDisabled means the background refresh was refused by configuration.
var errServiceDisabled = errors.New("service disabled by configuration")

// app is the wired process: provider session, exporter, state and metrics.
type app struct {
	cfg      *config.Config
	client   *provider.Client
	metrics  *metrics.Metrics
	store    state.Store
	exporter *export.Exporter
	now      func() time.Time
}

// newApp validates cfg and wires every component. vfs is where exports are
// written; nil means the host filesystem.
func newApp(cfg *config.Config, vfs avfs.VFS) (*app, error) {
	if err := cfg.ValidateGateways(); err != nil {
		return nil, err
	}
	session, err := httpclient.NewSession(cfg.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("http session: %w", err)
	}
	client := &provider.Client{
		PhoenixURL:  cfg.PhoenixURL,
		JSONPostURL: cfg.JSONPostURL,
		KS:          cfg.KSToken,
		Init:        cfg.InitObj(),
		Platform:    cfg.Platform,
		UserAgent:   cfg.UserAgent,
		HTTP:        session,
		Limiter:     httpclient.NewHostLimiter(cfg.RequestRate, cfg.RequestBurst),
	}
	store, err := openStore(cfg.StateDB)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	a := &app{cfg: cfg, client: client, metrics: m, store: store, now: time.Now}
	a.exporter = &export.Exporter{
		Source:    export.Instrument(client, m),
		Publisher: publish.New(vfs),
		Opts: export.Options{
			Dir:            cfg.ExportDir,
			EPGName:        cfg.EPGName,
			ChannelsName:   cfg.ChannelsName,
			AddonID:        cfg.AddonID,
			AddonName:      cfg.AddonName,
			Lang:           cfg.Lang,
			Group:          cfg.GroupTitle,
			ChunkSize:      cfg.EPGChunkSize,
			HasCredentials: cfg.HasCredentials(),
		},
		Metrics: m,
		History: store,
		Tracer:  otel.Tracer(tracerName),
	}
	return a, nil
}

func openStore(path string) (state.Store, error) {
	if path == "" {
		return state.NewMemory(), nil
	}
	st, err := state.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", path, err)
	}
	return st, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// exportEPG runs one guide export with a fresh lookup.
func (a *app) exportEPG(ctx context.Context) (export.Result, error) {
	if !a.cfg.EPGWindowSet {
		if err := a.exporter.CheckDestination(a.exporter.Opts.EPGName); err != nil {
			return export.Result{}, err
		}
		return export.Result{}, fmt.Errorf("%w: EPG window not set (VODKA_EPG_FROM_DAYS, VODKA_EPG_TO_DAYS)", export.ErrConfig)
	}
	a.exporter.Opts.Window = a.cfg.EPGWindow(a.now())
	res, err := a.exporter.ExportEPG(ctx, cache.NewFileLookup())
	if err != nil {
		return res, err
	}
	if a.cfg.EPGNotify {
		log.Printf("export: %s", export.NoticeEPGOK)
	}
	return res, nil
}

// foregroundEPG is the on-demand guide export. The last update time belongs
// to the scheduler and is left alone here.
func (a *app) foregroundEPG(ctx context.Context) (export.Result, error) {
	return a.exportEPG(ctx)
}

// newScheduler builds the refresh worker around exportEPG.
func (a *app) newScheduler() (*refresh.Scheduler, error) {
	policy, err := refresh.ParsePolicy(a.cfg.FailurePolicy)
	if err != nil {
		return nil, err
	}
	job := func(ctx context.Context) error {
		_, err := a.exportEPG(ctx)
		return err
	}
	return refresh.New(job, refresh.Config{
		Frequency:   a.cfg.Frequency(),
		MaxFailures: a.cfg.MaxFailures,
		Policy:      policy,
		Store:       a.store,
		Metrics:     a.metrics,
	}), nil
}

// staleTempAge is how old a temp file must be before the service treats it
// as left over from a crashed export.
const staleTempAge = time.Hour

func (a *app) sweepTemps() {
	dir := a.exporter.Opts.Dir
	if strings.TrimSpace(dir) == "" {
		return
	}
	removed, err := a.exporter.Publisher.SweepTemps(dir, a.now().Add(-staleTempAge))
	for _, name := range removed {
		log.Printf("service: removed stale temp file %s", name)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("service: sweep temp files in %s: %v", dir, err)
	}
}

// runService runs the refresh worker and, when configured, the status server
// until ctx is cancelled.
func (a *app) runService(ctx context.Context) error {
	if blockers := a.cfg.ServiceBlockers(); len(blockers) > 0 {
		for _, b := range blockers {
			log.Printf("service: won't start: %s", b)
		}
		return fmt.Errorf("%w: %s", errServiceDisabled, strings.Join(blockers, "; "))
	}
	sched, err := a.newScheduler()
	if err != nil {
		return err
	}
	for _, gw := range []string{a.cfg.PhoenixURL, a.cfg.JSONPostURL} {
		if err := health.CheckGateway(ctx, a.client.HTTP, gw); err != nil {
			log.Printf("service: gateway check %s: %v (continuing)", safeurl.RedactURL(gw), err)
		}
	}
	a.sweepTemps()
	log.Printf("service: EPG refresh every %s (days -%d..+%d, policy %s after %d failures)",
		a.cfg.Frequency(), a.cfg.EPGFromDays, a.cfg.EPGToDays, a.cfg.FailurePolicy, a.cfg.MaxFailures)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	statusDone := make(chan struct{})
	if a.cfg.StatusAddr != "" {
		srv := &status.Server{
			Addr:      a.cfg.StatusAddr,
			Scheduler: sched,
			History:   a.store,
			Metrics:   a.metrics,
			Publisher: a.exporter.Publisher,
			Artifacts: map[string]string{
				a.cfg.EPGName:      a.cfg.ExportPath(a.cfg.EPGName),
				a.cfg.ChannelsName: a.cfg.ExportPath(a.cfg.ChannelsName),
			},
		}
		go func() {
			defer close(statusDone)
			if err := srv.Run(ctx); err != nil {
				log.Printf("service: status server: %v", err)
			}
		}()
	} else {
		close(statusDone)
	}

	<-ctx.Done()
	log.Print("service: shutting down")
	sched.Stop()
	sched.Wait()
	<-statusDone
	return nil
}

// probe checks both gateways, or the given URLs, and reports reachability.
func probe(ctx context.Context, cfg *config.Config, urls []string) []provider.Result {
	var targets []provider.Target
	if len(urls) > 0 {
		for _, u := range urls {
			targets = append(targets, provider.Target{Name: u, URL: u})
		}
	} else {
		targets = []provider.Target{
			{Name: "phoenix", URL: cfg.PhoenixURL},
			{Name: "jsonpost", URL: cfg.JSONPostURL},
		}
	}
	return provider.ProbeAll(ctx, targets, httpclient.WithTimeout(cfg.HTTPTimeout))
}
