// Package export runs the fetch, normalize and publish pipeline that turns the
// provider catalog into an M3U playlist and an XMLTV guide. The same pipeline
// serves foreground exports and the background refresh loop.
package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/snapetech/vodka-export/internal/catalog"
	"github.com/snapetech/vodka-export/internal/deeplink"
	"github.com/snapetech/vodka-export/internal/entitlement"
	"github.com/snapetech/vodka-export/internal/indexer"
	"github.com/snapetech/vodka-export/internal/metrics"
	"github.com/snapetech/vodka-export/internal/publish"
	"github.com/snapetech/vodka-export/internal/state"
)

const (
	KindEPG      = "epg"
	KindChannels = "channels"
)

var (
	// ErrExportPath means the export directory or file name is unset or the
	// directory cannot be created.
	ErrExportPath = errors.New("export path not configured or not creatable")
	// ErrCredentials means the account username or password is missing.
	ErrCredentials = errors.New("credentials missing")
	// ErrConfig means a setting the export needs, such as the EPG window, is unset.
	ErrConfig = errors.New("export settings incomplete")
)

// Source is everything the pipeline needs from the provider.
type Source interface {
	indexer.ChannelPager
	indexer.EPGSource
	entitlement.PriceSource
}

// Options configures an Exporter.
type Options struct {
	Dir          string
	EPGName      string
	ChannelsName string

	AddonID   string
	AddonName string
	Lang      string
	Group     string

	Window    indexer.Window
	ChunkSize int

	// HasCredentials reports whether username and password are configured.
	HasCredentials bool
}

// Result describes one finished export.
type Result struct {
	ID         string
	Kind       string
	Path       string
	Channels   int
	Programmes int
	Bytes      int64
	Duration   time.Duration
}

// Exporter runs exports. Metrics and History may be nil.
type Exporter struct {
	Source    Source
	Publisher *publish.Publisher
	Opts      Options
	Metrics   *metrics.Metrics
	History   state.Store
	Tracer    trace.Tracer
}

func (e *Exporter) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return otel.Tracer("github.com/snapetech/vodka-export/internal/export")
}

func (e *Exporter) links() deeplink.Builder {
	return deeplink.Builder{AddonID: e.Opts.AddonID}
}

// CheckDestination runs the same path and credential checks as an export of
// the named artifact without fetching anything.
func (e *Exporter) CheckDestination(name string) error {
	_, err := e.destination(name)
	return err
}

// destination checks credentials and the export path, creating the
// directory when needed.
func (e *Exporter) destination(name string) (string, error) {
	dir := strings.TrimSpace(e.Opts.Dir)
	name = strings.TrimSpace(name)
	if dir == "" || name == "" {
		return "", ErrExportPath
	}
	if !e.Opts.HasCredentials {
		return "", ErrCredentials
	}
	if err := e.Publisher.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExportPath, err)
	}
	return filepath.Join(dir, name), nil
}

// begin starts a run: span, id and start time.
func (e *Exporter) begin(ctx context.Context, kind string) (context.Context, trace.Span, Result, time.Time) {
	res := Result{ID: uuid.NewString(), Kind: kind}
	ctx, span := e.tracer().Start(ctx, "export."+kind, trace.WithAttributes(attribute.String("export.id", res.ID)))
	return ctx, span, res, time.Now()
}

// finish records the outcome of a run everywhere it is observed.
func (e *Exporter) finish(ctx context.Context, span trace.Span, res *Result, started time.Time, err error) {
	res.Duration = time.Since(started)
	defer span.End()
	span.SetAttributes(
		attribute.Int("export.channels", res.Channels),
		attribute.Int("export.programmes", res.Programmes),
		attribute.Int64("export.bytes", res.Bytes),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.Metrics.ObserveCycle(res.Kind, res.Duration, err)
	if err == nil {
		e.Metrics.SetItems(res.Kind, "channels", res.Channels)
		if res.Kind == KindEPG {
			e.Metrics.SetItems(res.Kind, "programmes", res.Programmes)
		}
		e.Metrics.SetBytes(res.Kind, res.Bytes)
	}
	if e.History != nil {
		c := state.Cycle{
			ID:         res.ID,
			Kind:       res.Kind,
			Started:    started,
			Finished:   started.Add(res.Duration),
			OK:         err == nil,
			Channels:   res.Channels,
			Programmes: res.Programmes,
		}
		if err != nil {
			c.Error = err.Error()
		}
		// The run context may already be cancelled; history is still worth keeping.
		if herr := e.History.RecordCycle(context.WithoutCancel(ctx), c); herr != nil {
			log.Printf("export: record %s cycle %s: %v", res.Kind, res.ID, herr)
		}
	}
}

// entitledSet resolves entitlements for every playable file of channels.
func (e *Exporter) entitledSet(ctx context.Context, channels []catalog.Channel) (entitlement.Set, error) {
	ctx, span := e.tracer().Start(ctx, "export.entitlements")
	defer span.End()
	var ids []string
	seen := make(map[string]struct{})
	for _, ch := range channels {
		for _, f := range ch.PlayableFiles() {
			if _, ok := seen[f.ID]; ok {
				continue
			}
			seen[f.ID] = struct{}{}
			ids = append(ids, f.ID)
		}
	}
	set, err := entitlement.FilterAvailable(ctx, e.Source, ids)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("files.queried", len(ids)), attribute.Int("files.available", len(set)))
	return set, nil
}

func (e *Exporter) fetchChannels(ctx context.Context) ([]catalog.Channel, error) {
	ctx, span := e.tracer().Start(ctx, "export.fetch_channels")
	defer span.End()
	channels, err := indexer.FetchChannels(ctx, e.Source)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("channels", len(channels)))
	return channels, nil
}
