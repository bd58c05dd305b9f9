package export

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"

	"github.com/snapetech/vodka-export/internal/cache"
	"github.com/snapetech/vodka-export/internal/catalog"
	"github.com/snapetech/vodka-export/internal/deeplink"
	"github.com/snapetech/vodka-export/internal/indexer"
	"github.com/snapetech/vodka-export/internal/normalize"
	"github.com/snapetech/vodka-export/internal/xmltv"
)

// ExportEPG writes the XMLTV guide. lookup is filled with the entitled file of
// every channel and used for catch-up links; pass a fresh one per run.
//
// The guide is streamed into a temp file: channels first, then each EPG chunk
// as it arrives. Any fetch, parse or write error, or ctx cancellation, drops
// the temp file and leaves the previous guide in place.
func (e *Exporter) ExportEPG(ctx context.Context, lookup *cache.FileLookup) (res Result, err error) {
	ctx, span, res, started := e.begin(ctx, KindEPG)
	defer func() { e.finish(ctx, span, &res, started, err) }()

	dest, err := e.destination(e.Opts.EPGName)
	if err != nil {
		return res, err
	}
	res.Path = dest
	w := e.Opts.Window
	log.Printf("export: epg %s started (days %d..%d, utc%+d)", res.ID, w.FromDays, w.ToDays, w.UTCOffsetHours)

	channels, err := e.fetchChannels(ctx)
	if err != nil {
		return res, err
	}
	set, err := e.entitledSet(ctx, channels)
	if err != nil {
		return res, err
	}
	if lookup == nil {
		lookup = cache.NewFileLookup()
	}
	lookup.Populate(channels, set.Has)

	pend, err := e.Publisher.Begin(dest)
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			_ = pend.Abort()
		}
	}()

	xw := xmltv.NewWriter(pend, e.Opts.Lang)
	if err = xw.Begin(xmltv.Generator{Name: e.Opts.AddonName, URL: e.links().Root()}); err != nil {
		return res, err
	}
	var epgIDs []string
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if err = ctx.Err(); err != nil {
			return res, err
		}
		if _, dup := seen[ch.EPGID]; dup {
			continue
		}
		seen[ch.EPGID] = struct{}{}
		epgIDs = append(epgIDs, ch.EPGID)
		if err = xw.WriteChannel(xmltv.Channel{ID: ch.EPGID, DisplayName: ch.Name, Icon: ch.Logo()}); err != nil {
			return res, err
		}
	}
	res.Channels = xw.Channels

	chunkSize := e.Opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = indexer.DefaultChunkSize
	}
	links := e.links()
	for i, chunk := range indexer.Chunk(epgIDs, chunkSize) {
		if err = ctx.Err(); err != nil {
			return res, err
		}
		var batch []catalog.ChannelPrograms
		batch, err = e.fetchEPGChunk(ctx, i, chunk, w)
		if err != nil {
			return res, err
		}
		for _, cp := range batch {
			for _, p := range cp.Programs {
				var prog xmltv.Programme
				prog, err = buildProgramme(p, lookup, links)
				if err != nil {
					return res, err
				}
				if err = xw.WriteProgramme(prog); err != nil {
					return res, err
				}
			}
		}
	}
	if err = ctx.Err(); err != nil {
		return res, err
	}
	if err = xw.End(); err != nil {
		return res, err
	}
	res.Programmes = xw.Programmes
	res.Bytes = pend.Written()
	if err = pend.Commit(); err != nil {
		return res, err
	}
	log.Printf("export: epg %s wrote %d channels, %d programmes (%d bytes) to %s",
		res.ID, res.Channels, res.Programmes, res.Bytes, dest)
	return res, nil
}

func (e *Exporter) fetchEPGChunk(ctx context.Context, n int, ids []string, w indexer.Window) ([]catalog.ChannelPrograms, error) {
	ctx, span := e.tracer().Start(ctx, "export.fetch_epg")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk", n), attribute.Int("ids", len(ids)))
	batch, err := indexer.FetchEPG(ctx, e.Source, ids, w)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("epg chunk %d: %w", n, err)
	}
	return batch, nil
}

// buildProgramme maps one provider programme onto its XMLTV element.
func buildProgramme(p catalog.Program, lookup *cache.FileLookup, links deeplink.Builder) (xmltv.Programme, error) {
	start, err := normalize.ParseProviderTime(p.Start)
	if err != nil {
		return xmltv.Programme{}, fmt.Errorf("programme %s start: %w", p.ID, err)
	}
	stop, err := normalize.ParseProviderTime(p.End)
	if err != nil {
		return xmltv.Programme{}, fmt.Errorf("programme %s stop: %w", p.ID, err)
	}
	f := normalize.Fields(p)
	out := xmltv.Programme{
		Start:      start.XMLTV,
		Stop:       stop.XMLTV,
		Channel:    p.EPGChannelID,
		Title:      p.Name,
		Desc:       p.Description,
		Date:       f.Year,
		Categories: f.Genres,
		Countries:  f.Countries,
		Actors:     f.Actors,
		Directors:  f.Directors,
		Icon:       f.Image,
		SubTitle:   f.EpisodeName,
	}
	if ep, ok := normalize.EpisodeNum(f.Season, f.Episode); ok {
		out.EpisodeNum = ep
	}
	if f.Catchup() {
		if fileID, ok := lookup.FileID(p.EPGChannelID); ok {
			out.CatchupID = links.CatchupURL(deeplink.Catchup{
				ProgramID:   p.ID,
				FileID:      fileID,
				Start:       start.Unix,
				End:         stop.Unix,
				Recordable:  f.Recordable,
				Restartable: f.Restartable,
			})
		}
	}
	return out, nil
}
