package export

import (
	"context"
	"io"
	"log"

	"github.com/snapetech/vodka-export/internal/catalog"
	"github.com/snapetech/vodka-export/internal/deeplink"
	"github.com/snapetech/vodka-export/internal/m3u"
)

// DefaultGroup is the playlist group-title when none is configured.
const DefaultGroup = "vodkatv"

// ExportChannels writes the M3U playlist of every channel with an entitled
// playable file, sorted by channel number. Channels without one are left out.
func (e *Exporter) ExportChannels(ctx context.Context) (res Result, err error) {
	ctx, span, res, started := e.begin(ctx, KindChannels)
	defer func() { e.finish(ctx, span, &res, started, err) }()

	dest, err := e.destination(e.Opts.ChannelsName)
	if err != nil {
		return res, err
	}
	res.Path = dest

	channels, err := e.fetchChannels(ctx)
	if err != nil {
		return res, err
	}
	catalog.SortByNumber(channels)
	set, err := e.entitledSet(ctx, channels)
	if err != nil {
		return res, err
	}

	group := e.Opts.Group
	if group == "" {
		group = DefaultGroup
	}
	links := e.links()
	skipped := 0
	err = e.Publisher.Publish(dest, func(w io.Writer) error {
		cw := &countingWriter{w: w}
		mw := m3u.NewWriter(cw)
		for _, ch := range channels {
			if err := ctx.Err(); err != nil {
				return err
			}
			fileID, ok := ch.EntitledFile(set.Has)
			if !ok {
				skipped++
				continue
			}
			logo := ch.Logo()
			url := links.ChannelURL(deeplink.Channel{ID: ch.ID, Name: ch.Name, Icon: logo, FileID: fileID})
			if err := mw.Write(m3u.Entry{TVGID: ch.EPGID, Name: ch.Name, Logo: logo, Group: group, URL: url}); err != nil {
				return err
			}
		}
		if err := mw.Close(); err != nil {
			return err
		}
		res.Channels = mw.Entries
		res.Bytes = cw.n
		return nil
	})
	if err != nil {
		return res, err
	}
	log.Printf("export: channels %s wrote %d channels (%d without entitlement skipped) to %s",
		res.ID, res.Channels, skipped, dest)
	return res, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
