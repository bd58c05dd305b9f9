// Package deeplink builds plugin:// URLs that route back into the addon's
// action dispatcher. Query parameters keep insertion order: the host only
// treats an item as a PVR stream when pvr=.pvr is the final parameter.
package deeplink

import (
	"net/url"
	"strconv"
	"strings"
)

// Actions understood by the addon's router.
const (
	ActionPlayChannel = "play_channel"
	ActionPlayCatchup = "play_catchup"
)

// Query is an ordered list of query parameters.
type Query struct {
	keys []string
	vals []string
}

// Add appends key=value. Empty values are kept.
func (q *Query) Add(key, value string) *Query {
	q.keys = append(q.keys, key)
	q.vals = append(q.vals, value)
	return q
}

// Encode renders the parameters in insertion order.
func (q *Query) Encode() string {
	var b strings.Builder
	for i, k := range q.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.vals[i]))
	}
	return b.String()
}

// Builder renders deep links for one addon id.
type Builder struct {
	AddonID string
}

// Root is the addon's base URL, e.g. plugin://plugin.video.vodkatv/.
func (b Builder) Root() string {
	return "plugin://" + b.AddonID + "/"
}

// URL joins the addon root with q. When pvr is true, pvr=.pvr is appended last.
func (b Builder) URL(q *Query, pvr bool) string {
	if pvr {
		q.Add("pvr", ".pvr")
	}
	return b.Root() + "?" + q.Encode()
}

// Channel is the playback link for a live channel.
type Channel struct {
	ID     string
	Name   string
	Icon   string
	FileID string
}

// ChannelURL links to live playback of ch's entitled file.
func (b Builder) ChannelURL(ch Channel) string {
	q := &Query{}
	q.Add("action", ActionPlayChannel).
		Add("name", ch.Name).
		Add("icon", ch.Icon).
		Add("id", ch.ID).
		Add("extra", ch.FileID)
	return b.URL(q, true)
}

// Catchup identifies a past or restartable programme.
type Catchup struct {
	ProgramID   string
	FileID      string
	Start       int64
	End         int64
	Recordable  bool
	Restartable bool
}

// CatchupURL links to catch-up playback of a programme.
func (b Builder) CatchupURL(c Catchup) string {
	q := &Query{}
	q.Add("action", ActionPlayCatchup).
		Add("id", c.ProgramID).
		Add("cid", c.FileID).
		Add("start", strconv.FormatInt(c.Start, 10)).
		Add("end", strconv.FormatInt(c.End, 10)).
		Add("rec", flag(c.Recordable)).
		Add("res", flag(c.Restartable))
	return b.URL(q, false)
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
