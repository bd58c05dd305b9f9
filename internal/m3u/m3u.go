// Package m3u writes the extended M3U playlist consumed by the PVR client.
package m3u

import (
	"bufio"
	"io"
	"strings"
)

// Header opens every playlist.
const Header = "#EXTM3U"

// Entry is one playable channel.
type Entry struct {
	TVGID string
	Name  string
	Logo  string
	Group string
	URL   string
}

// Writer emits the header on first use, then one EXTINF block per entry.
type Writer struct {
	w       *bufio.Writer
	started bool
	Entries int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (m *Writer) header() error {
	if m.started {
		return nil
	}
	m.started = true
	_, err := m.w.WriteString(Header + "\n\n")
	return err
}

// Write appends e as an #EXTINF line, the URL line and a blank line.
func (m *Writer) Write(e Entry) error {
	if err := m.header(); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(`#EXTINF:-1 tvg-id="`)
	b.WriteString(attr(e.TVGID))
	b.WriteString(`" tvg-name="`)
	b.WriteString(attr(e.Name))
	b.WriteString(`" tvg-logo="`)
	b.WriteString(attr(e.Logo))
	b.WriteString(`" group-title="`)
	b.WriteString(attr(e.Group))
	b.WriteString(`" catchup="vod",`)
	b.WriteString(line(e.Name))
	b.WriteByte('\n')
	b.WriteString(line(e.URL))
	b.WriteString("\n\n")
	if _, err := m.w.WriteString(b.String()); err != nil {
		return err
	}
	m.Entries++
	return nil
}

// Close writes the header if nothing was written and flushes.
func (m *Writer) Close() error {
	if err := m.header(); err != nil {
		return err
	}
	return m.w.Flush()
}

// attr keeps a value inside its double quotes on one line.
func attr(s string) string {
	return strings.ReplaceAll(line(s), `"`, "'")
}

func line(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(strings.TrimSpace(s))
}
