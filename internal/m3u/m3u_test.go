package m3u

import (
	"bytes"
	"testing"
)

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	entries := []Entry{
		{TVGID: "e1", Name: "M1", Logo: "http://img/m1.png", Group: "vodkatv", URL: "plugin://a/?action=play_channel&pvr=.pvr"},
		{TVGID: "e2", Name: `Say "Hi", TV` + "\n", Group: "vodkatv", URL: "plugin://a/?x=1"},
	}
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	want := "#EXTM3U\n\n" +
		`#EXTINF:-1 tvg-id="e1" tvg-name="M1" tvg-logo="http://img/m1.png" group-title="vodkatv" catchup="vod",M1` + "\n" +
		"plugin://a/?action=play_channel&pvr=.pvr\n\n" +
		`#EXTINF:-1 tvg-id="e2" tvg-name="Say 'Hi', TV" tvg-logo="" group-title="vodkatv" catchup="vod",Say "Hi", TV` + "\n" +
		"plugin://a/?x=1\n\n"
	if got := buf.String(); got != want {
		t.Errorf("playlist mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
	if w.Entries != 2 {
		t.Errorf("Entries = %d", w.Entries)
	}
}

func TestWriter_emptyPlaylist(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "#EXTM3U\n\n" {
		t.Errorf("got %q", buf.String())
	}
}
