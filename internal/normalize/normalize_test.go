package normalize

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/snapetech/vodka-export/internal/catalog"
)

func TestParseProviderTime_bothPaths(t *testing.T) {
	const in = "09/08/2023 14:45:00"
	want := Timestamp{XMLTV: "20230809144500 +0000", Unix: 1691592300}

	got, err := ParseProviderTime(in)
	if err != nil {
		t.Fatalf("ParseProviderTime: %v", err)
	}
	if got != want {
		t.Errorf("ParseProviderTime(%q) = %+v, want %+v", in, got, want)
	}

	primary, err := parseLayout(in)
	if err != nil {
		t.Fatalf("parseLayout: %v", err)
	}
	fallback, err := parseFallback(in)
	if err != nil {
		t.Fatalf("parseFallback: %v", err)
	}
	if primary != want || fallback != want {
		t.Errorf("primary = %+v, fallback = %+v, want %+v", primary, fallback, want)
	}
}

func TestParseProviderTime_pathsAgree(t *testing.T) {
	for _, in := range []string{
		"01/01/1970 00:00:00",
		"29/02/2024 23:59:59",
		"31/12/2023 12:00:00",
		"14/08/2023 21:45:00",
	} {
		p, err := parseLayout(in)
		if err != nil {
			t.Fatalf("parseLayout(%q): %v", in, err)
		}
		f, err := parseFallback(in)
		if err != nil {
			t.Fatalf("parseFallback(%q): %v", in, err)
		}
		if p != f {
			t.Errorf("%q: primary %+v != fallback %+v", in, p, f)
		}
	}
}

func TestParseProviderTime_fallbackOnTrailingText(t *testing.T) {
	// The layout parser rejects trailing text; the positional parser anchors at the start only.
	got, err := ParseProviderTime("09/08/2023 14:45:00.000")
	if err != nil {
		t.Fatalf("ParseProviderTime: %v", err)
	}
	if got.Unix != 1691592300 {
		t.Errorf("Unix = %d", got.Unix)
	}
}

func TestParseProviderTime_invalid(t *testing.T) {
	for _, in := range []string{"", "2023-08-09 14:45:00", "31/02/2023 10:00:00", "9/8/2023 14:45:00"} {
		_, err := ParseProviderTime(in)
		var te *TimeError
		if !errors.As(err, &te) {
			t.Errorf("ParseProviderTime(%q) err = %v, want *TimeError", in, err)
		}
	}
}

func TestExtractTag_firstMatchWins(t *testing.T) {
	tags := []catalog.Tag{{Key: "genre", Value: "drama"}, {Key: "genre", Value: "crime"}}
	v, ok := ExtractTag(tags, "genre")
	if !ok || v != "drama" {
		t.Errorf("ExtractTag = %q, %v", v, ok)
	}
	if _, ok := ExtractTag(tags, "year"); ok {
		t.Error("ExtractTag should miss absent key")
	}
	if _, ok := ExtractTag(nil, "genre"); ok {
		t.Error("ExtractTag on nil should miss")
	}
}

func TestEpisodeNum(t *testing.T) {
	tests := []struct {
		season, episode string
		want            string
		ok              bool
	}{
		{"2", "5", "1.4.", true},
		{"1", "1", "0.0.", true},
		{"2", "", "", false},
		{"", "5", "", false},
		{"x", "5", "", false},
	}
	for _, tt := range tests {
		got, ok := EpisodeNum(tt.season, tt.episode)
		if got != tt.want || ok != tt.ok {
			t.Errorf("EpisodeNum(%q, %q) = %q, %v; want %q, %v", tt.season, tt.episode, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFields(t *testing.T) {
	p := catalog.Program{
		Meta: []catalog.Tag{
			{Key: "season number", Value: "2"},
			{Key: "episode num", Value: "5"},
			{Key: "episode name", Value: "Pilot"},
		},
		Tags: []catalog.Tag{
			{Key: "genre", Value: "drama"},
			{Key: "actors", Value: "A"},
			{Key: "actors", Value: "B"},
			{Key: "director", Value: "D"},
			{Key: "country of production", Value: "HU"},
			{Key: "flags", Value: "w_restart=1"},
		},
		Pictures: []catalog.Picture{
			{URL: "small", Width: 320, Height: 180},
			{URL: "big-other", Width: 1280, Height: 720, Ratio: "16:9"},
			{URL: "big-bg", Width: 1280, Height: 720, Ratio: "bg"},
		},
	}
	want := ProgramFields{
		Year:        DefaultYear,
		Season:      "2",
		Episode:     "5",
		EpisodeName: "Pilot",
		Genres:      []string{"drama"},
		Countries:   []string{"HU"},
		Actors:      []string{"A", "B"},
		Directors:   []string{"D"},
		Restartable: true,
		Image:       "big-bg",
	}
	got := Fields(p)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}
	if !got.Catchup() {
		t.Error("Catchup() should be true for restartable programme")
	}
}
