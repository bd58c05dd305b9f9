package normalize

import (
	"sort"
	"strconv"
	"strings"

	"github.com/snapetech/vodka-export/internal/catalog"
)

// Tag and meta keys used by the EPG endpoint.
const (
	MetaYear        = "year"
	MetaEpisode     = "episode num"
	MetaSeason      = "season number"
	MetaEpisodeName = "episode name"

	TagGenre    = "genre"
	TagCountry  = "country of production"
	TagActors   = "actors"
	TagDirector = "director"
)

// Content flag values carried in programme tags.
const (
	RecordableMarker  = "w_npvr=1"
	RestartableMarker = "w_restart=1"
)

// DefaultYear is emitted as <date> when the programme has no year meta.
const DefaultYear = "1970"

// ExtractTag returns the value of the first pair whose key matches.
func ExtractTag(tags []catalog.Tag, key string) (string, bool) {
	for _, t := range tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// ExtractAll returns every value stored under key, in order.
func ExtractAll(tags []catalog.Tag, key string) []string {
	var out []string
	for _, t := range tags {
		if t.Key == key {
			out = append(out, t.Value)
		}
	}
	return out
}

// HasValue reports whether any pair carries value, whatever its key.
func HasValue(tags []catalog.Tag, value string) bool {
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t.Value), value) {
			return true
		}
	}
	return false
}

// ProgramFields is the typed view of a programme's tags and metas.
type ProgramFields struct {
	Year        string
	Season      string
	Episode     string
	EpisodeName string
	Genres      []string
	Countries   []string
	Actors      []string
	Directors   []string
	Recordable  bool
	Restartable bool
	Image       string
}

// Fields extracts everything the XMLTV exporter needs from p.
func Fields(p catalog.Program) ProgramFields {
	f := ProgramFields{
		Genres:      ExtractAll(p.Tags, TagGenre),
		Countries:   ExtractAll(p.Tags, TagCountry),
		Actors:      ExtractAll(p.Tags, TagActors),
		Directors:   ExtractAll(p.Tags, TagDirector),
		Recordable:  HasValue(p.Tags, RecordableMarker),
		Restartable: HasValue(p.Tags, RestartableMarker),
		Image:       BestPicture(p.Pictures),
	}
	f.Year = DefaultYear
	if y, ok := ExtractTag(p.Meta, MetaYear); ok && y != "" {
		f.Year = y
	}
	f.Season, _ = ExtractTag(p.Meta, MetaSeason)
	f.Episode, _ = ExtractTag(p.Meta, MetaEpisode)
	f.EpisodeName, _ = ExtractTag(p.Meta, MetaEpisodeName)
	return f
}

// Catchup reports whether a catch-up link should be attached.
func (f ProgramFields) Catchup() bool {
	return f.Recordable || f.Restartable
}

// EpisodeNum renders the zero-based xmltv_ns value "S-1.E-1.". It returns
// false when either number is missing or not an integer.
func EpisodeNum(season, episode string) (string, bool) {
	s, err := strconv.Atoi(strings.TrimSpace(season))
	if err != nil {
		return "", false
	}
	e, err := strconv.Atoi(strings.TrimSpace(episode))
	if err != nil {
		return "", false
	}
	return strconv.Itoa(s-1) + "." + strconv.Itoa(e-1) + ".", true
}

// BestPicture picks the widest, then tallest picture, preferring ratio "bg" on ties.
func BestPicture(pics []catalog.Picture) string {
	if len(pics) == 0 {
		return ""
	}
	sorted := make([]catalog.Picture, len(pics))
	copy(sorted, pics)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Width != b.Width {
			return a.Width > b.Width
		}
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		return a.Ratio == "bg" && b.Ratio != "bg"
	})
	return sorted[0].URL
}
