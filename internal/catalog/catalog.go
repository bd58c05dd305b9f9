package catalog

import (
	"sort"
	"strconv"
	"strings"
)

// Meta keys the provider uses on channel assets.
const (
	MetaChannelNumber = "Channel number"
	MetaEPGGUID       = "EPG_GUID_ID"
)

// LogoRatio is the preferred channel image aspect ratio.
const LogoRatio = "16:10"

// AcceptedFileTypes lists the media file type tags a web client may play, best first.
var AcceptedFileTypes = []string{"Web_Secondary_HD", "Web_Secondary_SD"}

// Image is a channel artwork URL tagged with its aspect ratio.
type Image struct {
	Ratio string `json:"ratio"`
	URL   string `json:"url"`
}

// MediaFile is one candidate playable file of a channel.
type MediaFile struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Channel is a read-only snapshot of a live channel asset.
// EPGID falls back to ID when the provider sends no EPG_GUID_ID meta.
type Channel struct {
	ID     string            `json:"id"`
	EPGID  string            `json:"epg_id"`
	Name   string            `json:"name"`
	Images []Image           `json:"images,omitempty"`
	Files  []MediaFile       `json:"files,omitempty"`
	Metas  map[string]string `json:"metas,omitempty"`
}

// Number returns the "Channel number" meta as an int; missing or invalid is 0.
func (c Channel) Number() int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Metas[MetaChannelNumber]))
	if err != nil {
		return 0
	}
	return n
}

// Logo returns the 16:10 image URL, else the first image, else "".
func (c Channel) Logo() string {
	if len(c.Images) == 0 {
		return ""
	}
	for _, img := range c.Images {
		if img.Ratio == LogoRatio {
			return img.URL
		}
	}
	return c.Images[0].URL
}

// PlayableFiles returns the files whose type is accepted, HD variants first.
// The order among files of equal rank is kept.
func (c Channel) PlayableFiles() []MediaFile {
	var out []MediaFile
	for _, f := range c.Files {
		if isAcceptedType(f.Type) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return hdRank(out[i].Type) > hdRank(out[j].Type)
	})
	return out
}

// PreferredFile returns the best accepted file id, ignoring entitlements.
func (c Channel) PreferredFile() (string, bool) {
	files := c.PlayableFiles()
	if len(files) == 0 {
		return "", false
	}
	return files[0].ID, true
}

// EntitledFile returns the best accepted file id that is present in available.
func (c Channel) EntitledFile(available func(fileID string) bool) (string, bool) {
	for _, f := range c.PlayableFiles() {
		if available(f.ID) {
			return f.ID, true
		}
	}
	return "", false
}

func isAcceptedType(t string) bool {
	for _, a := range AcceptedFileTypes {
		if t == a {
			return true
		}
	}
	return false
}

// hdRank mirrors a "position of hd in the lowercased type" sort key:
// later "hd" ranks higher, absent ranks lowest.
func hdRank(t string) int {
	return strings.Index(strings.ToLower(t), "hd")
}

// SortByNumber sorts channels by channel number in place (stable).
func SortByNumber(channels []Channel) {
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].Number() < channels[j].Number()
	})
}

// Tag is a provider key/value pair used for both programme tags and metas.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Picture is a programme image.
type Picture struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Ratio  string `json:"ratio"`
}

// Program is one EPG entry. Start and End keep the provider's
// DD/MM/YYYY HH:MM:SS wall-clock text; see the normalize package.
type Program struct {
	ID           string
	EPGChannelID string
	Start        string
	End          string
	Name         string
	Description  string
	Tags         []Tag
	Meta         []Tag
	Pictures     []Picture
}

// ChannelPrograms groups the programmes returned for one EPG channel id.
type ChannelPrograms struct {
	EPGChannelID string
	Programs     []Program
}
