package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a provider payload that is missing a required field or
// cannot be decoded into the typed entity.
type ParseError struct {
	Entity string // "channel", "programme", ...
	ID     string // best-effort identifier of the offending object
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse " + e.Entity
	if e.ID != "" {
		msg += " " + strconv.Quote(e.ID)
	}
	if e.Field != "" {
		msg += ": missing " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// flexString accepts a JSON string, number or bool and keeps its text form.
// The provider mixes numeric and string ids across endpoints.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unsupported value %s", b)
	}
	*f = flexString(strconv.FormatBool(v))
	return nil
}

func (f flexString) String() string { return strings.TrimSpace(string(f)) }

type rawChannel struct {
	ID     flexString `json:"id"`
	Name   *string    `json:"name"`
	Images []struct {
		Ratio string `json:"ratio"`
		URL   string `json:"url"`
	} `json:"images"`
	MediaFiles []struct {
		ID   flexString `json:"id"`
		Type string     `json:"type"`
	} `json:"mediaFiles"`
	Metas map[string]struct {
		Value flexString `json:"value"`
	} `json:"metas"`
}

// DecodeChannel decodes one asset object from the channel list endpoint.
// id and name are required.
func DecodeChannel(raw json.RawMessage) (Channel, error) {
	var rc rawChannel
	if err := json.Unmarshal(raw, &rc); err != nil {
		return Channel{}, &ParseError{Entity: "channel", Err: err}
	}
	id := rc.ID.String()
	if id == "" {
		return Channel{}, &ParseError{Entity: "channel", Field: "id"}
	}
	if rc.Name == nil {
		return Channel{}, &ParseError{Entity: "channel", ID: id, Field: "name"}
	}
	ch := Channel{
		ID:    id,
		Name:  strings.TrimSpace(*rc.Name),
		Metas: make(map[string]string, len(rc.Metas)),
	}
	for k, v := range rc.Metas {
		ch.Metas[k] = v.Value.String()
	}
	ch.EPGID = ch.Metas[MetaEPGGUID]
	if ch.EPGID == "" {
		ch.EPGID = id
	}
	for _, img := range rc.Images {
		if img.URL == "" {
			continue
		}
		ch.Images = append(ch.Images, Image{Ratio: img.Ratio, URL: img.URL})
	}
	for _, f := range rc.MediaFiles {
		fid := f.ID.String()
		if fid == "" {
			continue
		}
		ch.Files = append(ch.Files, MediaFile{ID: fid, Type: f.Type})
	}
	return ch, nil
}

type rawTag struct {
	Key   string     `json:"Key"`
	Value flexString `json:"Value"`
}

type rawProgramme struct {
	ID          flexString `json:"EPG_ID"`
	ChannelID   flexString `json:"EPG_CHANNEL_ID"`
	Name        string     `json:"NAME"`
	Description string     `json:"DESCRIPTION"`
	StartDate   string     `json:"START_DATE"`
	EndDate     string     `json:"END_DATE"`
	Meta        []rawTag   `json:"EPG_Meta"`
	Tags        []rawTag   `json:"EPG_TAGS"`
	Pictures    []struct {
		URL    string     `json:"Url"`
		Width  flexString `json:"PicWidth"`
		Height flexString `json:"PicHeight"`
		Ratio  string     `json:"Ratio"`
	} `json:"EPG_PICTURES"`
}

type rawChannelPrograms struct {
	ChannelID  flexString        `json:"EPG_CHANNEL_ID"`
	Programmes []json.RawMessage `json:"EPGChannelProgrammeObject"`
}

// DecodeChannelPrograms decodes the multi-channel EPG response. Entries with
// no EPG_CHANNEL_ID are dropped; a programme missing START_DATE or END_DATE
// fails the whole decode.
func DecodeChannelPrograms(body []byte) ([]ChannelPrograms, error) {
	var raw []rawChannelPrograms
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ParseError{Entity: "epg response", Err: err}
	}
	out := make([]ChannelPrograms, 0, len(raw))
	for _, rc := range raw {
		chID := rc.ChannelID.String()
		if chID == "" {
			continue
		}
		cp := ChannelPrograms{EPGChannelID: chID, Programs: make([]Program, 0, len(rc.Programmes))}
		for _, rp := range rc.Programmes {
			p, err := decodeProgramme(rp, chID)
			if err != nil {
				return nil, err
			}
			cp.Programs = append(cp.Programs, p)
		}
		out = append(out, cp)
	}
	return out, nil
}

func decodeProgramme(raw json.RawMessage, channelID string) (Program, error) {
	var rp rawProgramme
	if err := json.Unmarshal(raw, &rp); err != nil {
		return Program{}, &ParseError{Entity: "programme", Err: err}
	}
	id := rp.ID.String()
	start := strings.TrimSpace(rp.StartDate)
	end := strings.TrimSpace(rp.EndDate)
	if start == "" {
		return Program{}, &ParseError{Entity: "programme", ID: id, Field: "START_DATE"}
	}
	if end == "" {
		return Program{}, &ParseError{Entity: "programme", ID: id, Field: "END_DATE"}
	}
	p := Program{
		ID:           id,
		EPGChannelID: channelID,
		Start:        start,
		End:          end,
		Name:         rp.Name,
		Description:  rp.Description,
		Tags:         convertTags(rp.Tags),
		Meta:         convertTags(rp.Meta),
	}
	for _, pic := range rp.Pictures {
		if pic.URL == "" {
			continue
		}
		w, _ := strconv.Atoi(pic.Width.String())
		h, _ := strconv.Atoi(pic.Height.String())
		p.Pictures = append(p.Pictures, Picture{URL: pic.URL, Width: w, Height: h, Ratio: pic.Ratio})
	}
	return p, nil
}

func convertTags(in []rawTag) []Tag {
	if len(in) == 0 {
		return nil
	}
	out := make([]Tag, 0, len(in))
	for _, t := range in {
		out = append(out, Tag{Key: t.Key, Value: t.Value.String()})
	}
	return out
}
