// Package xmltv streams an XMLTV guide document. Channels are written first,
// then programmes in the order they are appended, so a guide never has to be
// held in memory as a whole.
package xmltv

import (
	"encoding/xml"
	"errors"
	"io"
)

// DefaultLang is used for text elements when the writer has no language set.
const DefaultLang = "hu"

const doctype = `<!DOCTYPE tv SYSTEM "xmltv.dtd">` + "\n"

// ErrState is returned when writer calls happen out of order.
var ErrState = errors.New("xmltv: writer used out of order")

// Generator fills the generator-info attributes of <tv>.
type Generator struct {
	Name string
	URL  string
}

// Channel is one <channel> element.
type Channel struct {
	ID          string
	DisplayName string
	Icon        string
}

// Programme is one <programme> element. Start and Stop are XMLTV timestamps.
// EpisodeNum is the xmltv_ns value; empty omits the element.
type Programme struct {
	Start      string
	Stop       string
	Channel    string
	CatchupID  string
	Title      string
	Desc       string
	Date       string
	Categories []string
	Countries  []string
	Actors     []string
	Directors  []string
	Icon       string
	EpisodeNum string
	SubTitle   string
}

type langText struct {
	Lang string `xml:"lang,attr,omitempty"`
	Text string `xml:",chardata"`
}

type icon struct {
	Src string `xml:"src,attr"`
}

type xmlChannel struct {
	XMLName     xml.Name `xml:"channel"`
	ID          string   `xml:"id,attr"`
	DisplayName string   `xml:"display-name"`
	Icon        *icon    `xml:"icon,omitempty"`
}

type credits struct {
	Actor    []string `xml:"actor"`
	Director []string `xml:"director"`
}

type episodeNum struct {
	System string `xml:"system,attr"`
	Text   string `xml:",chardata"`
}

type xmlProgramme struct {
	XMLName    xml.Name    `xml:"programme"`
	Start      string      `xml:"start,attr"`
	Stop       string      `xml:"stop,attr"`
	Channel    string      `xml:"channel,attr"`
	CatchupID  string      `xml:"catchup-id,attr,omitempty"`
	Title      langText    `xml:"title"`
	Desc       langText    `xml:"desc"`
	Date       string      `xml:"date,omitempty"`
	Category   []langText  `xml:"category"`
	Country    []langText  `xml:"country"`
	Credits    *credits    `xml:"credits,omitempty"`
	Icon       *icon       `xml:"icon,omitempty"`
	EpisodeNum *episodeNum `xml:"episode-num,omitempty"`
	SubTitle   *langText   `xml:"sub-title,omitempty"`
}

// Writer emits one XMLTV document. Call Begin, then any number of
// WriteChannel and WriteProgramme, then End.
type Writer struct {
	w    io.Writer
	enc  *xml.Encoder
	lang string

	begun, ended bool
	Channels     int
	Programmes   int
}

// NewWriter writes to w. lang tags title, desc, category, country and
// sub-title; empty means DefaultLang.
func NewWriter(w io.Writer, lang string) *Writer {
	if lang == "" {
		lang = DefaultLang
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return &Writer{w: w, enc: enc, lang: lang}
}

// Begin writes the XML declaration, the DOCTYPE and the opening <tv>.
func (x *Writer) Begin(g Generator) error {
	if x.begun {
		return ErrState
	}
	x.begun = true
	if _, err := io.WriteString(x.w, xml.Header+doctype); err != nil {
		return err
	}
	start := xml.StartElement{Name: xml.Name{Local: "tv"}}
	if g.Name != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "generator-info-name"}, Value: g.Name})
	}
	if g.URL != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "generator-info-url"}, Value: g.URL})
	}
	return x.enc.EncodeToken(start)
}

// WriteChannel appends a <channel>.
func (x *Writer) WriteChannel(c Channel) error {
	if !x.begun || x.ended {
		return ErrState
	}
	el := xmlChannel{ID: c.ID, DisplayName: c.DisplayName}
	if c.Icon != "" {
		el.Icon = &icon{Src: c.Icon}
	}
	if err := x.enc.Encode(el); err != nil {
		return err
	}
	x.Channels++
	return nil
}

// WriteProgramme appends a <programme>.
func (x *Writer) WriteProgramme(p Programme) error {
	if !x.begun || x.ended {
		return ErrState
	}
	el := xmlProgramme{
		Start:     p.Start,
		Stop:      p.Stop,
		Channel:   p.Channel,
		CatchupID: p.CatchupID,
		Title:     langText{Lang: x.lang, Text: p.Title},
		Desc:      langText{Lang: x.lang, Text: p.Desc},
		Date:      p.Date,
		Category:  x.langTexts(p.Categories),
		Country:   x.langTexts(p.Countries),
	}
	if len(p.Actors) > 0 || len(p.Directors) > 0 {
		el.Credits = &credits{Actor: p.Actors, Director: p.Directors}
	}
	if p.Icon != "" {
		el.Icon = &icon{Src: p.Icon}
	}
	if p.EpisodeNum != "" {
		el.EpisodeNum = &episodeNum{System: "xmltv_ns", Text: p.EpisodeNum}
	}
	if p.SubTitle != "" {
		el.SubTitle = &langText{Lang: x.lang, Text: p.SubTitle}
	}
	if err := x.enc.Encode(el); err != nil {
		return err
	}
	x.Programmes++
	return nil
}

// Flush pushes buffered output to the underlying writer.
func (x *Writer) Flush() error { return x.enc.Flush() }

// End closes </tv> and flushes.
func (x *Writer) End() error {
	if !x.begun || x.ended {
		return ErrState
	}
	x.ended = true
	if err := x.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "tv"}}); err != nil {
		return err
	}
	if err := x.enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(x.w, "\n")
	return err
}

func (x *Writer) langTexts(vals []string) []langText {
	if len(vals) == 0 {
		return nil
	}
	out := make([]langText, 0, len(vals))
	for _, v := range vals {
		out = append(out, langText{Lang: x.lang, Text: v})
	}
	return out
}
