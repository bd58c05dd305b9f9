// Package normalize turns provider EPG strings and tag lists into the typed
// values the exporters emit.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ProviderLayout is the provider's wall-clock format (DD/MM/YYYY HH:MM:SS).
const ProviderLayout = "02/01/2006 15:04:05"

// XMLTVLayout is the XMLTV start/stop attribute format.
const XMLTVLayout = "20060102150405 -0700"

var providerTimeRe = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4}) (\d{2}):(\d{2}):(\d{2})`)

// Timestamp is a parsed provider time in both representations the exporters need.
// Unix reads the wall-clock fields as UTC; the provider's real zone is not applied.
type Timestamp struct {
	XMLTV string
	Unix  int64
}

// TimeError is returned when neither parser accepts the input.
type TimeError struct {
	Input string
	Err   error
}

func (e *TimeError) Error() string {
	return fmt.Sprintf("parse provider time %q: %v", e.Input, e.Err)
}

func (e *TimeError) Unwrap() error { return e.Err }

// ParseProviderTime parses "DD/MM/YYYY HH:MM:SS". When the layout parser
// rejects the input, a positional regex parser is tried; both produce
// identical output for the same text.
func ParseProviderTime(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if ts, err := parseLayout(s); err == nil {
		return ts, nil
	}
	ts, err := parseFallback(s)
	if err != nil {
		return Timestamp{}, &TimeError{Input: s, Err: err}
	}
	return ts, nil
}

func parseLayout(s string) (Timestamp, error) {
	t, err := time.ParseInLocation(ProviderLayout, s, time.UTC)
	if err != nil {
		return Timestamp{}, err
	}
	return fromTime(t), nil
}

// parseFallback extracts the fields by position. It exists for runtimes
// whose date parser intermittently rejects this layout.
func parseFallback(s string) (Timestamp, error) {
	m := providerTimeRe.FindStringSubmatch(s)
	if m == nil {
		return Timestamp{}, fmt.Errorf("invalid date format")
	}
	var f [6]int
	for i := range f {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Timestamp{}, err
		}
		f[i] = n
	}
	day, month, year, hour, minute, second := f[0], f[1], f[2], f[3], f[4], f[5]
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return Timestamp{}, fmt.Errorf("field out of range")
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day {
		return Timestamp{}, fmt.Errorf("day %d out of range for %04d-%02d", day, year, month)
	}
	return fromTime(t), nil
}

func fromTime(t time.Time) Timestamp {
	return Timestamp{
		XMLTV: t.Format(XMLTVLayout),
		Unix:  t.Unix(),
	}
}
