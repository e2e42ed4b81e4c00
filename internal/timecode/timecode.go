// Package timecode converts between the textual time encodings found in case
// data and a float64 number of seconds.
//
// Three encodings exist: SRT timecodes (HH:MM:SS,mmm) embedded in transcript
// lines, offset tokens (<name>__min<M>_<S>) embedded in graph mention and
// citation identifiers, and structured {start,end} records which already carry
// seconds.
package timecode

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var (
	srtPattern    = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3})`)
	offsetPattern = regexp.MustCompile(`([^/]+?)__min(\d+)_(\d+)`)
)

// ParseSRT returns the first SRT timecode found in text as seconds.
// Lines without a timecode anchor to 0.
func ParseSRT(text string) float64 {
	m := srtPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	ms, _ := strconv.Atoi(m[4])
	return float64(h*3600+mm*60+s) + float64(ms)/1000
}

// OffsetToken is a decoded <name>__min<M>_<S> identifier.
type OffsetToken struct {
	Name    string
	Minutes int
	Seconds int
}

// ParseOffsetToken finds an offset token anywhere in text. Any path prefix
// before the name and any suffix after the seconds (".txt") are ignored.
func ParseOffsetToken(text string) (OffsetToken, bool) {
	m := offsetPattern.FindStringSubmatch(text)
	if m == nil {
		return OffsetToken{}, false
	}
	mins, err := strconv.Atoi(m[2])
	if err != nil {
		return OffsetToken{}, false
	}
	sec, err := strconv.Atoi(m[3])
	if err != nil {
		return OffsetToken{}, false
	}
	return OffsetToken{Name: m[1], Minutes: mins, Seconds: sec}, true
}

// Time returns the token's offset in seconds.
func (o OffsetToken) Time() float64 {
	return ToTimeValue(o.Minutes, o.Seconds)
}

// Label is the display form "<name> - MM:SS".
func (o OffsetToken) Label() string {
	return fmt.Sprintf("%s - %s", o.Name, Format(o.Time()))
}

// ToTimeValue converts whole minutes and seconds to seconds.
func ToTimeValue(minutes, seconds int) float64 {
	return float64(minutes*60 + seconds)
}

// Format renders t as MM:SS. Minutes are not wrapped into hours.
func Format(t float64) string {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return "00:00"
	}
	total := int64(math.Floor(t))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatOffsetToken builds the token naming the whole second at t of source
// name, e.g. "interview.mp3__min02_15".
func FormatOffsetToken(name string, t float64) string {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		t = 0
	}
	total := int(math.Floor(t))
	return fmt.Sprintf("%s__min%02d_%02d", name, total/60, total%60)
}

// Label returns the display text for an identifier that may carry an offset
// token, falling back to the raw identifier.
func Label(raw string) string {
	if tok, ok := ParseOffsetToken(raw); ok {
		return tok.Label()
	}
	return raw
}
