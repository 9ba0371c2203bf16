package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-0700",
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Zone resolves a station timezone label. IANA names and fixed offsets such as
// "+02:00", "+0200", "UTC+2" are understood; anything else falls back to UTC.
func Zone(label string) *time.Location {
	label = strings.TrimSpace(label)
	if label == "" {
		return time.UTC
	}
	if loc, err := time.LoadLocation(label); err == nil {
		return loc
	}
	offset := strings.TrimPrefix(strings.TrimPrefix(label, "UTC"), "GMT")
	if secs, ok := parseOffset(offset); ok {
		return time.FixedZone(label, secs)
	}
	return time.UTC
}

func parseOffset(s string) (int, bool) {
	if len(s) < 2 || (s[0] != '+' && s[0] != '-') {
		return 0, false
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	s = strings.ReplaceAll(s[1:], ":", "")
	var hours, minutes int
	var err error
	switch len(s) {
	case 1, 2:
		hours, err = strconv.Atoi(s)
	case 4:
		hours, err = strconv.Atoi(s[:2])
		if err == nil {
			minutes, err = strconv.Atoi(s[2:])
		}
	default:
		return 0, false
	}
	if err != nil || hours > 14 || minutes > 59 {
		return 0, false
	}
	return sign * (hours*3600 + minutes*60), true
}

// ParseTime parses a feed timestamp. Timestamps without an explicit offset are
// read in loc. The result is in UTC.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}
