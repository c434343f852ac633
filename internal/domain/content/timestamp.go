package content

import (
	"errors"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

var ErrInvalidTimestamp = errors.New("invalid timestamp")

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and a few ISO-like layouts, then falls back
// to natural-language dates ("next friday 17:00") relative to now.
func ParseTimestamp(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	cfg := &dateparser.Configuration{
		CurrentTime:         now,
		PreferredDateSource: dateparser.Future,
	}
	parsed, err := dateparser.Parse(cfg, value)
	if err != nil || parsed.Time.IsZero() {
		return time.Time{}, ErrInvalidTimestamp
	}
	return parsed.Time.UTC(), nil
}
