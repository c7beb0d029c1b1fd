package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sudo-init-do/tasking/internal/apperr"
)

// DatetimeInterval is a closed time range serialized as "<start>/<end>".
// Both ends carry an explicit UTC offset.
type DatetimeInterval struct {
	Start time.Time
	End   time.Time
}

// ParseDatetimeInterval parses "<start>/<end>" in RFC 3339.
func ParseDatetimeInterval(s string) (DatetimeInterval, error) {
	start, end, ok := strings.Cut(s, "/")
	if !ok || start == "" || end == "" {
		return DatetimeInterval{}, apperr.Constraints("datetime %q must be <start>/<end>", s)
	}
	st, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return DatetimeInterval{}, apperr.Constraints("datetime start %q is not RFC 3339 with an offset", start)
	}
	en, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return DatetimeInterval{}, apperr.Constraints("datetime end %q is not RFC 3339 with an offset", end)
	}
	if en.Before(st) {
		return DatetimeInterval{}, apperr.Constraints("datetime end %s is before start %s", end, start)
	}
	return DatetimeInterval{Start: st, End: en}, nil
}

func (d DatetimeInterval) IsZero() bool { return d.Start.IsZero() && d.End.IsZero() }

func (d DatetimeInterval) String() string {
	return d.Start.Format(time.RFC3339Nano) + "/" + d.End.Format(time.RFC3339Nano)
}

// Duration is End minus Start.
func (d DatetimeInterval) Duration() time.Duration { return d.End.Sub(d.Start) }

func (d DatetimeInterval) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DatetimeInterval) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return apperr.Constraints("datetime must be a string")
	}
	parsed, err := ParseDatetimeInterval(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
