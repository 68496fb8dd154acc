// Package clock pins every timestamp the library produces to one fixed zone.
package clock

import (
	"bytes"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	// DefaultOffset is the offset of the zone the hostel services run in.
	DefaultOffset = 7 * time.Hour

	// MillisLayout is the human readable layout used in logs.
	MillisLayout = "2006-01-02 15:04:05.000"
	// JSONLayout is the layout of Timestamp values on the wire.
	JSONLayout = "2006-01-02T15:04:05.000Z07:00"

	localJSONLayout = "2006-01-02T15:04:05.999999999"
)

var zone atomic.Pointer[time.Location]

func init() {
	zone.Store(FixedZone(DefaultOffset))
}

// FixedZone returns a zone named after its offset, e.g. "UTC+7".
func FixedZone(offset time.Duration) *time.Location {
	hours := int(offset / time.Hour)
	name := "UTC"
	if offset != 0 {
		name = fmt.Sprintf("UTC%+d", hours)
		if rem := offset % time.Hour; rem != 0 {
			name = fmt.Sprintf("UTC%+03d:%02d", hours, int(abs(rem)/time.Minute))
		}
	}
	return time.FixedZone(name, int(offset/time.Second))
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Zone returns the process zone.
func Zone() *time.Location {
	return zone.Load()
}

// SetZone replaces the process zone. It is meant to be called once at startup.
func SetZone(loc *time.Location) {
	if loc != nil {
		zone.Store(loc)
	}
}

// Now returns the current time in the process zone.
func Now() time.Time {
	return time.Now().In(Zone())
}

// In converts t to the process zone.
func In(t time.Time) time.Time {
	return t.In(Zone())
}

// FormatMillis renders epoch milliseconds in the process zone using MillisLayout.
func FormatMillis(millis int64) string {
	return time.UnixMilli(millis).In(Zone()).Format(MillisLayout)
}

// Timestamp is a time that is always written and read in the process zone. Payload
// types use it for every date-time field.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t, normalizing it to the process zone.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: In(t)}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(In(t.Time).Format(JSONLayout))), nil
}

// UnmarshalJSON accepts RFC 3339 with or without an offset, and epoch milliseconds.
// Values without an offset are read as wall time in the process zone.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] != '"' {
		millis, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("clock: invalid timestamp %s: %w", data, err)
		}
		t.Time = time.UnixMilli(millis).In(Zone())
		return nil
	}
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("clock: invalid timestamp %s: %w", data, err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed.In(Zone())
		return nil
	}
	parsed, err := time.ParseInLocation(localJSONLayout, s, Zone())
	if err != nil {
		return fmt.Errorf("clock: invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}
