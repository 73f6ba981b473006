package trace

import (
	"time"

	"github.com/google/uuid"
)

// TimestampFormat is the layout used for event and session timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000000"

// Clock supplies wall-clock time when new events and sessions are built.
// Replay never consults a Clock.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies new session ids.
type IDGenerator interface {
	NewID() string
}

// SystemClock reports the current UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator returns the first eight characters of a random UUID.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.New().String()[:8] }

// FixedClock always reports T. Useful for reproducible recordings in tests.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// StaticID always returns ID.
type StaticID string

func (s StaticID) NewID() string { return string(s) }

// FormatTime renders t in TimestampFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}
