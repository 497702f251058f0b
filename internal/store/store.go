// ABOUTME: Store interface and data types for switchboard persistence
// ABOUTME: Defines Session, ContactMapping, TimeOfDay and the Store interface

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidTimeOfDay is returned when a reject-window bound cannot be parsed
var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// Session is a gateway session record as the panel stores it.
// The event pipeline only reads it and flips IsActive.
type Session struct {
	ID                int64
	Name              string // gateway session name, matches the webhook "session" field
	Token             string // bearer token for the gateway API
	IsActive          bool
	RejectCallEnabled bool
	RejectWindowStart *TimeOfDay // nil means unbounded
	RejectWindowEnd   *TimeOfDay
	UpdatedAt         time.Time
}

// ContactMapping records the phone number an opaque identifier resolved to
type ContactMapping struct {
	SessionName string
	Identifier  string
	Phone       string
	ResolvedAt  time.Time
}

// SessionStore is the slice of the store the webhook pipeline depends on.
type SessionStore interface {
	// GetActiveSession returns the active session with the given name, or ErrNotFound.
	GetActiveSession(ctx context.Context, name string) (*Session, error)

	// DeactivateSession marks the named session inactive. It is idempotent and
	// reports whether an active record was changed.
	DeactivateSession(ctx context.Context, name string) (bool, error)
}

// ContactStore persists resolved contact identifiers.
type ContactStore interface {
	SaveContact(ctx context.Context, c *ContactMapping) error
	GetContact(ctx context.Context, sessionName, identifier string) (*ContactMapping, error)
}

// Store defines the full persistence interface
type Store interface {
	SessionStore
	ContactStore

	// UpsertSession creates or replaces a session keyed by name.
	UpsertSession(ctx context.Context, s *Session) error
	ListSessions(ctx context.Context) ([]*Session, error)

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// TimeOfDay is a wall-clock time without a date, second precision.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	var vals [3]int
	limits := [3]int{23, 59, 59}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
		}
		vals[i] = n
	}
	return TimeOfDay{Hour: vals[0], Minute: vals[1], Second: vals[2]}, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals; it panics on bad input.
func MustTimeOfDay(s string) *TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return &t
}

// TimeOfDayOf returns the wall-clock part of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// Seconds returns the number of seconds since midnight.
func (t TimeOfDay) Seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// formatTimeOfDay converts an optional bound to its column value.
func formatTimeOfDay(t *TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}

// parseOptionalTimeOfDay converts a nullable column back into a bound.
func parseOptionalTimeOfDay(s *string) (*TimeOfDay, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := ParseTimeOfDay(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
