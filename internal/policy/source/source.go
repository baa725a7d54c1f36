// Package source reads the user's exclusion lists from a configuration
// store. Each list is an ordered sequence of strings stored under a fixed
// name; the exclusion mode is a small integer.
package source

import (
	"errors"
)

var (
	// ErrNotFound is returned when a value is absent from the store.
	ErrNotFound = errors.New("value not found")

	// ErrConfigMalformed is returned when a value is oversized or has the
	// wrong type. Callers treat the whole list as empty.
	ErrConfigMalformed = errors.New("configuration value malformed")
)

// MaxValueSize caps a single list value read from a store.
const MaxValueSize = 4 * 1024 * 1024

// Value names understood by the policy engine.
const (
	Blacklist        = "blacklist"
	Whitelist        = "whitelist"
	Paths            = "paths"
	Launchers        = "launchers"
	BlacklistExclude = "blacklistexclude"
	WhitelistExclude = "whitelistexclude"
	PathsExclude     = "pathsexclude"
	LaunchersExclude = "launchersexclude"
	Mode             = "mode"
)

// Source is a configuration store holding the exclusion inputs.
type Source interface {
	// MultiString returns the list stored under name.
	MultiString(name string) ([]string, error)

	// Mode returns the raw exclusion mode value. Range checking is left
	// to the caller.
	Mode() (int, error)

	// Name describes the store for logs.
	Name() string
}

// Static is an in-memory Source.
type Static struct {
	Lists map[string][]string
	// ModeValue is nil when no mode is configured.
	ModeValue *int
}

// NewStatic creates an empty static source.
func NewStatic() *Static {
	return &Static{Lists: map[string][]string{}}
}

// WithList sets a list and returns the source for chaining.
func (s *Static) WithList(name string, values ...string) *Static {
	s.Lists[name] = values
	return s
}

// WithMode sets the mode and returns the source for chaining.
func (s *Static) WithMode(mode int) *Static {
	s.ModeValue = &mode
	return s
}

// MultiString implements Source.
func (s *Static) MultiString(name string) ([]string, error) {
	v, ok := s.Lists[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), v...), nil
}

// Mode implements Source.
func (s *Static) Mode() (int, error) {
	if s.ModeValue == nil {
		return 0, ErrNotFound
	}
	return *s.ModeValue, nil
}

// Name implements Source.
func (s *Static) Name() string { return "static" }
