package policy

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/gameoverlay/gameoverlay/internal/policy/ancestry"
	"github.com/gameoverlay/gameoverlay/internal/policy/identity"
	"github.com/gameoverlay/gameoverlay/internal/policy/source"
)

// ReadInputs collects the user lists and mode from src. Absent values are
// empty; malformed or unreadable values are logged and treated as empty.
// An absent or out-of-range mode yields ModeLauncherFilter.
func ReadInputs(src source.Source, logger *slog.Logger) Inputs {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	in := Inputs{
		Mode:   ModeLauncherFilter,
		Add:    make(map[List][]string, len(Lists)),
		Remove: make(map[List][]string, len(Lists)),
	}

	read := func(name string) []string {
		values, err := src.MultiString(name)
		switch {
		case err == nil:
			return values
		case errors.Is(err, source.ErrNotFound):
		case errors.Is(err, source.ErrConfigMalformed):
			logger.Warn("policy: malformed list ignored", "source", src.Name(), "list", name, "error", err)
		default:
			logger.Warn("policy: list unreadable", "source", src.Name(), "list", name, "error", err)
		}
		return nil
	}
	for _, l := range Lists {
		in.Add[l] = read(l.String())
		in.Remove[l] = read(l.ExcludeName())
	}

	raw, err := src.Mode()
	switch {
	case err == nil:
		mode, ok := ParseMode(raw)
		if !ok {
			logger.Warn("policy: invalid mode, using default", "source", src.Name(), "mode", raw)
		}
		in.Mode = mode
	case errors.Is(err, source.ErrNotFound):
	default:
		logger.Warn("policy: mode unreadable, using default", "source", src.Name(), "error", err)
	}
	return in
}

// Load builds a snapshot from the compiled-in defaults and src.
func Load(src source.Source, logger *slog.Logger) *Snapshot {
	return NewSnapshot(identity.Builtin(), ReadInputs(src, logger))
}

// Lazy computes a snapshot on first use and serves it for the rest of the
// process lifetime.
type Lazy struct {
	once  sync.Once
	build func() *Snapshot
	snap  *Snapshot
}

// NewLazy defers build until the first Get or Evaluate.
func NewLazy(build func() *Snapshot) *Lazy {
	return &Lazy{build: build}
}

// NewLazySource defers Load(src, logger) until first use.
func NewLazySource(src source.Source, logger *slog.Logger) *Lazy {
	return NewLazy(func() *Snapshot { return Load(src, logger) })
}

// Get returns the snapshot, building it if needed.
func (l *Lazy) Get() *Snapshot {
	l.once.Do(func() {
		l.snap = l.build()
	})
	return l.snap
}

// Evaluate evaluates against the cached snapshot.
func (l *Lazy) Evaluate(target identity.Process, chain ancestry.Chain) Decision {
	return l.Get().Evaluate(target, chain)
}
