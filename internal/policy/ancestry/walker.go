// Package ancestry resolves the chain of parent processes above a process.
//
// The chain is best effort: processes exit, snapshots fail and access is
// denied. Whatever prefix of the chain resolves is returned; an empty chain
// is a valid result, never an error.
package ancestry

import (
	"io"
	"log/slog"
	"strings"

	"github.com/gameoverlay/gameoverlay/internal/policy/identity"
)

// ProcessTable is the platform view of the process list.
// This is implemented per-platform in table_*.go files.
type ProcessTable interface {
	// ParentOf returns the parent pid of pid.
	ParentOf(pid int) (int, error)

	// ExecutableOf returns the absolute path of the primary module
	// (executable image) of pid.
	ExecutableOf(pid int) (string, error)
}

// Chain lists ancestors from the immediate parent to the most distant
// resolvable ancestor.
type Chain []identity.Process

// Len returns the number of resolved ancestors.
func (c Chain) Len() int { return len(c) }

// Parent returns the immediate parent, if resolved.
func (c Chain) Parent() (identity.Process, bool) {
	if len(c) == 0 {
		return identity.Process{}, false
	}
	return c[0], true
}

// Find returns the first ancestor for which match returns true.
func (c Chain) Find(match func(identity.Process) bool) (identity.Process, bool) {
	for _, p := range c {
		if match(p) {
			return p, true
		}
	}
	return identity.Process{}, false
}

// String renders the chain as "parent <- grandparent <- ...".
func (c Chain) String() string {
	names := make([]string, 0, len(c))
	for _, p := range c {
		names = append(names, p.ExeName)
	}
	return strings.Join(names, " <- ")
}

// DefaultMaxDepth bounds the walk even if the table never reports a cycle.
const DefaultMaxDepth = 64

// WalkerConfig configures a Walker.
type WalkerConfig struct {
	// MaxDepth caps the chain length (0 = DefaultMaxDepth).
	MaxDepth int

	// Logger receives debug output about where a walk stopped.
	// Nil disables logging.
	Logger *slog.Logger
}

// Walker resolves ancestry chains against a ProcessTable.
type Walker struct {
	table    ProcessTable
	maxDepth int
	logger   *slog.Logger
}

// NewWalker creates a walker over the given table.
func NewWalker(table ProcessTable, cfg WalkerConfig) *Walker {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Walker{
		table:    table,
		maxDepth: cfg.MaxDepth,
		logger:   logger,
	}
}

// NewNativeWalker creates a walker over the host's process table.
func NewNativeWalker(cfg WalkerConfig) *Walker {
	return NewWalker(NewNativeTable(), cfg)
}

// Walk returns the ancestors of pid. It stops when a parent cannot be found,
// when a parent's executable cannot be resolved, or when a pid would be
// visited twice.
func (w *Walker) Walk(pid int) Chain {
	var chain Chain
	visited := map[int]struct{}{pid: {}}

	cur := pid
	for len(chain) < w.maxDepth {
		ppid, err := w.table.ParentOf(cur)
		if err != nil {
			w.logger.Debug("ancestry: parent lookup failed", "pid", cur, "error", err)
			break
		}
		if ppid <= 0 {
			break
		}
		if _, seen := visited[ppid]; seen {
			w.logger.Debug("ancestry: cycle in process table", "pid", cur, "ppid", ppid)
			break
		}
		visited[ppid] = struct{}{}

		exe, err := w.table.ExecutableOf(ppid)
		if err != nil || exe == "" {
			w.logger.Debug("ancestry: parent executable unresolved", "ppid", ppid, "error", err)
			break
		}

		chain = append(chain, identity.New(ppid, exe))
		cur = ppid
	}

	return chain
}
