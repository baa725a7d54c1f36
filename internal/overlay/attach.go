// Package overlay ties the exclusion policy to the hook engine: it decides
// whether a process gets the overlay and, if so, intercepts its frame
// presentation entry points.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/gameoverlay/gameoverlay/internal/hook"
	"github.com/gameoverlay/gameoverlay/internal/metrics"
	"github.com/gameoverlay/gameoverlay/internal/policy"
	"github.com/gameoverlay/gameoverlay/internal/policy/ancestry"
	"github.com/gameoverlay/gameoverlay/internal/policy/identity"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

// ErrNoEngine is returned by Attach on an attacher built without a hook
// engine.
var ErrNoEngine = errors.New("overlay: no hook engine")

// Evaluator decides overlay activation. *policy.Snapshot and *policy.Lazy
// implement it.
type Evaluator interface {
	Evaluate(target identity.Process, chain ancestry.Chain) policy.Decision
}

// ChainWalker resolves a process's ancestry.
type ChainWalker interface {
	Walk(pid int) ancestry.Chain
}

// Installer installs hooks. *hook.Engine implements it.
type Installer interface {
	Install(target, replacement uintptr) (*hook.Hook, error)
	InstallOnVirtualSlot(object uintptr, slot int, replacement uintptr) (*hook.Hook, error)
	UninstallAll() error
}

// EventSink receives decision and hook events.
type EventSink interface {
	Publish(ctx context.Context, ev types.Event) error
}

// Target is a function to intercept: either a raw Address or the Slot-th
// entry of Object's virtual table.
type Target struct {
	Name        string
	Address     uintptr
	Object      uintptr
	Slot        int
	Replacement uintptr
}

func (t Target) virtual() bool { return t.Address == 0 && t.Object != 0 }

// AttacherConfig wires an Attacher.
type AttacherConfig struct {
	Policy Evaluator
	Walker ChainWalker
	// Engine may be nil for an attacher that only decides.
	Engine  Installer
	Sink    EventSink
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Attacher runs the attach flow for one process.
type Attacher struct {
	cfg    AttacherConfig
	logger *slog.Logger
}

// Result is the outcome of Attach.
type Result struct {
	Decision policy.Decision
	Chain    ancestry.Chain
	Hooks    []*hook.Hook
}

// NewAttacher validates cfg.
func NewAttacher(cfg AttacherConfig) (*Attacher, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("overlay: policy is required")
	}
	if cfg.Walker == nil {
		return nil, fmt.Errorf("overlay: walker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Attacher{cfg: cfg, logger: logger}, nil
}

// Decide evaluates the policy for proc without touching any code.
func (a *Attacher) Decide(ctx context.Context, proc identity.Process) (policy.Decision, ancestry.Chain) {
	chain := a.cfg.Walker.Walk(proc.PID)
	d := a.cfg.Policy.Evaluate(proc, chain)

	a.cfg.Metrics.ObserveDecision(d.Enabled, string(d.Reason))
	a.logger.Info("overlay: decision",
		"pid", proc.PID, "exe", proc.ExePath,
		"enabled", d.Enabled, "mode", d.Mode.String(), "reason", string(d.Reason),
		"ancestry", chain.String())

	ev := types.NewEvent(types.EventOverlayDecision)
	ev.PID, ev.Exe = proc.PID, proc.ExePath
	ev.Decision = DecisionInfo(d)
	a.publish(ctx, ev)
	return d, chain
}

// Attach decides activation for proc and, when enabled, installs every
// target. Targets that fail are skipped and their errors joined; the
// others stay installed.
func (a *Attacher) Attach(ctx context.Context, proc identity.Process, targets []Target) (Result, error) {
	d, chain := a.Decide(ctx, proc)
	res := Result{Decision: d, Chain: chain}
	if !d.Enabled || len(targets) == 0 {
		return res, nil
	}
	if a.cfg.Engine == nil {
		return res, ErrNoEngine
	}

	var errs error
	for _, t := range targets {
		h, err := a.install(t)

		ev := types.NewEvent(types.EventHookInstalled)
		ev.PID, ev.Exe = proc.PID, proc.ExePath
		info := &types.HookInfo{Name: t.Name, Target: uint64(t.Address)}
		if t.virtual() {
			info.Target = uint64(t.Object)
		}
		if err != nil {
			ev.Type = types.EventHookFailed
			info.Error = err.Error()
			a.cfg.Metrics.IncHookFailed()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", t.Name, err))
		} else {
			info.Target, info.Trampoline = uint64(h.Target), uint64(h.Trampoline)
			a.cfg.Metrics.IncHookInstalled()
			res.Hooks = append(res.Hooks, h)
		}
		ev.Hook = info
		a.publish(ctx, ev)
	}
	return res, errs
}

// AttachSelf runs Attach for the current process.
func (a *Attacher) AttachSelf(ctx context.Context, targets []Target) (Result, error) {
	self, err := identity.Self()
	if err != nil {
		return Result{}, err
	}
	return a.Attach(ctx, self, targets)
}

// Detach removes every hook the engine installed.
func (a *Attacher) Detach() error {
	if a.cfg.Engine == nil {
		return nil
	}
	return a.cfg.Engine.UninstallAll()
}

func (a *Attacher) install(t Target) (*hook.Hook, error) {
	if t.virtual() {
		return a.cfg.Engine.InstallOnVirtualSlot(t.Object, t.Slot, t.Replacement)
	}
	return a.cfg.Engine.Install(t.Address, t.Replacement)
}

func (a *Attacher) publish(ctx context.Context, ev types.Event) {
	if a.cfg.Sink == nil {
		return
	}
	if err := a.cfg.Sink.Publish(ctx, ev); err != nil {
		a.logger.Warn("overlay: publish failed", "type", ev.Type, "error", err)
	}
}

// DecisionInfo converts d for events and JSON output.
func DecisionInfo(d policy.Decision) *types.DecisionInfo {
	info := &types.DecisionInfo{
		Enabled: d.Enabled,
		Mode:    d.Mode.String(),
		Reason:  string(d.Reason),
	}
	if d.Rule != nil {
		info.Rule = d.Rule.Pattern
	}
	if !d.Ancestor.IsZero() {
		info.Ancestor = d.Ancestor.ExePath
	}
	return info
}
