package plugin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gameoverlay/gameoverlay/internal/metrics"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

// Unlock reasons reported in events and metrics.
const (
	UnlockLost     = "lost"     // Fetch returned false
	UnlockPanic    = "panic"    // plugin panicked
	UnlockExternal = "external" // Host.Unlock
)

// HostConfig tunes the host loop.
type HostConfig struct {
	// FetchInterval is the cadence while a plugin is locked.
	FetchInterval time.Duration
	// TryLockInterval is the first idle poll delay; it grows up to
	// MaxTryLockInterval until a plugin locks.
	TryLockInterval    time.Duration
	MaxTryLockInterval time.Duration
	// SeenCapacity bounds the set of processes already offered.
	SeenCapacity int

	ContextCap  int
	IdentityCap int

	Lister  ProcessLister
	Sink    Sink
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

func (c *HostConfig) applyDefaults() {
	if c.FetchInterval <= 0 {
		c.FetchInterval = 20 * time.Millisecond
	}
	if c.TryLockInterval <= 0 {
		c.TryLockInterval = time.Second
	}
	if c.MaxTryLockInterval < c.TryLockInterval {
		c.MaxTryLockInterval = 10 * c.TryLockInterval
	}
	if c.SeenCapacity <= 0 {
		c.SeenCapacity = 4096
	}
	if c.ContextCap <= 0 {
		c.ContextCap = DefaultContextCap
	}
	if c.IdentityCap <= 0 {
		c.IdentityCap = DefaultIdentityCap
	}
	if c.Lister == nil {
		c.Lister = SystemLister{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Host polls registered plugins until one locks, then fetches from it
// until it is lost or unlocked. At most one plugin is locked at a time.
type Host struct {
	reg    *Registry
	cfg    HostConfig
	logger *slog.Logger

	mu     sync.Mutex
	locked *Descriptor
	result *FetchResult
	seen   *lru.Cache[string, struct{}]
	idle   *backoff.ExponentialBackOff
}

// NewHost creates a host over the plugins in reg.
func NewHost(reg *Registry, cfg HostConfig) (*Host, error) {
	cfg.applyDefaults()
	seen, err := lru.New[string, struct{}](cfg.SeenCapacity)
	if err != nil {
		return nil, fmt.Errorf("seen set: %w", err)
	}

	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = cfg.TryLockInterval
	idle.MaxInterval = cfg.MaxTryLockInterval
	idle.MaxElapsedTime = 0
	idle.Reset()

	return &Host{
		reg:    reg,
		cfg:    cfg,
		logger: cfg.Logger,
		result: NewFetchResult(cfg.ContextCap, cfg.IdentityCap),
		seen:   seen,
		idle:   idle,
	}, nil
}

// Locked returns the short name of the locked plugin, or "".
func (h *Host) Locked() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.locked == nil {
		return ""
	}
	return h.locked.ShortName
}

// Step runs one cycle: a TryLock round when idle, a Fetch when locked. It
// reports whether a plugin holds the lock afterwards.
func (h *Host) Step(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.locked == nil {
		h.tryLock(ctx)
	} else {
		h.fetch(ctx)
	}
	return h.locked != nil
}

// Unlock releases the locked plugin, if any. The plugin's Unlock has
// returned when this does.
func (h *Host) Unlock() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.locked == nil {
		return false
	}
	h.release(context.Background(), UnlockExternal)
	return true
}

// Run steps the host until ctx is done, then unlocks.
func (h *Host) Run(ctx context.Context) error {
	defer h.Unlock()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		wait := h.cfg.FetchInterval
		if !h.Step(ctx) {
			h.mu.Lock()
			wait = h.idle.NextBackOff()
			h.mu.Unlock()
		}
		timer.Reset(wait)
	}
}

// candidates returns the processes not offered since the last unlock.
func (h *Host) candidates(ctx context.Context) []Candidate {
	procs, err := h.cfg.Lister.Processes(ctx)
	if err != nil {
		h.logger.Warn("plugin: process list failed", "error", err)
		return nil
	}
	var fresh []Candidate
	for _, p := range procs {
		key := fmt.Sprintf("%d:%s", p.PID, strings.ToLower(p.Name))
		if h.seen.Contains(key) {
			continue
		}
		h.seen.Add(key, struct{}{})
		fresh = append(fresh, p)
	}
	return fresh
}

func (h *Host) tryLock(ctx context.Context) {
	fresh := h.candidates(ctx)

	for _, desc := range h.reg.Plugins() {
		var cands []Candidate
		if desc.ABI.WantsCandidates() {
			cands = fresh
		}

		ok, err := safeTryLock(desc.Plugin, cands)
		if err != nil {
			h.logger.Warn("plugin: trylock panicked", "plugin", desc.ShortName, "error", err)
			if err := safeUnlock(desc.Plugin); err != nil {
				h.logger.Warn("plugin: unlock panicked", "plugin", desc.ShortName, "error", err)
			}
			continue
		}
		if !ok {
			continue
		}

		h.locked = desc
		h.idle.Reset()
		h.cfg.Metrics.PluginLocked(desc.ShortName)
		h.logger.Info("plugin: locked", "plugin", desc.ShortName, "pid", lockedPID(desc))
		h.publish(ctx, h.event(types.EventPluginLocked, desc))
		return
	}
}

func (h *Host) fetch(ctx context.Context) {
	desc := h.locked
	h.result.Reset()

	start := time.Now()
	ok, panicked, err := safeFetch(desc.Plugin, h.result)
	elapsed := time.Since(start)

	switch {
	case panicked:
		h.cfg.Metrics.ObserveFetch(desc.ShortName, metrics.FetchPanic, elapsed)
		h.logger.Warn("plugin: fetch panicked", "plugin", desc.ShortName, "error", err)
		h.release(ctx, UnlockPanic)
	case !ok:
		h.cfg.Metrics.ObserveFetch(desc.ShortName, metrics.FetchUnlock, elapsed)
		h.release(ctx, UnlockLost)
	case err != nil:
		h.cfg.Metrics.ObserveFetch(desc.ShortName, metrics.FetchNoUpdate, elapsed)
		h.logger.Debug("plugin: fetch skipped", "plugin", desc.ShortName, "error", err)
	default:
		h.cfg.Metrics.ObserveFetch(desc.ShortName, metrics.FetchOK, elapsed)
		ev := h.event(types.EventPose, desc)
		pose := h.result.Pose(desc.ShortName)
		ev.Pose = &pose
		h.publish(ctx, ev)
	}
}

// release calls the plugin's Unlock once and returns the host to idle.
// Callers hold h.mu.
func (h *Host) release(ctx context.Context, reason string) {
	desc := h.locked
	ev := h.event(types.EventPluginUnlocked, desc)
	ev.Fields = map[string]any{"reason": reason}

	if err := safeUnlock(desc.Plugin); err != nil {
		h.logger.Warn("plugin: unlock panicked", "plugin", desc.ShortName, "error", err)
	}
	h.locked = nil
	h.seen.Purge()

	h.cfg.Metrics.PluginUnlocked(desc.ShortName, reason)
	h.logger.Info("plugin: unlocked", "plugin", desc.ShortName, "reason", reason)
	h.publish(ctx, ev)
}

func (h *Host) event(eventType string, desc *Descriptor) types.Event {
	ev := types.NewEvent(eventType)
	ev.Plugin = desc.ShortName
	ev.PID = lockedPID(desc)
	return ev
}

func (h *Host) publish(ctx context.Context, ev types.Event) {
	if h.cfg.Sink == nil {
		return
	}
	if err := h.cfg.Sink.Publish(ctx, ev); err != nil {
		h.logger.Warn("plugin: publish failed", "type", ev.Type, "error", err)
	}
}

func lockedPID(desc *Descriptor) int {
	if a, ok := desc.Plugin.(Attached); ok {
		return a.LockedPID()
	}
	return 0
}

func safeTryLock(p Plugin, cands []Candidate) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("%v", r)
		}
	}()
	return p.TryLock(cands), nil
}

func safeFetch(p Plugin, out *FetchResult) (ok, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, panicked, err = false, true, fmt.Errorf("%v", r)
		}
	}()
	ok, err = p.Fetch(out)
	return ok, false, err
}

func safeUnlock(p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	p.Unlock()
	return nil
}
