// Package hook redirects machine code in the current process. Installing a
// hook overwrites the entry of a target function with a jump to a
// replacement and builds a trampoline that runs the overwritten
// instructions before continuing into the original body.
package hook

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
)

// Config configures an Engine.
type Config struct {
	// Mode is the instruction set width, 32 or 64. Zero uses the host's.
	Mode int

	// Logger receives install and failure events. Nil disables logging.
	Logger *slog.Logger
}

// Engine installs hooks through a Memory.
type Engine struct {
	mem    Memory
	mode   int
	logger *slog.Logger
	table  *Table

	once    sync.Once
	initErr error

	mu   sync.Mutex
	slab *slab
}

// NewEngine creates an engine over mem. Nothing is allocated until
// Initialize.
func NewEngine(mem Memory, cfg Config) *Engine {
	mode := cfg.Mode
	if mode == 0 {
		mode = hostMode()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		mem:    mem,
		mode:   mode,
		logger: logger,
		table:  NewTable(),
	}
}

// NewNativeEngine creates an engine patching the current process.
func NewNativeEngine(cfg Config) *Engine {
	return NewEngine(NativeMemory(), cfg)
}

func hostMode() int {
	if runtime.GOARCH == "386" {
		return 32
	}
	return 64
}

// Initialize prepares the engine. It is safe to call concurrently and
// repeatedly; only the first call does work.
func (e *Engine) Initialize() error {
	e.once.Do(func() {
		if e.mode != 32 && e.mode != 64 {
			e.initErr = fmt.Errorf("unsupported mode %d", e.mode)
			return
		}
		if e.mem == nil {
			e.initErr = fmt.Errorf("no memory backend")
			return
		}
		e.slab = newSlab(e.mem, e.mode)
		e.logger.Debug("hook: engine initialized", "mode", e.mode, "page_size", e.slab.pageSize)
	})
	return e.initErr
}

// Table returns the engine's hook table.
func (e *Engine) Table() *Table { return e.table }

// UninstallAll removes every hook installed by this engine.
func (e *Engine) UninstallAll() error { return e.table.UninstallAll() }

func (e *Engine) fail(target uintptr, err error) error {
	cerr := &CreationError{Target: target, Err: err}
	e.logger.Warn("hook: install failed", "target", fmt.Sprintf("%#x", target), "error", err)
	return cerr
}

// Install hooks target so calls reach replacement. The returned hook's
// Trampoline calls the original. On error the target is left unmodified
// and the error matches ErrHookCreation.
func (e *Engine) Install(target, replacement uintptr) (*Hook, error) {
	if err := e.Initialize(); err != nil {
		return nil, e.fail(target, err)
	}
	if target == 0 {
		return nil, e.fail(target, ErrNullTarget)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.table.Get(target); exists {
		return nil, e.fail(target, ErrAlreadyHooked)
	}

	need := patchLen(e.mode, target, replacement)
	code := make([]byte, need+maxInstLen)
	if err := e.mem.Read(target, code); err != nil {
		return nil, e.fail(target, fmt.Errorf("read prologue: %w", err))
	}

	tramp, err := e.slab.alloc(target)
	if err != nil {
		return nil, e.fail(target, err)
	}

	rel, err := relocate(e.mode, code, target, tramp, need)
	if err != nil {
		_ = e.slab.release(tramp)
		return nil, e.fail(target, err)
	}
	if err := e.mem.Write(tramp, rel.code); err != nil {
		_ = e.slab.release(tramp)
		return nil, e.fail(target, fmt.Errorf("write trampoline: %w", err))
	}

	patch := encodeJmp(e.mode, target, replacement)
	patch = append(patch, bytes.Repeat([]byte{0x90}, rel.copyLen-len(patch))...)

	h := &Hook{
		Target:      target,
		Replacement: replacement,
		Trampoline:  tramp,
		engine:      e,
		original:    append([]byte(nil), code[:rel.copyLen]...),
		patch:       patch,
	}
	if err := e.mem.Write(target, patch); err != nil {
		_ = e.slab.release(tramp)
		return nil, e.fail(target, fmt.Errorf("%w: %v", ErrNotWritable, err))
	}
	h.installed, h.enabled = true, true
	e.table.add(h)

	e.logger.Info("hook: installed",
		"target", fmt.Sprintf("%#x", target),
		"replacement", fmt.Sprintf("%#x", replacement),
		"trampoline", fmt.Sprintf("%#x", tramp),
		"relocated", rel.copyLen)
	return h, nil
}

// InstallOnVirtualSlot hooks the function at index slot of object's
// virtual table.
func (e *Engine) InstallOnVirtualSlot(object uintptr, slot int, replacement uintptr) (*Hook, error) {
	if err := e.Initialize(); err != nil {
		return nil, e.fail(object, err)
	}
	vtable, err := e.readPointer(object)
	if err != nil {
		return nil, e.fail(object, fmt.Errorf("read vtable pointer: %w", err))
	}
	fn, err := e.readPointer(vtable + uintptr(slot*e.mode/8))
	if err != nil {
		return nil, e.fail(object, fmt.Errorf("read vtable slot %d: %w", slot, err))
	}
	e.logger.Debug("hook: resolved virtual slot",
		"object", fmt.Sprintf("%#x", object), "slot", slot, "target", fmt.Sprintf("%#x", fn))
	return e.Install(fn, replacement)
}

func (e *Engine) readPointer(addr uintptr) (uintptr, error) {
	if addr == 0 {
		return 0, ErrNullTarget
	}
	buf := make([]byte, e.mode/8)
	if err := e.mem.Read(addr, buf); err != nil {
		return 0, err
	}
	if e.mode == 32 {
		return uintptr(binary.LittleEndian.Uint32(buf)), nil
	}
	return uintptr(binary.LittleEndian.Uint64(buf)), nil
}

// Hook is one installed interception. Its methods are not synchronized
// with each other; a hook has a single owner.
type Hook struct {
	Target      uintptr
	Replacement uintptr
	Trampoline  uintptr

	engine    *Engine
	original  []byte
	patch     []byte
	installed bool
	enabled   bool
}

// Installed reports whether the hook still owns its trampoline.
func (h *Hook) Installed() bool { return h != nil && h.installed }

// Enabled reports whether calls to Target currently divert.
func (h *Hook) Enabled() bool { return h != nil && h.enabled }

// Enable re-applies the jump without rebuilding the trampoline.
func (h *Hook) Enable() error {
	if !h.Installed() || h.enabled {
		return nil
	}
	if err := h.engine.mem.Write(h.Target, h.patch); err != nil {
		return fmt.Errorf("enable hook %#x: %w", h.Target, err)
	}
	h.enabled = true
	return nil
}

// Disable restores the original entry bytes, keeping the trampoline.
func (h *Hook) Disable() error {
	if !h.Installed() || !h.enabled {
		return nil
	}
	if err := h.engine.mem.Write(h.Target, h.original); err != nil {
		return fmt.Errorf("disable hook %#x: %w", h.Target, err)
	}
	h.enabled = false
	return nil
}

// Uninstall restores the original code and releases the trampoline. It is a
// no-op on a hook that is not installed.
func (h *Hook) Uninstall() error {
	if !h.Installed() {
		return nil
	}
	if err := h.Disable(); err != nil {
		return err
	}

	e := h.engine
	e.mu.Lock()
	err := e.slab.release(h.Trampoline)
	e.mu.Unlock()

	h.installed = false
	e.table.remove(h.Target)
	e.logger.Info("hook: uninstalled", "target", fmt.Sprintf("%#x", h.Target))
	if err != nil {
		return fmt.Errorf("release trampoline %#x: %w", h.Trampoline, err)
	}
	return nil
}

// Original returns a copy of the bytes the hook overwrote.
func (h *Hook) Original() []byte {
	return append([]byte(nil), h.original...)
}
