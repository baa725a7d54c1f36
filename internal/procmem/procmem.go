// Package procmem reads the virtual memory of another process without ever
// faulting. Every read either fills the whole buffer or fails with an error
// wrapping ErrMemoryRead.
package procmem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrMemoryRead wraps every failed read.
	ErrMemoryRead = errors.New("memory read failed")

	// ErrShortRead is returned when fewer bytes than requested were read.
	ErrShortRead = fmt.Errorf("%w: short read", ErrMemoryRead)

	// ErrNegativeLength is returned for string reads with a negative bound.
	ErrNegativeLength = fmt.Errorf("%w: negative length", ErrMemoryRead)

	// ErrModuleNotFound is returned by ModuleBase for unknown modules.
	ErrModuleNotFound = errors.New("module not found")

	// ErrUnsupported is returned by Open on platforms without a reader.
	ErrUnsupported = errors.New("process memory reading not supported on this platform")
)

// Module is a loaded image in the target's address space.
type Module struct {
	Name string
	Path string
	Base uint64
	Size uint64
}

// Memory is the raw access to a target address space.
// This is implemented per-platform in memory_*.go files.
type Memory interface {
	// ReadMemory reads up to len(buf) bytes at addr and returns the count.
	ReadMemory(addr uint64, buf []byte) (int, error)

	// Modules lists loaded images.
	Modules() ([]Module, error)

	io.Closer
}

// Options configures Open.
type Options struct {
	// PointerSize is 4 or 8. Zero detects the target's width where the
	// platform can, and otherwise uses the host's.
	PointerSize int

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// Process is an open handle on another process's memory.
type Process struct {
	pid     int
	mem     Memory
	ptrSize int
	logger  *slog.Logger
}

// Open attaches to pid for reading.
func Open(pid int, opts Options) (*Process, error) {
	mem, ptrSize, err := openNative(pid)
	if err != nil {
		return nil, err
	}
	if opts.PointerSize != 0 {
		ptrSize = opts.PointerSize
	}
	return New(pid, mem, Options{PointerSize: ptrSize, Logger: opts.Logger})
}

// New wraps an existing Memory.
func New(pid int, mem Memory, opts Options) (*Process, error) {
	ptrSize := opts.PointerSize
	if ptrSize == 0 {
		ptrSize = strconv.IntSize / 8
	}
	if ptrSize != 4 && ptrSize != 8 {
		return nil, fmt.Errorf("unsupported pointer size %d", ptrSize)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Process{pid: pid, mem: mem, ptrSize: ptrSize, logger: logger}, nil
}

// PID returns the target pid.
func (p *Process) PID() int { return p.pid }

// PointerSize returns the target's pointer width in bytes.
func (p *Process) PointerSize() int { return p.ptrSize }

// Close releases the handle. It is safe to call more than once.
func (p *Process) Close() error {
	if p.mem == nil {
		return nil
	}
	err := p.mem.Close()
	p.mem = nil
	return err
}

// ReadAt fills buf from addr.
func (p *Process) ReadAt(addr uint64, buf []byte) error {
	if p.mem == nil {
		return fmt.Errorf("%w: process %d closed", ErrMemoryRead, p.pid)
	}
	if len(buf) == 0 {
		return nil
	}
	n, err := p.mem.ReadMemory(addr, buf)
	if err != nil {
		return fmt.Errorf("%w: pid %d addr %#x len %d: %v", ErrMemoryRead, p.pid, addr, len(buf), err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: pid %d addr %#x: got %d of %d bytes", ErrShortRead, p.pid, addr, n, len(buf))
	}
	return nil
}

// ReadUint8 reads one byte.
func (p *Process) ReadUint8(addr uint64) (uint8, error) {
	var b [1]byte
	if err := p.ReadAt(addr, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint32 reads a little-endian uint32.
func (p *Process) ReadUint32(addr uint64) (uint32, error) {
	var b [4]byte
	if err := p.ReadAt(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadUint64 reads a little-endian uint64.
func (p *Process) ReadUint64(addr uint64) (uint64, error) {
	var b [8]byte
	if err := p.ReadAt(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ReadFloat32 reads an IEEE-754 single.
func (p *Process) ReadFloat32(addr uint64) (float32, error) {
	v, err := p.ReadUint32(addr)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadPointer reads a pointer of the target's width.
func (p *Process) ReadPointer(addr uint64) (uint64, error) {
	if p.ptrSize == 4 {
		v, err := p.ReadUint32(addr)
		return uint64(v), err
	}
	return p.ReadUint64(addr)
}

// ReadVec3 reads three consecutive float32 values.
func (p *Process) ReadVec3(addr uint64) ([3]float32, error) {
	var out [3]float32
	var b [12]byte
	if err := p.ReadAt(addr, b[:]); err != nil {
		return out, err
	}
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// ReadCString reads at most max bytes and cuts at the first NUL.
func (p *Process) ReadCString(addr uint64, max int) (string, error) {
	if max < 0 {
		return "", fmt.Errorf("%w: %d at 0x%x", ErrNegativeLength, max, addr)
	}
	if max == 0 {
		return "", nil
	}
	buf := make([]byte, max)
	if err := p.ReadAt(addr, buf); err != nil {
		return "", err
	}
	if i := strings.IndexByte(string(buf), 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// ReadUTF16String reads at most maxChars UTF-16LE code units and cuts at the
// first NUL unit.
func (p *Process) ReadUTF16String(addr uint64, maxChars int) (string, error) {
	if maxChars < 0 {
		return "", fmt.Errorf("%w: %d at 0x%x", ErrNegativeLength, maxChars, addr)
	}
	if maxChars == 0 {
		return "", nil
	}
	buf := make([]byte, maxChars*2)
	if err := p.ReadAt(addr, buf); err != nil {
		return "", err
	}
	for i := 0; i+1 < len(buf); i += 2 {
		if buf[i] == 0 && buf[i+1] == 0 {
			buf = buf[:i]
			break
		}
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(buf)
	if err != nil {
		return "", fmt.Errorf("%w: decode utf-16 at %#x: %v", ErrMemoryRead, addr, err)
	}
	return string(out), nil
}

// FollowPointers dereferences base and then each offset but the last,
// returning the final address. FollowPointers(b, 0x10, 0x4) reads the
// pointer at b+0x10 and returns that pointer plus 0x4.
func (p *Process) FollowPointers(base uint64, offsets ...uint64) (uint64, error) {
	addr := base
	for i, off := range offsets {
		addr += off
		if i == len(offsets)-1 {
			break
		}
		next, err := p.ReadPointer(addr)
		if err != nil {
			return 0, err
		}
		if next == 0 {
			return 0, fmt.Errorf("%w: null pointer at %#x", ErrMemoryRead, addr)
		}
		addr = next
	}
	return addr, nil
}

// ModuleBase returns the load address of the module named name (matched
// case-insensitively against the image basename).
func (p *Process) ModuleBase(name string) (uint64, error) {
	m, err := p.Module(name)
	if err != nil {
		return 0, err
	}
	return m.Base, nil
}

// Module returns the loaded module named name.
func (p *Process) Module(name string) (Module, error) {
	if p.mem == nil {
		return Module{}, fmt.Errorf("%w: process %d closed", ErrMemoryRead, p.pid)
	}
	mods, err := p.mem.Modules()
	if err != nil {
		return Module{}, fmt.Errorf("list modules of pid %d: %w", p.pid, err)
	}
	for _, m := range mods {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	p.logger.Debug("procmem: module not loaded", "pid", p.pid, "module", name)
	return Module{}, fmt.Errorf("%w: %s in pid %d", ErrModuleNotFound, name, p.pid)
}
