package manifest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/text/encoding/unicode"

	"github.com/gameoverlay/gameoverlay/internal/plugin"
	"github.com/gameoverlay/gameoverlay/internal/policy/pattern"
	"github.com/gameoverlay/gameoverlay/internal/procmem"
)

// Opener attaches a memory reader to pid.
type Opener func(pid int, opts procmem.Options) (*procmem.Process, error)

// Options configures a manifest plugin.
type Options struct {
	// Open defaults to procmem.Open.
	Open Opener
	// Alive reports whether pid still runs; consulted after a failed read.
	// Defaults to a gopsutil lookup.
	Alive  func(pid int) bool
	Logger *slog.Logger
}

// Plugin reads poses as described by a Manifest.
type Plugin struct {
	m     *Manifest
	procs *pattern.Set
	open  Opener
	alive func(pid int) bool

	logger *slog.Logger

	proc *procmem.Process
	base uint64

	// pending holds matching processes whose attach failed; they are
	// retried on every TryLock until they lock or exit.
	pending []plugin.Candidate
}

// maxPending bounds the retry list.
const maxPending = 32

var _ plugin.Plugin = (*Plugin)(nil)

// New builds a plugin for m.
func New(m *Manifest, opts Options) (*Plugin, error) {
	procs, err := pattern.NewSet(m.Processes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, m.ShortName, err)
	}
	if opts.Open == nil {
		opts.Open = procmem.Open
	}
	if opts.Alive == nil {
		opts.Alive = func(pid int) bool {
			ok, err := process.PidExists(int32(pid))
			return err != nil || ok
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Plugin{m: m, procs: procs, open: opts.Open, alive: opts.Alive, logger: logger}, nil
}

// Factory returns the descriptor factory to hand to plugin.Registry.Load.
func (p *Plugin) Factory() plugin.Factory {
	return func() *plugin.Descriptor {
		return &plugin.Descriptor{
			Magic:     plugin.MagicV2,
			ABI:       plugin.ABIv2,
			Name:      p.m.Name,
			ShortName: p.m.ShortName,
			Plugin:    p,
		}
	}
}

// LockedPID returns the attached pid, or 0.
func (p *Plugin) LockedPID() int {
	if p.proc == nil {
		return 0
	}
	return p.proc.PID()
}

// TryLock attaches to the first matching process whose memory yields a
// complete first reading. Matching processes that are not ready yet (module
// not mapped, pointer chain still null) are remembered and tried again on
// later calls, since the host offers each process only once.
func (p *Plugin) TryLock(candidates []plugin.Candidate) bool {
	if p.proc != nil {
		return true
	}
	for _, c := range candidates {
		if p.procs.MatchAny(c.Name) != nil {
			p.remember(c)
		}
	}

	retry := p.pending[:0]
	for _, c := range p.pending {
		if err := p.attach(c); err != nil {
			p.logger.Debug("manifest: attach failed", "plugin", p.m.ShortName, "pid", c.PID, "exe", c.Name, "error", err)
			if p.alive(c.PID) {
				retry = append(retry, c)
			}
			continue
		}
		p.pending = nil
		return true
	}
	p.pending = retry
	return false
}

func (p *Plugin) remember(c plugin.Candidate) {
	for i, known := range p.pending {
		if known.PID == c.PID {
			p.pending[i] = c
			return
		}
	}
	if len(p.pending) == maxPending {
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, c)
}

// Pending returns the processes awaiting another attach attempt.
func (p *Plugin) Pending() []plugin.Candidate {
	return append([]plugin.Candidate(nil), p.pending...)
}

func (p *Plugin) attach(c plugin.Candidate) error {
	proc, err := p.open(c.PID, procmem.Options{PointerSize: p.m.PointerSize, Logger: p.logger})
	if err != nil {
		return err
	}
	module := p.m.Module
	if module == "" {
		module = c.Name
	}
	base, err := proc.ModuleBase(module)
	if err != nil {
		_ = proc.Close()
		return err
	}

	p.proc, p.base = proc, base
	trial := plugin.NewFetchResult(bufferCap(p.m.Context), bufferCap(p.m.Identity))
	if ok, err := p.Fetch(trial); !ok || err != nil {
		p.Unlock()
		if err == nil {
			err = errors.New("process lost during first fetch")
		}
		return fmt.Errorf("first fetch: %w", err)
	}
	p.logger.Info("manifest: locked", "plugin", p.m.ShortName, "pid", c.PID, "module", module, "base", fmt.Sprintf("%#x", base))
	return nil
}

func bufferCap(b *Buffer) int {
	if b == nil {
		return 1
	}
	return b.Size + 1
}

// Fetch reads one pose. A failed read skips the cycle while the process
// lives and unlocks once it is gone.
func (p *Plugin) Fetch(out *plugin.FetchResult) (bool, error) {
	if p.proc == nil {
		return false, nil
	}
	err := p.read(out)
	if err == nil {
		return true, nil
	}
	out.Reset()
	if !p.alive(p.proc.PID()) {
		return false, nil
	}
	return true, err
}

func (p *Plugin) read(out *plugin.FetchResult) error {
	if len(p.m.State) > 0 {
		addr, err := p.resolve(p.m.State)
		if err != nil {
			return fmt.Errorf("state: %w", err)
		}
		state, err := p.proc.ReadUint8(addr)
		if err != nil {
			return fmt.Errorf("state: %w", err)
		}
		if state == 0 {
			out.Reset()
			return nil
		}
	}

	var err error
	if out.AvatarPos, out.AvatarFront, out.AvatarTop, err = p.readFrame(p.m.Avatar); err != nil {
		return fmt.Errorf("avatar: %w", err)
	}
	if p.m.Camera == nil {
		out.CameraPos, out.CameraFront, out.CameraTop = out.AvatarPos, out.AvatarFront, out.AvatarTop
	} else if out.CameraPos, out.CameraFront, out.CameraTop, err = p.readFrame(*p.m.Camera); err != nil {
		return fmt.Errorf("camera: %w", err)
	}

	if b := p.m.Context; b != nil {
		raw, err := p.readBuffer(b)
		if err != nil {
			return fmt.Errorf("context: %w", err)
		}
		out.Context.Set(raw)
	}
	if b := p.m.Identity; b != nil {
		raw, err := p.readBuffer(b)
		if err != nil {
			return fmt.Errorf("identity: %w", err)
		}
		out.Identity.SetString(decodeString(raw, b.Encoding))
	}
	return nil
}

func (p *Plugin) readFrame(f Frame) (pos, front, top plugin.Vec3, err error) {
	if pos, err = p.readVec(f.Position); err != nil {
		return
	}
	for i := range pos {
		pos[i] *= p.m.Scale
	}
	if front, err = p.readVec(f.Front); err != nil {
		return
	}
	top, err = p.readVec(f.Top)
	return
}

func (p *Plugin) readVec(c Chain) (plugin.Vec3, error) {
	if len(c) == 0 {
		return plugin.Vec3{}, nil
	}
	addr, err := p.resolve(c)
	if err != nil {
		return plugin.Vec3{}, err
	}
	v, err := p.proc.ReadVec3(addr)
	return plugin.Vec3(v), err
}

func (p *Plugin) readBuffer(b *Buffer) ([]byte, error) {
	addr, err := p.resolve(b.Pointer)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, b.Size)
	if err := p.proc.ReadAt(addr, buf); err != nil {
		return nil, err
	}
	if b.Encoding == EncodingCString {
		if i := strings.IndexByte(string(buf), 0); i >= 0 {
			buf = buf[:i]
		}
	}
	return buf, nil
}

func (p *Plugin) resolve(c Chain) (uint64, error) {
	offsets := make([]uint64, len(c))
	for i, off := range c {
		offsets[i] = uint64(off)
	}
	return p.proc.FollowPointers(p.base, offsets...)
}

func decodeString(raw []byte, encoding string) string {
	if encoding != EncodingUTF16 {
		return string(raw)
	}
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			raw = raw[:i]
			break
		}
	}
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return string(out)
}

// Unlock closes the memory reader.
func (p *Plugin) Unlock() {
	if p.proc == nil {
		return
	}
	if err := p.proc.Close(); err != nil {
		p.logger.Debug("manifest: close failed", "plugin", p.m.ShortName, "error", err)
	}
	p.proc, p.base = nil, 0
}
