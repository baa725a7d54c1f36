// Package plugin drives game telemetry plugins through a lock, poll and
// unlock cycle and relays the poses they report.
package plugin

import (
	"errors"
	"fmt"
)

// ABI identifies a plugin interface generation.
type ABI int

const (
	// ABIv1 plugins scan for their game themselves; TryLock receives no
	// candidates.
	ABIv1 ABI = 1
	// ABIv2 plugins receive the processes seen since the previous poll.
	ABIv2 ABI = 2
	// ABICv1 is the C-compatible descriptor layout, same call semantics as
	// ABIv2.
	ABICv1 ABI = 3
)

// Magic numbers a descriptor must carry for its declared ABI.
const (
	MagicV1  uint32 = 0xf4573570
	MagicV2  uint32 = 0xf457357f
	MagicCV1 uint32 = 0xf010101d
)

func (a ABI) String() string {
	switch a {
	case ABIv1:
		return "v1"
	case ABIv2:
		return "v2"
	case ABICv1:
		return "c-v1"
	default:
		return fmt.Sprintf("abi(%d)", int(a))
	}
}

// ExpectedMagic returns the magic the host accepts for a.
func ExpectedMagic(a ABI) (uint32, bool) {
	switch a {
	case ABIv1:
		return MagicV1, true
	case ABIv2:
		return MagicV2, true
	case ABICv1:
		return MagicCV1, true
	default:
		return 0, false
	}
}

// WantsCandidates reports whether TryLock is given a candidate list.
func (a ABI) WantsCandidates() bool {
	return a != ABIv1
}

var (
	// ErrABIMismatch rejects a descriptor whose magic does not match its
	// declared ABI.
	ErrABIMismatch = errors.New("plugin ABI mismatch")

	// ErrInvalidDescriptor rejects a descriptor missing required fields.
	ErrInvalidDescriptor = errors.New("invalid plugin descriptor")

	// ErrDuplicatePlugin rejects a second plugin with the same short name.
	ErrDuplicatePlugin = errors.New("duplicate plugin short name")
)

// Candidate is a running process offered to TryLock.
type Candidate struct {
	PID  int
	Name string
}

// Plugin is the capability set of a telemetry plugin.
type Plugin interface {
	// TryLock inspects candidates and reports whether the plugin attached
	// to a process it recognizes.
	TryLock(candidates []Candidate) bool

	// Fetch fills out. It returns false when the plugin lost its process.
	// A non-nil error with true means no update this cycle.
	Fetch(out *FetchResult) (bool, error)

	// Unlock releases the attached process.
	Unlock()
}

// Attached is implemented by plugins that can name the process they hold.
type Attached interface {
	LockedPID() int
}

// Descriptor is what a plugin factory returns.
type Descriptor struct {
	Magic     uint32
	ABI       ABI
	Name      string // display name
	ShortName string // context namespace
	Plugin    Plugin
}

// Factory creates a plugin descriptor.
type Factory func() *Descriptor

func (d *Descriptor) validate() error {
	expected, ok := ExpectedMagic(d.ABI)
	if !ok {
		return fmt.Errorf("%w: unknown ABI %s", ErrABIMismatch, d.ABI)
	}
	if d.Magic != expected {
		return fmt.Errorf("%w: magic %#08x, want %#08x for ABI %s", ErrABIMismatch, d.Magic, expected, d.ABI)
	}
	if d.ShortName == "" {
		return fmt.Errorf("%w: empty short name", ErrInvalidDescriptor)
	}
	if d.Plugin == nil {
		return fmt.Errorf("%w: %s has no implementation", ErrInvalidDescriptor, d.ShortName)
	}
	return nil
}

// NamespaceContext prefixes a plugin context with the plugin's short name
// so only users of the same plugin and context share a group. An empty
// context stays empty.
func NamespaceContext(shortName string, context []byte) string {
	if len(context) == 0 {
		return ""
	}
	return shortName + "\x00" + string(context)
}
