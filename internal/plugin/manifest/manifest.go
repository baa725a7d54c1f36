// Package manifest implements a telemetry plugin described by a YAML file:
// which processes to lock onto and where in their memory the pose lives.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/gameoverlay/gameoverlay/internal/policy/pattern"
)

// ErrInvalidManifest is returned for manifests that fail validation.
var ErrInvalidManifest = errors.New("invalid plugin manifest")

// Buffer encodings.
const (
	EncodingRaw     = "raw"     // bytes as read
	EncodingCString = "cstring" // cut at the first NUL
	EncodingUTF16   = "utf16"   // UTF-16LE, cut at the first NUL unit
)

const maxBufferSize = 4096

// Chain locates a value. The first offset is relative to the module base;
// every further offset dereferences the pointer reached so far and adds
// itself. Negative offsets are allowed.
type Chain []int64

// Frame locates the three vectors of a position plus orientation.
type Frame struct {
	Position Chain `yaml:"position"`
	Front    Chain `yaml:"front"`
	Top      Chain `yaml:"top"`
}

// Buffer locates a string or blob of at most Size bytes.
type Buffer struct {
	Pointer  Chain  `yaml:"pointer"`
	Size     int    `yaml:"size"`
	Encoding string `yaml:"encoding"`
}

// Manifest describes one game.
type Manifest struct {
	Name      string   `yaml:"name"`
	ShortName string   `yaml:"short_name"`
	Processes []string `yaml:"processes"`
	// Module holds the layout offsets. Empty means the matched executable.
	Module      string  `yaml:"module"`
	PointerSize int     `yaml:"pointer_size"`
	Scale       float32 `yaml:"scale"`

	// State, when set, is a byte that is zero while the player is not in
	// a game.
	State    Chain   `yaml:"state"`
	Avatar   Frame   `yaml:"avatar"`
	Camera   *Frame  `yaml:"camera"`
	Context  *Buffer `yaml:"context"`
	Identity *Buffer `yaml:"identity"`

	path string
}

// Path returns the file the manifest was loaded from.
func (m *Manifest) Path() string { return m.path }

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.path = path
	return m, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, in name order. Broken
// manifests are reported in errs and skipped.
func LoadDir(dir string) (manifests []*Manifest, errs []error) {
	var files []string
	for _, glob := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, glob))
		if err != nil {
			return nil, []error{err}
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	for _, f := range files {
		m, err := Load(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, errs
}

func (m *Manifest) applyDefaults() {
	if m.Name == "" {
		m.Name = m.ShortName
	}
	if m.Scale == 0 {
		m.Scale = 1
	}
	if m.Context != nil && m.Context.Encoding == "" {
		m.Context.Encoding = EncodingRaw
	}
	if m.Identity != nil && m.Identity.Encoding == "" {
		m.Identity.Encoding = EncodingCString
	}
}

func (m *Manifest) validate() error {
	if m.ShortName == "" {
		return fmt.Errorf("%w: short_name is required", ErrInvalidManifest)
	}
	if len(m.Processes) == 0 {
		return fmt.Errorf("%w: %s: processes is empty", ErrInvalidManifest, m.ShortName)
	}
	if _, err := pattern.NewSet(m.Processes); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidManifest, m.ShortName, err)
	}
	switch m.PointerSize {
	case 0, 4, 8:
	default:
		return fmt.Errorf("%w: %s: pointer_size must be 4 or 8", ErrInvalidManifest, m.ShortName)
	}
	if len(m.Avatar.Position) == 0 {
		return fmt.Errorf("%w: %s: avatar.position is required", ErrInvalidManifest, m.ShortName)
	}
	for name, b := range map[string]*Buffer{"context": m.Context, "identity": m.Identity} {
		if b == nil {
			continue
		}
		if len(b.Pointer) == 0 {
			return fmt.Errorf("%w: %s: %s.pointer is required", ErrInvalidManifest, m.ShortName, name)
		}
		if b.Size <= 0 || b.Size > maxBufferSize {
			return fmt.Errorf("%w: %s: %s.size must be in 1..%d", ErrInvalidManifest, m.ShortName, name, maxBufferSize)
		}
		switch b.Encoding {
		case EncodingRaw, EncodingCString, EncodingUTF16:
		default:
			return fmt.Errorf("%w: %s: %s.encoding %q", ErrInvalidManifest, m.ShortName, name, b.Encoding)
		}
	}
	return nil
}
