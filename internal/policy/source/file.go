package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// File is a Source backed by a YAML document of the form
//
//	mode: 0
//	blacklist: [bad.exe]
//	launchersexclude: [steam.exe]
//
// Each key is decoded on its own so a malformed list only empties itself.
type File struct {
	path   string
	values map[string]yaml.Node
}

// LoadFile reads and parses a YAML exclusion file.
func LoadFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat exclusion file: %w", err)
	}
	if info.Size() > MaxValueSize {
		return nil, fmt.Errorf("exclusion file %s: %d bytes: %w", path, info.Size(), ErrConfigMalformed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exclusion file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("parse exclusion file %s: %w", path, err)
	}
	f.path = path
	return f, nil
}

// OpenFile is LoadFile for the running overlay: every failure degrades to
// an empty store so the built-in defaults apply. A missing file is silent;
// an unreadable, oversized or malformed one is logged.
func OpenFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f, err := LoadFile(path)
	if err == nil {
		return f
	}
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("source: exclusion file absent, using defaults", "path", path)
	} else {
		logger.Warn("source: exclusion file ignored, using defaults", "path", path, "error", err)
	}
	return &File{path: path, values: map[string]yaml.Node{}}
}

// ParseFile parses a YAML exclusion document.
func ParseFile(data []byte) (*File, error) {
	values := map[string]yaml.Node{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigMalformed, err)
	}
	return &File{values: values}, nil
}

// MultiString implements Source.
func (f *File) MultiString(name string) ([]string, error) {
	node, ok := f.values[name]
	if !ok {
		return nil, ErrNotFound
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%s: expected a list: %w", name, ErrConfigMalformed)
	}
	var out []string
	if err := node.Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", name, err, ErrConfigMalformed)
	}
	return out, nil
}

// Mode implements Source.
func (f *File) Mode() (int, error) {
	node, ok := f.values[Mode]
	if !ok {
		return 0, ErrNotFound
	}
	var mode int
	if err := node.Decode(&mode); err != nil {
		return 0, fmt.Errorf("mode: %v: %w", err, ErrConfigMalformed)
	}
	return mode, nil
}

// Name implements Source.
func (f *File) Name() string {
	if f.path == "" {
		return "file"
	}
	return "file:" + f.path
}
