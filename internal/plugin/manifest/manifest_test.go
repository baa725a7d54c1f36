package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExample(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "game.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "Example Game", m.Name)
	assert.Equal(t, "example", m.ShortName)
	assert.Equal(t, "game.exe", m.Module)
	assert.Equal(t, 8, m.PointerSize)
	assert.Equal(t, float32(0.5), m.Scale)
	assert.Equal(t, Chain{0x10}, m.State)
	assert.Equal(t, Chain{0x20, 0x8}, m.Avatar.Position)
	assert.Nil(t, m.Camera)
	require.NotNil(t, m.Identity)
	assert.Equal(t, EncodingUTF16, m.Identity.Encoding)
	assert.Equal(t, filepath.Join("testdata", "game.yaml"), m.Path())
}

func TestParseDefaults(t *testing.T) {
	m, err := Parse([]byte(`
short_name: tiny
processes: [tiny.exe]
avatar:
  position: [0x10, -0x8]
context:
  pointer: [0x20]
  size: 4
identity:
  pointer: [0x30]
  size: 4
`))
	require.NoError(t, err)
	assert.Equal(t, "tiny", m.Name)
	assert.Equal(t, float32(1), m.Scale)
	assert.Equal(t, Chain{0x10, -0x8}, m.Avatar.Position)
	assert.Equal(t, EncodingRaw, m.Context.Encoding)
	assert.Equal(t, EncodingCString, m.Identity.Encoding)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "short_name: [unclosed"},
		{"no short name", "processes: [a.exe]\navatar: {position: [1]}"},
		{"no processes", "short_name: x\navatar: {position: [1]}"},
		{"bad pattern", "short_name: x\nprocesses: ['re:(']\navatar: {position: [1]}"},
		{"bad pointer size", "short_name: x\nprocesses: [a.exe]\npointer_size: 3\navatar: {position: [1]}"},
		{"no avatar position", "short_name: x\nprocesses: [a.exe]"},
		{"context without pointer", "short_name: x\nprocesses: [a.exe]\navatar: {position: [1]}\ncontext: {size: 4}"},
		{"context size zero", "short_name: x\nprocesses: [a.exe]\navatar: {position: [1]}\ncontext: {pointer: [1]}"},
		{"identity too big", "short_name: x\nprocesses: [a.exe]\navatar: {position: [1]}\nidentity: {pointer: [1], size: 5000}"},
		{"bad encoding", "short_name: x\nprocesses: [a.exe]\navatar: {position: [1]}\nidentity: {pointer: [1], size: 4, encoding: latin1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	good, err := os.ReadFile(filepath.Join("testdata", "game.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), good, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("short_name: broken"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	manifests, errs := LoadDir(dir)
	require.Len(t, manifests, 1)
	assert.Equal(t, "example", manifests[0].ShortName)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrInvalidManifest)
	assert.Contains(t, errs[0].Error(), "b.yml")
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
