//go:build linux && amd64

package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readNative(t *testing.T, mem Memory, addr uintptr, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	require.NoError(t, mem.Read(addr, buf))
	return buf
}

func TestNativeMemory_InstallUninstallRoundTrip(t *testing.T) {
	mem := NativeMemory()
	size := mem.PageSize()
	page, err := mem.Alloc(0, size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Free(page, size) })

	target := page
	replacement := page + uintptr(size/2)
	require.NoError(t, mem.Write(target, standardPrologue))
	require.Equal(t, standardPrologue, readNative(t, mem, target, len(standardPrologue)))

	e := NewNativeEngine(Config{Mode: 64})
	h, err := e.Install(target, replacement)
	require.NoError(t, err)

	entry := readNative(t, mem, target, 8)
	assert.Equal(t, byte(0xE9), entry[0])
	assert.Equal(t, replacement, jmpTarget(entry, target))
	assert.Equal(t, []byte{0x90, 0x90, 0x90}, entry[5:8])
	assert.Equal(t, standardPrologue[8:], readNative(t, mem, target+8, len(standardPrologue)-8), "tail untouched")

	tramp := readNative(t, mem, h.Trampoline, 8)
	assert.Equal(t, standardPrologue[:8], tramp)

	require.NoError(t, h.Disable())
	assert.Equal(t, standardPrologue, readNative(t, mem, target, len(standardPrologue)))
	require.NoError(t, h.Enable())
	assert.Equal(t, entry, readNative(t, mem, target, 8))

	require.NoError(t, h.Uninstall())
	assert.Equal(t, standardPrologue, readNative(t, mem, target, len(standardPrologue)))
	assert.Zero(t, e.Table().Len())
}

func TestNativeMemory_AllocNear(t *testing.T) {
	mem := NativeMemory()
	size := mem.PageSize()
	anchor, err := mem.Alloc(0, size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Free(anchor, size) })

	near, err := mem.Alloc(anchor, size)
	require.NoError(t, err)
	assert.True(t, fitsRel32(64, anchor, near))

	require.NoError(t, mem.Write(near, []byte{0xc3}))
	assert.Equal(t, []byte{0xc3}, readNative(t, mem, near, 1))
	require.NoError(t, mem.Free(near, size))
}
