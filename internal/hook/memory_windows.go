//go:build windows

package hook

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

const allocGranularity = 64 * 1024

var procFlushInstructionCache = windows.NewLazySystemDLL("kernel32.dll").NewProc("FlushInstructionCache")

type nativeMemory struct {
	pageSize int
	process  windows.Handle
}

// NativeMemory returns the Memory of the current process.
func NativeMemory() Memory {
	return &nativeMemory{pageSize: os.Getpagesize(), process: windows.CurrentProcess()}
}

func (m *nativeMemory) PageSize() int { return m.pageSize }

// Read goes through ReadProcessMemory so an unmapped address is an error
// rather than an access violation.
func (m *nativeMemory) Read(addr uintptr, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	var done uintptr
	if err := windows.ReadProcessMemory(m.process, addr, &buf[0], uintptr(len(buf)), &done); err != nil {
		return fmt.Errorf("read %#x: %w", addr, err)
	}
	if int(done) != len(buf) {
		return fmt.Errorf("read %#x: short read %d of %d", addr, done, len(buf))
	}
	return nil
}

func (m *nativeMemory) Write(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var old uint32
	if err := windows.VirtualProtect(addr, uintptr(len(data)), windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return fmt.Errorf("VirtualProtect %#x: %w", addr, err)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data)), data)

	var ignored uint32
	err := windows.VirtualProtect(addr, uintptr(len(data)), old, &ignored)
	_, _, _ = procFlushInstructionCache.Call(uintptr(m.process), addr, uintptr(len(data)))
	if err != nil {
		return fmt.Errorf("restore protection %#x: %w", addr, err)
	}
	return nil
}

func (m *nativeMemory) Alloc(near uintptr, size int) (uintptr, error) {
	const kind = windows.MEM_COMMIT | windows.MEM_RESERVE

	base := near &^ (allocGranularity - 1)
	for i := uintptr(1); i <= 512; i++ {
		hint := base - i*allocGranularity
		if hint > base {
			break
		}
		if p, err := windows.VirtualAlloc(hint, uintptr(size), kind, windows.PAGE_EXECUTE_READWRITE); err == nil {
			return p, nil
		}
	}

	p, err := windows.VirtualAlloc(0, uintptr(size), kind, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return 0, fmt.Errorf("VirtualAlloc %d bytes: %w", size, err)
	}
	return p, nil
}

func (m *nativeMemory) Free(addr uintptr, _ int) error {
	return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}
