//go:build linux && (amd64 || 386)

package hook

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// allocHints is how many nearby addresses Alloc proposes before accepting
// wherever the kernel places the page.
const allocHints = 32

type nativeMemory struct {
	pageSize int
}

// NativeMemory returns the Memory of the current process.
func NativeMemory() Memory {
	return &nativeMemory{pageSize: unix.Getpagesize()}
}

func (m *nativeMemory) PageSize() int { return m.pageSize }

// Read goes through process_vm_readv so an unmapped address is an error
// rather than a fault.
func (m *nativeMemory) Read(addr uintptr, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: addr, Len: len(buf)}}
	n, err := unix.ProcessVMReadv(os.Getpid(), local, remote, 0)
	if err != nil {
		return fmt.Errorf("read %#x: %w", addr, err)
	}
	if n != len(buf) {
		return fmt.Errorf("read %#x: short read %d of %d", addr, n, len(buf))
	}
	return nil
}

func (m *nativeMemory) pages(addr uintptr, n int) []byte {
	start := addr &^ uintptr(m.pageSize-1)
	end := (addr + uintptr(n) + uintptr(m.pageSize) - 1) &^ uintptr(m.pageSize-1)
	return unsafe.Slice((*byte)(unsafe.Pointer(start)), end-start)
}

func (m *nativeMemory) Write(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	region := m.pages(addr, len(data))
	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect %#x: %w", addr, err)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data)), data)
	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("restore protection %#x: %w", addr, err)
	}
	return nil
}

func (m *nativeMemory) Alloc(near uintptr, size int) (uintptr, error) {
	const prot = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	const flags = unix.MAP_PRIVATE | unix.MAP_ANON

	step := uintptr(64 * 1024)
	base := near &^ (step - 1)
	for i := uintptr(1); i <= allocHints; i++ {
		hint := base - i*step
		if hint > base {
			break
		}
		p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(hint), uintptr(size), prot, flags)
		if err != nil {
			continue
		}
		got := uintptr(p)
		if fitsRel32(64, near, got) && fitsRel32(64, got, near) {
			return got, nil
		}
		_ = unix.MunmapPtr(p, uintptr(size))
	}

	p, err := unix.MmapPtr(-1, 0, nil, uintptr(size), prot, flags)
	if err != nil {
		return 0, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return uintptr(p), nil
}

func (m *nativeMemory) Free(addr uintptr, size int) error {
	return unix.MunmapPtr(unsafe.Pointer(addr), uintptr(size))
}
