package hook

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

type region struct {
	base     uintptr
	data     []byte
	readOnly bool
}

// fakeMemory is a sparse address space made of regions.
type fakeMemory struct {
	mu        sync.Mutex
	regions   []*region
	nextAlloc uintptr
	allocs    int
	frees     int
}

func newFakeMemory(allocBase uintptr) *fakeMemory {
	return &fakeMemory{nextAlloc: allocBase}
}

// mapCode places code at base followed by int3 padding.
func (f *fakeMemory) mapCode(base uintptr, code []byte) *region {
	data := append(append([]byte(nil), code...), bytes.Repeat([]byte{0xCC}, 64)...)
	r := &region{base: base, data: data}
	f.regions = append(f.regions, r)
	return r
}

func (f *fakeMemory) find(addr uintptr, n int) (*region, error) {
	for _, r := range f.regions {
		if addr >= r.base && addr+uintptr(n) <= r.base+uintptr(len(r.data)) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("unmapped %#x+%d", addr, n)
}

func (f *fakeMemory) bytesAt(addr uintptr, n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.find(addr, n)
	if err != nil {
		panic(err)
	}
	off := addr - r.base
	return append([]byte(nil), r.data[off:off+uintptr(n)]...)
}

func (f *fakeMemory) Read(addr uintptr, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.find(addr, len(buf))
	if err != nil {
		return err
	}
	copy(buf, r.data[addr-r.base:])
	return nil
}

func (f *fakeMemory) Write(addr uintptr, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.find(addr, len(data))
	if err != nil {
		return err
	}
	if r.readOnly {
		return errors.New("EACCES")
	}
	copy(r.data[addr-r.base:], data)
	return nil
}

func (f *fakeMemory) Alloc(_ uintptr, size int) (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := f.nextAlloc
	f.nextAlloc += uintptr(size)
	f.regions = append(f.regions, &region{base: base, data: make([]byte, size)})
	f.allocs++
	return base, nil
}

func (f *fakeMemory) Free(addr uintptr, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.regions {
		if r.base == addr {
			f.regions = append(f.regions[:i], f.regions[i+1:]...)
			f.frees++
			return nil
		}
	}
	return fmt.Errorf("free of unknown %#x", addr)
}

func (f *fakeMemory) PageSize() int { return 4096 }
