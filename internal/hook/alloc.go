package hook

import (
	"fmt"
	"math"
)

// slab hands out fixed trampoline slots from executable pages, reusing a
// page near the target when one has room.
type slab struct {
	mem      Memory
	mode     int
	pageSize int
	pages    []*slabPage
}

type slabPage struct {
	base uintptr
	used []bool
	n    int
}

func newSlab(mem Memory, mode int) *slab {
	ps := mem.PageSize()
	if ps < slotSize {
		ps = slotSize
	}
	return &slab{mem: mem, mode: mode, pageSize: ps}
}

func (s *slab) reachable(p *slabPage, near uintptr) bool {
	if s.mode == 32 {
		return true
	}
	d := int64(p.base) - int64(near)
	if d < 0 {
		d = -d
	}
	return d < math.MaxInt32-int64(s.pageSize)
}

func (s *slab) alloc(near uintptr) (uintptr, error) {
	for _, p := range s.pages {
		if p.n == len(p.used) || !s.reachable(p, near) {
			continue
		}
		for i, u := range p.used {
			if !u {
				p.used[i] = true
				p.n++
				return p.base + uintptr(i*slotSize), nil
			}
		}
	}

	base, err := s.mem.Alloc(near, s.pageSize)
	if err != nil {
		return 0, fmt.Errorf("allocate trampoline page: %w", err)
	}
	p := &slabPage{base: base, used: make([]bool, s.pageSize/slotSize)}
	p.used[0] = true
	p.n = 1
	s.pages = append(s.pages, p)
	return base, nil
}

func (s *slab) release(addr uintptr) error {
	for i, p := range s.pages {
		if addr < p.base || addr >= p.base+uintptr(s.pageSize) {
			continue
		}
		slot := int(addr-p.base) / slotSize
		if !p.used[slot] {
			return nil
		}
		p.used[slot] = false
		p.n--
		if p.n == 0 {
			s.pages = append(s.pages[:i], s.pages[i+1:]...)
			return s.mem.Free(p.base, s.pageSize)
		}
		return nil
	}
	return nil
}
