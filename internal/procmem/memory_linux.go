//go:build linux

package procmem

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// vmMemory reads with process_vm_readv and lists modules from
// /proc/<pid>/maps.
type vmMemory struct {
	pid  int
	proc procfs.Proc
}

func openNative(pid int) (Memory, int, error) {
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return nil, 0, fmt.Errorf("open pid %d: %w", pid, err)
	}
	return &vmMemory{pid: pid, proc: proc}, strconv.IntSize / 8, nil
}

func (m *vmMemory) ReadMemory(addr uint64, buf []byte) (int, error) {
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	return unix.ProcessVMReadv(m.pid, local, remote, 0)
}

func (m *vmMemory) Modules() ([]Module, error) {
	maps, err := m.proc.ProcMaps()
	if err != nil {
		return nil, err
	}

	var mods []Module
	index := map[string]int{}
	for _, pm := range maps {
		if pm.Pathname == "" || pm.Pathname[0] != '/' {
			continue
		}
		start, end := uint64(pm.StartAddr), uint64(pm.EndAddr)
		i, ok := index[pm.Pathname]
		if !ok {
			index[pm.Pathname] = len(mods)
			mods = append(mods, Module{
				Name: filepath.Base(pm.Pathname),
				Path: pm.Pathname,
				Base: start,
				Size: end - start,
			})
			continue
		}
		mod := &mods[i]
		if start < mod.Base {
			mod.Size += mod.Base - start
			mod.Base = start
		}
		if end > mod.Base+mod.Size {
			mod.Size = end - mod.Base
		}
	}
	return mods, nil
}

func (m *vmMemory) Close() error { return nil }
