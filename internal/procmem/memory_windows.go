//go:build windows

package procmem

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

type winMemory struct {
	pid    uint32
	handle windows.Handle
}

func openNative(pid int) (Memory, int, error) {
	h, err := windows.OpenProcess(windows.PROCESS_VM_READ|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return nil, 0, fmt.Errorf("open pid %d: %w", pid, err)
	}

	ptrSize := int(unsafe.Sizeof(uintptr(0)))
	var wow64 bool
	if err := windows.IsWow64Process(h, &wow64); err == nil && wow64 {
		ptrSize = 4
	}
	return &winMemory{pid: uint32(pid), handle: h}, ptrSize, nil
}

func (m *winMemory) ReadMemory(addr uint64, buf []byte) (int, error) {
	var done uintptr
	err := windows.ReadProcessMemory(m.handle, uintptr(addr), &buf[0], uintptr(len(buf)), &done)
	if err != nil && !errors.Is(err, windows.ERROR_PARTIAL_COPY) {
		return int(done), err
	}
	return int(done), nil
}

func (m *winMemory) Modules() ([]Module, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, m.pid)
	if err != nil {
		return nil, fmt.Errorf("module snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	var mods []Module
	for err = windows.Module32First(snap, &entry); err == nil; err = windows.Module32Next(snap, &entry) {
		mods = append(mods, Module{
			Name: windows.UTF16ToString(entry.Module[:]),
			Path: windows.UTF16ToString(entry.ExePath[:]),
			Base: uint64(entry.ModBaseAddr),
			Size: uint64(entry.ModBaseSize),
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return mods, err
	}
	return mods, nil
}

func (m *winMemory) Close() error {
	if m.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(m.handle)
	m.handle = 0
	return err
}
