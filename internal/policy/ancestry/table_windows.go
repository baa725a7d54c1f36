//go:build windows

package ancestry

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// toolhelpTable resolves parents and modules through Toolhelp32 snapshots.
type toolhelpTable struct{}

// NewNativeTable returns the Toolhelp32 backed process table.
func NewNativeTable() ProcessTable {
	return toolhelpTable{}
}

// ParentOf implements ProcessTable.
func (toolhelpTable) ParentOf(pid int) (int, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	if err := windows.Process32First(snapshot, &entry); err != nil {
		return 0, fmt.Errorf("Process32First failed: %w", err)
	}

	for {
		if int(entry.ProcessID) == pid {
			return int(entry.ParentProcessID), nil
		}
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			break
		}
	}

	return 0, fmt.Errorf("pid %d not in process snapshot", pid)
}

// ExecutableOf implements ProcessTable. The first module of a module
// snapshot is the process image; QueryFullProcessImageName is the fallback
// for processes whose modules cannot be enumerated across bitness.
func (toolhelpTable) ExecutableOf(pid int) (string, error) {
	if path, err := firstModulePath(uint32(pid)); err == nil {
		return path, nil
	}
	return processImageName(uint32(pid))
}

func firstModulePath(pid uint32) (string, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, pid)
	if err != nil {
		return "", fmt.Errorf("module snapshot of pid %d: %w", pid, err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Module32First(snapshot, &entry); err != nil {
		return "", fmt.Errorf("Module32First for pid %d: %w", pid, err)
	}
	return windows.UTF16ToString(entry.ExePath[:]), nil
}

func processImageName(pid uint32) (string, error) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("OpenProcess failed: %w", err)
	}
	defer windows.CloseHandle(handle)

	var buf [windows.MAX_PATH]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("QueryFullProcessImageName failed: %w", err)
	}
	return windows.UTF16ToString(buf[:size]), nil
}
