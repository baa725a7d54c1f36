//go:build !linux && !windows

package ancestry

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// psutilTable is the portable fallback backed by gopsutil.
type psutilTable struct{}

// NewNativeTable returns the gopsutil backed process table.
func NewNativeTable() ProcessTable {
	return psutilTable{}
}

// ParentOf implements ProcessTable.
func (psutilTable) ParentOf(pid int) (int, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, fmt.Errorf("pid %d: %w", pid, err)
	}
	ppid, err := p.Ppid()
	if err != nil {
		return 0, fmt.Errorf("parent of pid %d: %w", pid, err)
	}
	return int(ppid), nil
}

// ExecutableOf implements ProcessTable.
func (psutilTable) ExecutableOf(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("pid %d: %w", pid, err)
	}
	exe, err := p.Exe()
	if err != nil {
		return "", fmt.Errorf("exe of pid %d: %w", pid, err)
	}
	return exe, nil
}
