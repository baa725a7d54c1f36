//go:build linux

package ancestry

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// procTable reads parent and executable from /proc.
type procTable struct {
	mount string
}

// NewNativeTable returns the /proc backed process table.
func NewNativeTable() ProcessTable {
	return &procTable{mount: procfs.DefaultMountPoint}
}

// NewProcTable returns a process table rooted at a custom procfs mount.
func NewProcTable(mount string) ProcessTable {
	return &procTable{mount: mount}
}

func (t *procTable) proc(pid int) (procfs.Proc, error) {
	fs, err := procfs.NewFS(t.mount)
	if err != nil {
		return procfs.Proc{}, fmt.Errorf("open procfs %s: %w", t.mount, err)
	}
	p, err := fs.Proc(pid)
	if err != nil {
		return procfs.Proc{}, fmt.Errorf("pid %d: %w", pid, err)
	}
	return p, nil
}

// ParentOf implements ProcessTable.
func (t *procTable) ParentOf(pid int) (int, error) {
	p, err := t.proc(pid)
	if err != nil {
		return 0, err
	}
	stat, err := p.Stat()
	if err != nil {
		return 0, fmt.Errorf("read stat of pid %d: %w", pid, err)
	}
	return stat.PPID, nil
}

// ExecutableOf implements ProcessTable.
func (t *procTable) ExecutableOf(pid int) (string, error) {
	p, err := t.proc(pid)
	if err != nil {
		return "", err
	}
	exe, err := p.Executable()
	if err != nil {
		return "", fmt.Errorf("read exe of pid %d: %w", pid, err)
	}
	// Kernel threads have no executable image.
	if exe == "" {
		return "", fmt.Errorf("pid %d has no executable", pid)
	}
	return exe, nil
}
