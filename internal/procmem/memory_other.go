//go:build !linux && !windows

package procmem

import "fmt"

func openNative(pid int) (Memory, int, error) {
	return nil, 0, fmt.Errorf("open pid %d: %w", pid, ErrUnsupported)
}
