package plugin

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessLister enumerates running processes for TryLock candidates.
type ProcessLister interface {
	Processes(ctx context.Context) ([]Candidate, error)
}

// SystemLister lists processes of the local machine.
type SystemLister struct{}

// Processes returns every process whose name can be read.
func (SystemLister) Processes(ctx context.Context) ([]Candidate, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		out = append(out, Candidate{PID: int(p.Pid), Name: name})
	}
	return out, nil
}
