package ancestry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeTable_CurrentProcess(t *testing.T) {
	table := NewNativeTable()

	ppid, err := table.ParentOf(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getppid(), ppid)

	exe, err := table.ExecutableOf(os.Getpid())
	require.NoError(t, err)
	assert.NotEmpty(t, exe)
}

func TestNativeTable_NonExistentProcess(t *testing.T) {
	table := NewNativeTable()

	// Use a very high PID that's unlikely to exist
	_, err := table.ParentOf(999999999)
	assert.Error(t, err)
}

func TestNativeWalker_CurrentProcess(t *testing.T) {
	chain := NewNativeWalker(WalkerConfig{}).Walk(os.Getpid())

	// The test binary was started by something (go test, a shell), but in
	// minimal containers that parent may be unreadable. Any prefix is valid.
	if parent, ok := chain.Parent(); ok {
		assert.Equal(t, os.Getppid(), parent.PID)
		assert.NotEmpty(t, parent.ExeName)
	}
	t.Logf("ancestry of pid %d: %s", os.Getpid(), chain)
}
