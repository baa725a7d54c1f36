package plugin

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemListerIncludesSelf(t *testing.T) {
	procs, err := SystemLister{}.Processes(testContext(t))
	if err != nil {
		t.Skipf("process listing unavailable: %v", err)
	}
	found := false
	for _, p := range procs {
		if p.PID == os.Getpid() {
			found = true
			assert.NotEmpty(t, p.Name)
		}
	}
	assert.True(t, found)
}
