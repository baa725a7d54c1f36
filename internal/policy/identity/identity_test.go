package identity

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasename(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{`c:\Program Files (x86)\Steam\Steam.exe`, "Steam.exe"},
		{"/usr/bin/steam", "steam"},
		{`d:\games/mixed\wow.exe`, "wow.exe"},
		{"wow.exe", "wow.exe"},
		{"", ""},
		{`c:\trailing\`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Basename(tt.path))
		})
	}
}

func TestNew(t *testing.T) {
	p := New(42, `C:\Games\WoW\Wow-64.exe`)
	assert.Equal(t, 42, p.PID)
	assert.Equal(t, "Wow-64.exe", p.ExeName)
	assert.False(t, p.IsZero())

	f := p.Folded()
	assert.Equal(t, `c:\games\wow\wow-64.exe`, f.ExePath)
	assert.Equal(t, "wow-64.exe", f.ExeName)
	assert.Equal(t, 42, f.PID)

	// Folding does not modify the original.
	assert.Equal(t, "Wow-64.exe", p.ExeName)
}

func TestProcess_IsZero(t *testing.T) {
	assert.True(t, Process{PID: 7}.IsZero())
	assert.False(t, Process{ExeName: "a.exe"}.IsZero())
}

func TestProcess_String(t *testing.T) {
	assert.Equal(t, `c:\a.exe (pid 3)`, New(3, `c:\a.exe`).String())
	assert.Equal(t, "a.exe (pid 3)", Process{PID: 3, ExeName: "a.exe"}.String())
}

func TestIsPath(t *testing.T) {
	assert.True(t, IsPath(`c:\games`))
	assert.True(t, IsPath("/opt/games"))
	assert.False(t, IsPath("steam.exe"))
}

func TestSelf(t *testing.T) {
	p, err := Self()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), p.PID)
	assert.NotEmpty(t, p.ExePath)
	assert.NotEmpty(t, p.ExeName)
}

func TestBuiltin(t *testing.T) {
	l := Builtin()
	assert.Contains(t, l.Launchers, "Steam.exe")
	assert.Contains(t, l.Launchers, "UbisoftGameLauncher64.exe")
	assert.Contains(t, l.Blacklist, "explorer.exe")
	assert.Empty(t, l.Paths)

	// Each call returns an independent copy.
	l.Launchers[0] = "mutated.exe"
	assert.Equal(t, "Steam.exe", Builtin().Launchers[0])
}
