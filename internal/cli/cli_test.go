package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gameoverlay/gameoverlay/internal/config"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const inlineConfig = `
logging:
  level: error
overlay:
  source: inline
  lists:
    launchers: ["mylauncher.exe"]
    launchersexclude: ["Battle.net.exe"]
`

func TestRoot_WiresCommands(t *testing.T) {
	root := NewRoot("test")
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"policy", "ancestry", "plugins", "journal"} {
		assert.Contains(t, names, want)
	}
}

func TestPolicyCheck_BlacklistedJSON(t *testing.T) {
	cfg := writeConfig(t, inlineConfig)
	out, err := runCLI(t, "--config", cfg, "policy", "check", "--exe", `C:\Program Files\Mozilla Firefox\firefox.exe`, "--json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, false, got["enabled"])
	assert.Equal(t, "blacklisted", got["reason"])
	assert.Equal(t, "launcher-filter", got["mode"])
	assert.Equal(t, "firefox.exe", got["rule"])
}

func TestPolicyCheck_LauncherAncestor(t *testing.T) {
	cfg := writeConfig(t, inlineConfig)
	out, err := runCLI(t, "--config", cfg, "policy", "check",
		"--exe", `D:\Games\Quake\quake.exe`,
		"--ancestor", `C:\Windows\cmd.exe`,
		"--ancestor", `C:\Program Files (x86)\Steam\Steam.exe`,
		"--json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["enabled"])
	assert.Equal(t, "launcher-ancestor", got["reason"])
	assert.Equal(t, `C:\Program Files (x86)\Steam\Steam.exe`, got["ancestor"])
	assert.Len(t, got["ancestry"], 2)
}

func TestPolicyCheck_ExitCode(t *testing.T) {
	cfg := writeConfig(t, inlineConfig)

	out, err := runCLI(t, "--config", cfg, "policy", "check", "--exe", `D:\Games\Quake\quake.exe`, "--exit-code")
	var ee *ExitError
	require.True(t, errors.As(err, &ee), "err = %v", err)
	assert.Equal(t, 1, ee.Code())
	assert.Empty(t, ee.Message())
	assert.Contains(t, out, "reason:   no-match")

	_, err = runCLI(t, "--config", cfg, "policy", "check", "--exe", `D:\Games\Quake\quake.exe`,
		"--ancestor", `E:\Launchers\MyLauncher.exe`, "--exit-code")
	assert.NoError(t, err)
}

func TestPolicyCheck_RemovedLauncherNoLongerCounts(t *testing.T) {
	cfg := writeConfig(t, inlineConfig)
	out, err := runCLI(t, "--config", cfg, "policy", "check",
		"--exe", `D:\Games\Diablo\diablo.exe`,
		"--ancestor", `C:\Battle.net\Battle.net.exe`)
	require.NoError(t, err)
	assert.Contains(t, out, "enabled:  false")
}

func TestPolicyShow(t *testing.T) {
	cfg := writeConfig(t, inlineConfig)

	out, err := runCLI(t, "--config", cfg, "policy", "show", "--json")
	require.NoError(t, err)
	var got policyView
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "static", got.Source)
	assert.Equal(t, "launcher-filter", got.Mode)
	assert.Contains(t, got.Lists["launchers"], "mylauncher.exe")
	assert.NotContains(t, got.Lists["launchers"], "Battle.net.exe")
	assert.Contains(t, got.Lists["blacklist"], "firefox.exe")

	out, err = runCLI(t, "--config", cfg, "policy", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "source: static")
	assert.Contains(t, out, "  mylauncher.exe")
}

func TestPolicyShow_FileSource(t *testing.T) {
	dir := t.TempDir()
	lists := filepath.Join(dir, "lists.yaml")
	require.NoError(t, os.WriteFile(lists, []byte("mode: 2\nblacklist: [\"game.exe\"]\n"), 0o644))
	cfg := writeConfig(t, "logging:\n  level: error\noverlay:\n  source: file\n  file: "+lists+"\n")

	out, err := runCLI(t, "--config", cfg, "policy", "show", "--json")
	require.NoError(t, err)
	var got policyView
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "blacklist-only", got.Mode)
	assert.Contains(t, got.Lists["blacklist"], "game.exe")
}

func TestPolicyCheck_MissingFileUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	cfg := writeConfig(t, "logging:\n  level: error\noverlay:\n  source: file\n  file: "+missing+"\n")

	out, err := runCLI(t, "--config", cfg, "policy", "check",
		"--exe", `D:\Games\Quake\quake.exe`, "--ancestor", `C:\Steam\steam.exe`, "--json")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["enabled"])
	assert.Equal(t, "launcher-ancestor", got["reason"])
}

func TestAncestry_Self(t *testing.T) {
	cfg := writeConfig(t, inlineConfig)
	out, err := runCLI(t, "--config", cfg, "ancestry", "--json", "--max-depth", "2")
	require.NoError(t, err)

	var chain []ancestorView
	require.NoError(t, json.Unmarshal([]byte(out), &chain))
	assert.LessOrEqual(t, len(chain), 2)
	for _, a := range chain {
		assert.NotZero(t, a.PID)
	}
}

const exampleManifest = `
name: Example Game
short_name: example
processes: ["game*.exe"]
module: game.exe
avatar:
  position: [0x20]
`

func TestPluginsList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "example.yaml"), []byte(exampleManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("short_name: broken\n"), 0o644))
	cfg := writeConfig(t, "logging:\n  level: error\nplugins:\n  dir: "+dir+"\n")

	out, err := runCLI(t, "--config", cfg, "plugins", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "Example Game")
	assert.Contains(t, lines[1], "v2")
	assert.Contains(t, lines[2], "rejected")
}

func TestPluginsRun_JournalsRejections(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "example.yaml"), []byte(exampleManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy.yaml"), []byte(exampleManifest), 0o644))
	db := filepath.Join(t.TempDir(), "journal.db")
	cfg := writeConfig(t, `
logging:
  level: error
plugins:
  dir: `+dir+`
  trylock_interval: 10ms
journal:
  backend: sqlite
  path: `+db+`
`)

	_, err := runCLI(t, "--config", cfg, "plugins", "run", "--duration", "100ms")
	require.NoError(t, err)

	out, err := runCLI(t, "--config", cfg, "journal", "query", "--type", types.EventPluginRejected)
	require.NoError(t, err)
	var events []types.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "Example Game", events[0].Plugin)
	assert.Contains(t, events[0].Fields["error"], "duplicate")
}

func TestPolicyCheck_JournalsDecision(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	cfg := writeConfig(t, inlineConfig+`
journal:
  backend: sqlite
  path: `+db+`
`)
	_, err := runCLI(t, "--config", cfg, "policy", "check", "--exe", `C:\Tools\vlc.exe`)
	require.NoError(t, err)

	out, err := runCLI(t, "--config", cfg, "journal", "query", "--type", types.EventOverlayDecision)
	require.NoError(t, err)
	var events []types.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Decision)
	assert.Equal(t, "blacklisted", events[0].Decision.Reason)
}

func TestPolicyCheck_JournalsToJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	cfg := writeConfig(t, inlineConfig+`
journal:
  backend: jsonl
  path: `+path+`
`)
	_, err := runCLI(t, "--config", cfg, "policy", "check", "--exe", `C:\Tools\vlc.exe`)
	require.NoError(t, err)

	out, err := runCLI(t, "--config", cfg, "journal", "query", "--type", types.EventOverlayDecision)
	require.NoError(t, err)
	var events []types.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "blacklisted", events[0].Decision.Reason)
}

func TestOpenJournal_SamplesPoses(t *testing.T) {
	ctx := context.Background()
	st, err := openJournal(config.JournalConfig{
		Backend:   config.JournalJSONL,
		Path:      filepath.Join(t.TempDir(), "events.jsonl"),
		Poses:     true,
		PoseEvery: 2,
	}, nil)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.AppendEvent(ctx, types.Event{Type: types.EventPluginLocked, Plugin: "demo"}))
	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendEvent(ctx, types.Event{Type: types.EventPose, Plugin: "demo"}))
	}
	poses, err := st.QueryEvents(ctx, types.EventQuery{Types: []string{types.EventPose}})
	require.NoError(t, err)
	assert.Len(t, poses, 3)
}

func TestJournalQuery_Disabled(t *testing.T) {
	cfg := writeConfig(t, inlineConfig)
	_, err := runCLI(t, "--config", cfg, "journal", "query")
	var ee *ExitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.Code())
}

func TestExitError(t *testing.T) {
	var nilErr *ExitError
	assert.Equal(t, 1, nilErr.Code())
	assert.Equal(t, "", nilErr.Error())
	assert.Equal(t, "exit 3", exitCode(3, "").Error())
	assert.Equal(t, "bad 7", exitCode(2, "bad %d", 7).Error())
}

func TestPolicyWatch_ReevaluatesOnChange(t *testing.T) {
	cfg := writeConfig(t, inlineConfig)

	root := NewRoot("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", cfg, "policy", "watch", "--exe", `D:\Games\Quake\quake.exe`})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = os.WriteFile(cfg, []byte(inlineConfig+"    whitelist: [\"quake.exe\"]\n"), 0o644)
	}()

	require.NoError(t, root.ExecuteContext(ctx))
	text := out.String()
	assert.Contains(t, text, "reason:   no-match")
	assert.Contains(t, text, "reloaded "+cfg)
	assert.Contains(t, text, "reason:   whitelisted")
}
