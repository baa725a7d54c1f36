package cli

import (
	"os"
	"path/filepath"

	"github.com/gameoverlay/gameoverlay/internal/config"
)

func defaultConfigPath() string {
	candidates := []string{"overlay.yml", "overlay.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(dir, "gameoverlay", "overlay.yml"),
			filepath.Join(dir, "gameoverlay", "overlay.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// loadLocalConfig loads path, or the first default location that exists.
// Without any file the built-in defaults apply.
func loadLocalConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
