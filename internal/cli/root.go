// Package cli implements the overlayctl command tree.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gameoverlay/gameoverlay/internal/config"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "overlayctl",
		Short:         "overlayctl: overlay activation policy and game telemetry plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("overlayctl {{.Version}}\n")

	cmd.PersistentFlags().String("config", getenvDefault("OVERLAY_CONFIG", ""), "Path to config YAML (default: ./overlay.yml, ./overlay.yaml, or the user config dir)")
	cmd.PersistentFlags().String("log-level", "", "Override logging.level (debug|info|warn|error)")

	cmd.AddCommand(newPolicyCmd())
	cmd.AddCommand(newAncestryCmd())
	cmd.AddCommand(newPluginsCmd())
	cmd.AddCommand(newJournalCmd())

	return cmd
}

// setup loads the configuration named by the root flags and builds the
// logger, which writes to the command's stderr.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := loadLocalConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if level, _ := cmd.Root().PersistentFlags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, newLogger(cfg.Logging, cmd.ErrOrStderr()), nil
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = defaultConfigPath()
	}
	return path
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
