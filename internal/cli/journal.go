package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gameoverlay/gameoverlay/internal/config"
	"github.com/gameoverlay/gameoverlay/internal/metrics"
	"github.com/gameoverlay/gameoverlay/internal/store"
	"github.com/gameoverlay/gameoverlay/internal/store/composite"
	"github.com/gameoverlay/gameoverlay/internal/store/jsonl"
	"github.com/gameoverlay/gameoverlay/internal/store/sqlite"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

// openJournal opens the configured event store, or returns nil when the
// journal is off. Poses are sampled before they reach the store.
func openJournal(j config.JournalConfig, m *metrics.Collector) (store.EventStore, error) {
	var primary store.EventStore
	switch j.Backend {
	case config.JournalNone:
		return nil, nil
	case config.JournalJSONL:
		s, err := jsonl.New(j.Path, j.MaxSizeMB(), j.MaxBackups)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		primary = s
	case config.JournalSQLite:
		s, err := sqlite.Open(j.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		primary = s
	default:
		return nil, fmt.Errorf("unknown journal backend %q", j.Backend)
	}

	if j.Mirror != "" {
		mirror, err := jsonl.New(j.Mirror, j.MaxSizeMB(), j.MaxBackups)
		if err != nil {
			_ = primary.Close()
			return nil, fmt.Errorf("open journal mirror: %w", err)
		}
		primary = composite.New(primary, mirror)
	}
	return store.NewFiltered(metrics.WrapEventStore(primary, m), store.PoseSampler(j.PoseSampling())), nil
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the event journal",
	}
	cmd.AddCommand(newJournalQueryCmd())
	return cmd
}

func newJournalQueryCmd() *cobra.Command {
	var (
		eventTypes string
		pluginName string
		pid        int
		since      time.Duration
		limit      int
		asc        bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print journaled events as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			st, err := openJournal(cfg.Journal, nil)
			if err != nil {
				return err
			}
			if st == nil {
				return exitCode(2, "journal is disabled (journal.backend: none)")
			}
			defer st.Close()

			q := types.EventQuery{Plugin: pluginName, PID: pid, Limit: limit, Asc: asc}
			if eventTypes != "" {
				q.Types = strings.Split(eventTypes, ",")
			}
			if since > 0 {
				t := time.Now().Add(-since).UTC()
				q.Since = &t
			}
			events, err := st.QueryEvents(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd, events)
		},
	}
	cmd.Flags().StringVar(&eventTypes, "type", "", "Comma separated event types")
	cmd.Flags().StringVar(&pluginName, "plugin", "", "Plugin short name")
	cmd.Flags().IntVar(&pid, "pid", 0, "Process id")
	cmd.Flags().DurationVar(&since, "since", 0, "Only events newer than this")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum events")
	cmd.Flags().BoolVar(&asc, "asc", false, "Oldest first")
	return cmd
}
