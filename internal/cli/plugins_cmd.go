package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gameoverlay/gameoverlay/internal/config"
	"github.com/gameoverlay/gameoverlay/internal/metrics"
	"github.com/gameoverlay/gameoverlay/internal/plugin"
	"github.com/gameoverlay/gameoverlay/internal/plugin/manifest"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage positional-audio telemetry plugins",
	}
	cmd.AddCommand(newPluginsListCmd())
	cmd.AddCommand(newPluginsRunCmd())
	return cmd
}

// buildRegistry loads every manifest in the plugin directory. Manifests
// that fail to parse are reported alongside the registry's own rejections.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*plugin.Registry, []plugin.Rejection) {
	reg := plugin.NewRegistry(logger)
	var rejected []plugin.Rejection
	if cfg.Plugins.Dir == "" {
		return reg, nil
	}

	manifests, errs := manifest.LoadDir(cfg.Plugins.Dir)
	for _, err := range errs {
		rejected = append(rejected, plugin.Rejection{Name: "manifest", Err: err})
		logger.Warn("plugin: manifest skipped", "error", err)
	}
	for _, m := range manifests {
		p, err := manifest.New(m, manifest.Options{Logger: logger})
		if err != nil {
			rejected = append(rejected, plugin.Rejection{Name: m.Name, Err: err})
			continue
		}
		_, _ = reg.Load(p.Factory())
	}
	return reg, append(rejected, reg.Rejected()...)
}

func newPluginsListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded and rejected plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			reg, rejected := buildRegistry(cfg, logger)

			if asJSON {
				type row struct {
					Name      string `json:"name"`
					ShortName string `json:"short_name,omitempty"`
					ABI       string `json:"abi,omitempty"`
					Error     string `json:"error,omitempty"`
				}
				rows := []row{}
				for _, d := range reg.Plugins() {
					rows = append(rows, row{Name: d.Name, ShortName: d.ShortName, ABI: d.ABI.String()})
				}
				for _, r := range rejected {
					rows = append(rows, row{Name: r.Name, Error: r.Err.Error()})
				}
				return printJSON(cmd, rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSHORT\tABI\tSTATUS")
			for _, d := range reg.Plugins() {
				fmt.Fprintf(tw, "%s\t%s\t%s\tloaded\n", d.Name, d.ShortName, d.ABI)
			}
			for _, r := range rejected {
				fmt.Fprintf(tw, "%s\t-\t-\trejected: %v\n", r.Name, r.Err)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newStatusRouter(m *metrics.Collector, path string, latest *plugin.LatestSink, host *plugin.Host) http.Handler {
	r := chi.NewRouter()
	r.Handle(path, m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/locked", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"plugin": host.Locked()})
	})
	r.Get("/pose/{plugin}", func(w http.ResponseWriter, req *http.Request) {
		ev, ok := latest.Latest(chi.URLParam(req, "plugin"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pose"})
			return
		}
		writeJSON(w, http.StatusOK, ev)
	})
	return r
}

func newPluginsRunCmd() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the plugin host until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			var m *metrics.Collector
			if cfg.Metrics.Enabled {
				m = metrics.New()
			}
			reg, rejected := buildRegistry(cfg, logger)
			if len(reg.Plugins()) == 0 {
				logger.Warn("plugin: no plugins loaded", "dir", cfg.Plugins.Dir)
			}

			latest := plugin.NewLatestSink()
			sinks := plugin.MultiSink{latest}
			journal, err := openJournal(cfg.Journal, m)
			if err != nil {
				return err
			}
			if journal != nil {
				defer journal.Close()
				sinks = append(sinks, plugin.JournalSink{Store: journal})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			for _, r := range rejected {
				ev := types.NewEvent(types.EventPluginRejected)
				ev.Plugin = r.Name
				ev.Fields = map[string]any{"error": r.Err.Error()}
				if err := sinks.Publish(ctx, ev); err != nil {
					logger.Warn("plugin: publish rejection failed", "error", err)
				}
			}

			fetch, tryLock, maxTryLock := cfg.Plugins.Intervals()
			host, err := plugin.NewHost(reg, plugin.HostConfig{
				FetchInterval:      fetch,
				TryLockInterval:    tryLock,
				MaxTryLockInterval: maxTryLock,
				SeenCapacity:       cfg.Plugins.SeenCapacity,
				Lister:             plugin.SystemLister{},
				Sink:               sinks,
				Metrics:            m,
				Logger:             logger,
			})
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return host.Run(gctx) })

			if m != nil {
				srv := &http.Server{
					Addr:              cfg.Metrics.Addr,
					Handler:           newStatusRouter(m, cfg.Metrics.Path, latest, host),
					ReadHeaderTimeout: 5 * time.Second,
				}
				g.Go(func() error {
					logger.Info("metrics: listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics server: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			logger.Info("plugin: host running", "plugins", len(reg.Plugins()))
			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0: until interrupted)")
	return cmd
}
