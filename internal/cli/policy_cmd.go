package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gameoverlay/gameoverlay/internal/config"
	"github.com/gameoverlay/gameoverlay/internal/overlay"
	"github.com/gameoverlay/gameoverlay/internal/plugin"
	"github.com/gameoverlay/gameoverlay/internal/policy"
	"github.com/gameoverlay/gameoverlay/internal/policy/ancestry"
	"github.com/gameoverlay/gameoverlay/internal/policy/identity"
	"github.com/gameoverlay/gameoverlay/pkg/hotreload"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the overlay exclusion policy",
	}
	cmd.AddCommand(newPolicyCheckCmd())
	cmd.AddCommand(newPolicyShowCmd())
	cmd.AddCommand(newPolicyWatchCmd())
	return cmd
}

func loadSnapshot(cfg *config.Config, logger *slog.Logger) (*policy.Snapshot, string, error) {
	src, err := cfg.Overlay.ExclusionSource(logger)
	if err != nil {
		return nil, "", err
	}
	return policy.Load(src, logger), src.Name(), nil
}

// targetOptions select the process a decision is made for.
type targetOptions struct {
	exe       string
	pid       int
	ancestors []string
}

func (o *targetOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.exe, "exe", "", "Executable path to evaluate (default: the process named by --pid, or this process)")
	cmd.Flags().IntVar(&o.pid, "pid", 0, "Process to evaluate; its ancestry is resolved from the process table")
	cmd.Flags().StringArrayVar(&o.ancestors, "ancestor", nil, "Ancestor executable, nearest first (repeatable); replaces the resolved ancestry")
}

// fixedChain serves a caller supplied ancestry.
type fixedChain ancestry.Chain

func (c fixedChain) Walk(int) ancestry.Chain { return ancestry.Chain(c) }

func (o *targetOptions) resolve(logger *slog.Logger) (identity.Process, overlay.ChainWalker, error) {
	table := ancestry.NewNativeTable()

	var target identity.Process
	switch {
	case o.pid != 0:
		exe := o.exe
		if exe == "" {
			var err error
			if exe, err = table.ExecutableOf(o.pid); err != nil {
				return identity.Process{}, nil, fmt.Errorf("resolve pid %d: %w", o.pid, err)
			}
		}
		target = identity.New(o.pid, exe)
	case o.exe != "":
		target = identity.New(0, o.exe)
	default:
		self, err := identity.Self()
		if err != nil {
			return identity.Process{}, nil, err
		}
		target = self
	}

	if len(o.ancestors) > 0 {
		chain := make(fixedChain, 0, len(o.ancestors))
		for _, a := range o.ancestors {
			chain = append(chain, identity.New(0, a))
		}
		return target, chain, nil
	}
	if target.PID == 0 {
		return target, fixedChain(nil), nil
	}
	return target, ancestry.NewWalker(table, ancestry.WalkerConfig{Logger: logger}), nil
}

type decisionView struct {
	Target   string   `json:"target"`
	PID      int      `json:"pid,omitempty"`
	Ancestry []string `json:"ancestry"`
	*types.DecisionInfo
}

func newDecisionView(target identity.Process, chain ancestry.Chain, d policy.Decision) decisionView {
	v := decisionView{Target: target.ExePath, PID: target.PID, Ancestry: []string{}, DecisionInfo: overlay.DecisionInfo(d)}
	for _, p := range chain {
		v.Ancestry = append(v.Ancestry, p.ExePath)
	}
	return v
}

func printDecision(w io.Writer, v decisionView) {
	fmt.Fprintf(w, "target:   %s\n", v.Target)
	fmt.Fprintf(w, "ancestry: %s\n", strings.Join(v.Ancestry, " <- "))
	fmt.Fprintf(w, "mode:     %s\n", v.Mode)
	fmt.Fprintf(w, "enabled:  %t\n", v.Enabled)
	fmt.Fprintf(w, "reason:   %s\n", v.Reason)
	if v.Rule != "" {
		fmt.Fprintf(w, "rule:     %s\n", v.Rule)
	}
	if v.Ancestor != "" {
		fmt.Fprintf(w, "launcher: %s\n", v.Ancestor)
	}
}

func newPolicyCheckCmd() *cobra.Command {
	var target targetOptions
	var asJSON, failDisabled bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Decide whether the overlay would activate for a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			proc, walker, err := target.resolve(logger)
			if err != nil {
				return err
			}
			src, err := cfg.Overlay.ExclusionSource(logger)
			if err != nil {
				return err
			}
			journal, err := openJournal(cfg.Journal, nil)
			if err != nil {
				return err
			}
			var sink overlay.EventSink
			if journal != nil {
				defer journal.Close()
				sink = plugin.JournalSink{Store: journal}
			}

			attacher, err := overlay.NewAttacher(overlay.AttacherConfig{
				Policy: policy.NewLazySource(src, logger),
				Walker: walker,
				Sink:   sink,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			d, chain := attacher.Decide(cmd.Context(), proc)
			view := newDecisionView(proc, chain, d)
			if asJSON {
				if err := printJSON(cmd, view); err != nil {
					return err
				}
			} else {
				printDecision(cmd.OutOrStdout(), view)
			}
			if failDisabled && !d.Enabled {
				return exitCode(1, "")
			}
			return nil
		},
	}
	target.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&failDisabled, "exit-code", false, "Exit 1 when the overlay would stay disabled")
	return cmd
}

type policyView struct {
	Source string              `json:"source"`
	Mode   string              `json:"mode"`
	Lists  map[string][]string `json:"lists"`
}

func newPolicyShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective exclusion lists and mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			snap, srcName, err := loadSnapshot(cfg, logger)
			if err != nil {
				return err
			}

			view := policyView{Source: srcName, Mode: snap.Mode().String(), Lists: map[string][]string{}}
			for _, l := range policy.Lists {
				view.Lists[l.String()] = append([]string{}, snap.List(l)...)
			}
			if asJSON {
				return printJSON(cmd, view)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "source: %s\n", view.Source)
			fmt.Fprintf(w, "mode:   %s\n", view.Mode)
			for _, l := range policy.Lists {
				entries := view.Lists[l.String()]
				fmt.Fprintf(w, "%s (%d):\n", l, len(entries))
				for _, e := range entries {
					fmt.Fprintf(w, "  %s\n", e)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newPolicyWatchCmd() *cobra.Command {
	var target targetOptions
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-evaluate a process whenever the configuration changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			path := configPath(cmd)
			var files []string
			if path != "" {
				files = append(files, path)
			}
			if cfg.Overlay.Source == config.SourceFile {
				files = append(files, cfg.Overlay.File)
			}
			if len(files) == 0 {
				return exitCode(2, "policy watch needs a config file or overlay.source: file")
			}

			proc, walker, err := target.resolve(logger)
			if err != nil {
				return err
			}
			chain := walker.Walk(proc.PID)

			load := func() (*policy.Snapshot, error) {
				c := cfg
				if path != "" {
					reloaded, err := config.Load(path)
					if err != nil {
						return nil, err
					}
					c = reloaded
				}
				snap, _, err := loadSnapshot(c, logger)
				return snap, err
			}

			out := cmd.OutOrStdout()
			var w *hotreload.Watcher[policy.Snapshot]
			w, err = hotreload.NewWatcher(hotreload.WatcherConfig{
				Files:  files,
				Logger: logger,
				OnReload: func(p string, err error) {
					if err != nil {
						fmt.Fprintf(out, "reload of %s failed: %v\n", p, err)
						return
					}
					fmt.Fprintf(out, "reloaded %s\n", p)
					printDecision(out, newDecisionView(proc, chain, w.Current().Evaluate(proc, chain)))
				},
			}, load)
			if err != nil {
				return err
			}
			printDecision(out, newDecisionView(proc, chain, w.Current().Evaluate(proc, chain)))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return w.Run(ctx)
		},
	}
	target.bind(cmd)
	return cmd
}
