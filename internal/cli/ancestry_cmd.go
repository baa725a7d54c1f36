package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gameoverlay/gameoverlay/internal/policy/ancestry"
)

type ancestorView struct {
	PID int    `json:"pid"`
	Exe string `json:"exe"`
}

func newAncestryCmd() *cobra.Command {
	var (
		pid      int
		maxDepth int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "ancestry",
		Short: "Print the ancestor chain of a process, nearest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if pid == 0 {
				pid = os.Getpid()
			}
			w := ancestry.NewNativeWalker(ancestry.WalkerConfig{MaxDepth: maxDepth, Logger: logger})
			chain := w.Walk(pid)

			if asJSON {
				out := make([]ancestorView, 0, len(chain))
				for _, p := range chain {
					out = append(out, ancestorView{PID: p.PID, Exe: p.ExePath})
				}
				return printJSON(cmd, out)
			}
			for i, p := range chain {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d  %-7d %s\n", i+1, p.PID, p.ExePath)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pid, "pid", 0, "Process to walk from (default: this process)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Maximum chain length (0: default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
