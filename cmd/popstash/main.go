// popstash: clipboard history with selection capture.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "popstash",
		Short: "Clipboard history with selection capture",
		Long: `popstash keeps a bounded history of everything you copy and lets a hotkey
capture the current selection into an editable prompt.

Run "popstash daemon" once per login session. Bind "popstash capture" (and
"popstash capture --secondary") to hotkeys. Prompts are answered with
"popstash confirm" / "popstash cancel", or by any UI watching "popstash watch".

Config file search order (first found wins):
  /etc/popstash/popstash.toml
  $HOME/.config/popstash/popstash.toml
  path supplied via --config

All flags can be set via POPSTASH_<FLAG> env vars or config-file keys.
See "popstash daemon --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDaemonCmd(),
		newCaptureCmd(),
		newConfirmCmd(),
		newCancelCmd(),
		newPendingCmd(),
		newWatchCmd(),
		newListCmd(),
		newPinCmd(),
		newDeleteCmd(),
		newClearCmd(),
		newCopyCmd(),
		newShowCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "popstash %s\n", Version)
		},
	}
}
