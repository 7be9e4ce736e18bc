package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/popstash/internal/grpcservice"
	"go.klb.dev/popstash/internal/ipc"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state",
		Long: `Displays the running daemon's clipboard backend, history file, item count and
capture state. The request is sent over the IPC socket.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
	cmd.Flags().Bool("json", false, "output raw JSON")
	addClientFlags(cmd)
	return cmd
}

func printStatus(w io.Writer, st grpcservice.Status) {
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%s\n", st.Version)
	fmt.Fprintf(tw, "Socket:\t%s\n", ipc.SocketPath())
	fmt.Fprintf(tw, "Clipboard:\t%s\n", st.Clipboard)
	fmt.Fprintf(tw, "Desktop:\t%s\n", st.Desktop)
	encrypted := "no"
	if st.Encrypted {
		encrypted = "yes"
	}
	fmt.Fprintf(tw, "History:\t%s (encrypted: %s)\n", st.HistoryFile, encrypted)
	fmt.Fprintf(tw, "Items:\t%d\n", st.Items)
	if st.LastAddedID != "" {
		fmt.Fprintf(tw, "Last added:\t%s\n", st.LastAddedID)
	}
	state := st.State
	if st.PendingID != "" {
		state += " (prompt " + st.PendingID + ")"
	}
	fmt.Fprintf(tw, "State:\t%s\n", state)
	fmt.Fprintf(tw, "Watchers:\t%d\n", st.Watchers)
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(tw, "Started:\t%s (%s)\n", st.StartedAt.Local().Format(time.RFC3339), fmtAge(st.StartedAt))
	}
	_ = tw.Flush()
}
