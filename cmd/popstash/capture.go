package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/popstash/internal/grpcservice"
	"go.klb.dev/popstash/internal/hub"
)

func newCaptureCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the current selection (bind this to a hotkey)",
		Long: `Asks the daemon to resolve the current selection: the focused element's
selected text, else a synthetic copy, else the clipboard, else the newest
history item. The resolved text is recorded and shown as a prompt, which is
printed here. Answer it with "popstash confirm" or "popstash cancel".`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				p, err := c.Trigger(ctx, v.GetBool("secondary"))
				if err != nil {
					return err
				}
				if v.GetBool("confirm") && !p.ReadOnly {
					if err := c.Confirm(ctx, p.ID, nil); err != nil {
						return err
					}
				}
				return printPrompt(cmd.OutOrStdout(), p, v.GetBool("json"))
			})
		},
	}

	f := cmd.Flags()
	f.Bool("secondary", false, "use the secondary trigger")
	f.Bool("confirm", false, "confirm the resolved text immediately")
	f.Bool("json", false, "output raw JSON")
	f.Duration("timeout", 0, "request timeout (0 = none)")
	f.String("token", "", "shared secret (must match the daemon's)")
	addConfigFlag(cmd)

	return cmd
}

func newConfirmCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "confirm <prompt-id>",
		Short: "Accept a prompt, optionally with edited text",
		Long: `Confirms the pending prompt. The clipboard is set to the prompt's text, or
to --text / stdin when given, and the confirmed text moves to the top of the
history.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			var text *string
			switch {
			case v.GetBool("stdin"):
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				s := string(data)
				text = &s
			case cmd.Flags().Changed("text"):
				s := v.GetString("text")
				text = &s
			}
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				return c.Confirm(ctx, args[0], text)
			})
		},
	}

	f := cmd.Flags()
	f.String("text", "", "confirm this text instead of the prompt's")
	f.Bool("stdin", false, "read the confirmed text from stdin")
	addClientFlags(cmd)

	return cmd
}

func newCancelCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "cancel <prompt-id>",
		Short:   "Dismiss a prompt without touching the clipboard",
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, args []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				return c.Cancel(ctx, args[0])
			})
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newPendingCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "pending",
		Short:   "Show the prompt awaiting an answer",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				p, err := c.Pending(ctx)
				if err != nil {
					return err
				}
				return printPrompt(cmd.OutOrStdout(), p, v.GetBool("json"))
			})
		},
	}
	cmd.Flags().Bool("json", false, "output raw JSON")
	addClientFlags(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events as JSON lines",
		Long: `Prints one JSON object per event until interrupted. Popup layers use the
"prompt" events to show and dismiss prompts.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, closeFn, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var kinds []hub.Kind
			for _, k := range v.GetStringSlice("kind") {
				kinds = append(kinds, hub.Kind(k))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return describe(c.Watch(ctx, func(ev hub.Event) error { return enc.Encode(ev) }, kinds...))
		},
	}
	cmd.Flags().StringSlice("kind", nil, "event kinds to show: history,capture,prompt (empty = all)")
	cmd.Flags().String("token", "", "shared secret (must match the daemon's)")
	addConfigFlag(cmd)
	return cmd
}

func printPrompt(w io.Writer, p grpcservice.Prompt, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	mode := "editable"
	if p.ReadOnly {
		mode = "read-only"
	}
	_, err := fmt.Fprintf(w, "prompt %s (%s, %s)\n%s\n", p.ID, p.Stage, mode, p.Text)
	return err
}
