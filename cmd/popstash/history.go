package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/popstash/internal/grpcservice"
	"go.klb.dev/popstash/internal/hub"
)

func newListCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List history items, pinned first",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				items, err := c.List(ctx, v.GetString("query"))
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(items)
				}
				printItems(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringP("query", "q", "", "only items whose preview contains this (case-insensitive)")
	f.Bool("json", false, "output raw JSON")
	addClientFlags(cmd)

	return cmd
}

func printItems(w io.Writer, items []grpcservice.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "History is empty.")
		return
	}
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "\tID\tKIND\tADDED\tSOURCE\tPREVIEW\n")
	_, _ = fmt.Fprintf(tw, "\t--\t----\t-----\t------\t-------\n")
	for _, it := range items {
		marker := ""
		if it.IsPinned {
			marker = "*"
		}
		src := it.SourceAppName
		if src == "" {
			src = "-"
		}
		preview := strings.ReplaceAll(hub.Preview(it.Preview, 60), "\n", "⏎")
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, it.ID, it.Kind, fmtAge(it.DateAdded), src, preview)
	}
	_ = tw.Flush()
}

func newPinCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "pin <id>",
		Short:   "Pin or unpin a history item",
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				pinned, err := c.TogglePin(ctx, args[0])
				if err != nil {
					return err
				}
				state := "unpinned"
				if pinned {
					state = "pinned"
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], state)
				return err
			})
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete history items",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				n, err := c.Delete(ctx, args...)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d item(s)\n", n)
				return err
			})
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newClearCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "clear",
		Short:   "Delete every history item, pinned ones included",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, _ []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				return c.Clear(ctx)
			})
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newCopyCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "copy <id>",
		Short:   "Put a history item back on the clipboard",
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, args []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				return c.Copy(ctx, args[0])
			})
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newShowCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Write a history item's full content to stdout",
		Long: `Writes the item's raw payload: the full text, or the PNG bytes of an image
(redirect to a file).`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(v, func(ctx context.Context, c *grpcservice.Client) error {
				data, _, err := c.Content(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
	addClientFlags(cmd)
	return cmd
}
