package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/companion/internal/api"
	"github.com/dmitrijs2005/companion/internal/client/client"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04"

func (a *app) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c client.Client) error {
				if err := c.Ping(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			})
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return a.withClient(cmd, func(ctx context.Context, c client.Client) error {
				ex, err := c.Send(ctx, message)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), ex, func(w io.Writer) {
					fmt.Fprintln(w, ex.Response)
				})
			})
		},
	}
}

func printExchange(w io.Writer, e api.Exchange) {
	marker := ""
	if e.Deleted {
		marker = " [deleted]"
	}
	fmt.Fprintf(w, "%s  %s%s\n", e.CreatedAt.Local().Format(timeLayout), e.ID, marker)
	fmt.Fprintf(w, "  you: %s\n", e.Message)
	fmt.Fprintf(w, "  companion: %s\n", e.Response)
}

func (a *app) historyCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your conversation, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c client.Client) error {
				resp, err := c.History(ctx, limit, offset)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), resp, func(w io.Writer) {
					for _, e := range resp.Exchanges {
						printExchange(w, e)
					}
					fmt.Fprintf(w, "%d of %d exchanges\n", len(resp.Exchanges), resp.Total)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of exchanges")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of exchanges to skip")
	return cmd
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [exchange-id...]",
		Short: "Hide exchanges from your history (all of them without ids)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c client.Client) error {
				n, err := c.Clear(ctx, args)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), map[string]int{"deleted": n}, func(w io.Writer) {
					fmt.Fprintf(w, "cleared %d exchanges\n", n)
				})
			})
		},
	}
}
