package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/companion/internal/api"
	"github.com/dmitrijs2005/companion/internal/client/client"
	"github.com/spf13/cobra"
)

func (a *app) adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Oversight commands (requires an admin token)",
	}
	cmd.AddCommand(
		a.adminListCmd(),
		a.adminDeleteCmd(),
		a.adminSummaryCmd(),
		a.adminModerationCmd(),
		a.adminReconcileCmd(),
	)
	return cmd
}

func (a *app) adminListCmd() *cobra.Command {
	req := &api.AdminListExchangesRequest{}
	cmd := &cobra.Command{
		Use:   "list <owner-id>",
		Short: "List an owner's exchanges including hidden ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.OwnerID = args[0]
			return a.withClient(cmd, func(ctx context.Context, c client.Client) error {
				resp, err := c.AdminList(ctx, req)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), resp, func(w io.Writer) {
					for _, e := range resp.Exchanges {
						printExchange(w, e)
					}
					fmt.Fprintf(w, "total %d (active %d, deleted %d)\n", resp.Total, resp.Active, resp.Deleted)
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.Visibility, "visibility", "all", "all, active or deleted")
	cmd.Flags().IntVarP(&req.Limit, "limit", "n", 50, "maximum number of exchanges")
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "number of exchanges to skip")
	return cmd
}

func (a *app) adminDeleteCmd() *cobra.Command {
	var permanent bool
	cmd := &cobra.Command{
		Use:   "delete <owner-id>",
		Short: "Hide all of an owner's exchanges, or purge them with --permanent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c client.Client) error {
				n, err := c.AdminDelete(ctx, args[0], permanent)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), map[string]any{"deleted": n, "permanent": permanent}, func(w io.Writer) {
					verb := "hid"
					if permanent {
						verb = "purged"
					}
					fmt.Fprintf(w, "%s %d exchanges\n", verb, n)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&permanent, "permanent", false, "remove rows and memories for good, including hidden ones")
	return cmd
}

func (a *app) adminSummaryCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "summary <owner-id>",
		Short: "Generate a short wellbeing summary of recent conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c client.Client) error {
				resp, err := c.AdminSummary(ctx, args[0], name)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), resp, func(w io.Writer) {
					fmt.Fprintln(w, resp.Summary)
					fmt.Fprintf(w, "(%d messages, generated %s)\n", resp.MessageCount, resp.GeneratedAt.Local().Format(timeLayout))
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name used in the summary")
	return cmd
}

func (a *app) adminModerationCmd() *cobra.Command {
	var owner string
	var limit int
	cmd := &cobra.Command{
		Use:   "moderation",
		Short: "List flagged exchanges, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c client.Client) error {
				records, err := c.AdminModeration(ctx, owner, limit)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), records, func(w io.Writer) {
					for _, r := range records {
						fmt.Fprintf(w, "%s  %s  owner=%s\n  %s\n", r.CreatedAt.Local().Format(timeLayout), r.ID, r.OwnerID, r.Reason)
					}
					fmt.Fprintf(w, "%d records\n", len(records))
				})
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only this owner (default all)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of records")
	return cmd
}

func (a *app) adminReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one memory reconciliation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd, func(ctx context.Context, c client.Client) error {
				resp, err := c.AdminReconcile(ctx)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), resp, func(w io.Writer) {
					fmt.Fprintf(w, "drained %d, failed %d, removed %d, reindexed %d\n",
						resp.Drained, resp.Failed, resp.Removed, resp.Reindexed)
				})
			})
		},
	}
}
