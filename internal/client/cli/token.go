package cli

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/companion/internal/server/auth"
	"github.com/spf13/cobra"
)

// tokenCmd mints a token locally with the shared secret. It never contacts
// the server.
func (a *app) tokenCmd() *cobra.Command {
	var (
		id     auth.Identity
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("secret") {
				secret = a.cfg.SecretKey
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = a.cfg.TokenTTL
			}
			token, err := auth.GenerateToken(id, []byte(secret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.UserID, "user", "", "owner id (required)")
	cmd.Flags().StringVar(&id.DisplayName, "name", "", "display name")
	cmd.Flags().BoolVar(&id.Admin, "admin", false, "grant admin access")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default $COMPANION_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default 24h)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
