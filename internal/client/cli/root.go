// Package cli implements the companionctl commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dmitrijs2005/companion/internal/client/client"
	"github.com/dmitrijs2005/companion/internal/client/config"
	"github.com/spf13/cobra"
)

// Dialer opens a client for addr authenticated with token.
type Dialer func(addr, token string) (client.Client, error)

// DefaultDialer dials the server over gRPC.
func DefaultDialer(addr, token string) (client.Client, error) {
	c, err := client.NewGRPCClient(addr, token)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type app struct {
	dial       Dialer
	cfg        *config.Config
	configPath string
	format     string
}

// NewRootCmd builds the command tree. dial is used by every command that
// talks to the server.
func NewRootCmd(dial Dialer) *cobra.Command {
	a := &app{dial: dial, cfg: &config.Config{}}
	a.cfg.LoadDefaults()

	root := &cobra.Command{
		Use:           "companionctl",
		Short:         "Talk to the companion server",
		Long:          "companionctl sends messages to the companion service, manages history and runs admin oversight tasks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "JSON config file")
	flags.StringVar(&a.cfg.ServerEndpointAddr, "addr", a.cfg.ServerEndpointAddr, "server address")
	flags.StringVar(&a.cfg.AccessToken, "token", a.cfg.AccessToken, "access token (default $"+config.TokenEnvVar+")")
	flags.DurationVar(&a.cfg.RequestTimeout, "timeout", a.cfg.RequestTimeout, "request timeout")
	flags.StringVarP(&a.format, "format", "f", "text", "output format: text or json")

	root.AddCommand(
		a.pingCmd(),
		a.sendCmd(),
		a.historyCmd(),
		a.clearCmd(),
		a.adminCmd(),
		a.tokenCmd(),
	)
	return root
}

// loadConfig overlays the JSON file, then re-applies flags the user set.
func (a *app) loadConfig(cmd *cobra.Command) error {
	if a.configPath == "" {
		return nil
	}
	loaded, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		loaded.ServerEndpointAddr = a.cfg.ServerEndpointAddr
	}
	if flags.Changed("token") {
		loaded.AccessToken = a.cfg.AccessToken
	}
	if flags.Changed("timeout") {
		loaded.RequestTimeout = a.cfg.RequestTimeout
	}
	*a.cfg = *loaded
	return nil
}

// withClient runs fn with a connected client under the request timeout.
func (a *app) withClient(cmd *cobra.Command, fn func(ctx context.Context, c client.Client) error) error {
	c, err := a.dial(a.cfg.ServerEndpointAddr, a.cfg.AccessToken)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", a.cfg.ServerEndpointAddr, err)
	}
	defer c.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}
	return fn(ctx, c)
}

// render writes v as indented JSON, or calls text for the text format.
func (a *app) render(w io.Writer, v any, text func(io.Writer)) error {
	if a.format == "json" {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	text(w)
	return nil
}
