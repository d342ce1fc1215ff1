package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"idcloud-mcp/internal/auth"
	"idcloud-mcp/internal/logging"
)

// newLoginCmd creates the command that runs the credential flow once and
// stores the resulting token.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to the tenant and store the credential",
		Long: `Runs the configured credential strategy once and stores the primary
token. Interactive logins open the system browser; device logins print a
verification URL and code to complete on any other device.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(verbose)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			setupSignalHandler(cancel, logger)

			svc, err := newAuthService(auth.ConsolePrompter{}, logger)
			if err != nil {
				return err
			}

			rec, err := svc.Login(ctx)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			fmt.Printf("Logged in to %s\n", rec.Tenant)
			fmt.Printf("Token valid until %s\n", rec.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}
