package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"idcloud-mcp/internal/auth"
	"idcloud-mcp/internal/logging"
)

// newLogoutCmd creates the command that removes the stored credential.
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(verbose)
			svc, err := newAuthService(auth.ConsolePrompter{}, logger)
			if err != nil {
				return err
			}

			if err := svc.Logout(); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			fmt.Println("Stored credential removed.")
			return nil
		},
	}
}
