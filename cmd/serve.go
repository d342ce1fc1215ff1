package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"idcloud-mcp/internal/auth"
	"idcloud-mcp/internal/idm"
	"idcloud-mcp/internal/logging"
	"idcloud-mcp/internal/server"
)

// runServe starts the MCP server; it is the root command's default action.
func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(verbose)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	setupSignalHandler(cancel, logger)

	// Over stdio there is no terminal to prompt on; device-flow
	// confirmations go to the log instead.
	var prompter auth.Prompter = auth.ConsolePrompter{}
	if serverTransport == server.TransportStdio {
		prompter = auth.LogPrompter{Logger: logger}
	}

	svc, err := newAuthService(prompter, logger)
	if err != nil {
		return err
	}

	idmClient := idm.New(tenantURL, svc, nil, logger)
	srv := server.New(svc, idmClient, serverTransport, version, logger)

	if err := srv.Start(ctx, listenAddr); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
