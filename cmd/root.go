package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"idcloud-mcp/internal/auth"
	"idcloud-mcp/internal/logging"
)

var (
	version string

	tenantURL       string
	clientID        string
	strategy        string
	scopes          []string
	storeBackend    string
	storePath       string
	saID            string
	saKeyPath       string
	callbackPort    int
	discoverEP      bool
	flowTimeout     time.Duration
	allowCachedTok  bool
	verbose         bool
	serverTransport string
	listenAddr      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "idcloud-mcp",
	Short: "MCP server for a cloud identity platform",
	Long: `idcloud-mcp is an MCP (Model Context Protocol) server that gives AI
assistants authenticated access to a cloud identity platform tenant.

It handles the whole credential lifecycle: a primary token is acquired once
per session via an interactive browser login, a device-code login for
browserless hosts, or a service-account key, and every API call gets a
short-lived token narrowed to exactly the scopes it needs.

Running without a subcommand starts the MCP server. Use the login, logout
and status subcommands to manage the credential from the command line.`,
	RunE: runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&tenantURL, "tenant-url", "", "Base URL of the tenant (https://openam-<name>.forgeblocks.com)")
	pf.StringVar(&clientID, "client-id", "idcloud-mcp", "OAuth client ID registered on the tenant")
	pf.StringVar(&strategy, "strategy", auth.StrategyInteractive, "Credential strategy (interactive, device, service-account)")
	pf.StringSliceVar(&scopes, "scopes", []string{"fr:idm:*"}, "Scopes requested for the primary token")
	pf.StringVar(&storeBackend, "store", auth.StoreFile, "Token store backend (file, keyring, memory)")
	pf.StringVar(&storePath, "store-path", "", "Token file location for the file store (default ~/.idcloud-mcp/token.json)")
	pf.StringVar(&saID, "service-account-id", "", "Service account ID for the service-account strategy")
	pf.StringVar(&saKeyPath, "service-account-key", "", "Path to the service account's RSA private key (PEM)")
	pf.IntVar(&callbackPort, "callback-port", 0, "Fixed port for the login redirect listener (0 picks a free port)")
	pf.BoolVar(&discoverEP, "discover-endpoints", false, "Discover OAuth endpoints from the tenant's metadata document instead of assuming fixed paths")
	pf.DurationVar(&flowTimeout, "flow-timeout", 5*time.Minute, "Maximum time to wait for an interactive or device login")
	pf.BoolVar(&allowCachedTok, "allow-cached-token", false, "Trust a stored token on first use instead of forcing a fresh login")
	pf.BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	rootCmd.Flags().StringVar(&serverTransport, "server-transport", "stdio", "Transport protocol for the MCP server (stdio, streamable-http)")
	rootCmd.Flags().StringVar(&listenAddr, "listen-addr", ":8899", "Listen address for streamable-http server (path is fixed to /mcp)")

	// Add subcommands
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// buildConfig assembles the auth configuration from CLI flags.
func buildConfig() auth.Config {
	return auth.Config{
		TenantURL:                  tenantURL,
		ClientID:                   clientID,
		Strategy:                   strategy,
		Scopes:                     scopes,
		Store:                      storeBackend,
		StorePath:                  storePath,
		ServiceAccountID:           saID,
		ServiceAccountKeyPath:      saKeyPath,
		CallbackPort:               callbackPort,
		DiscoverEndpoints:          discoverEP,
		FlowTimeout:                flowTimeout,
		AllowCachedTokenOnFirstUse: allowCachedTok,
		Verbose:                    verbose,
	}.WithDefaults()
}

// newAuthService builds the auth service with the given prompter.
func newAuthService(prompter auth.Prompter, logger *slog.Logger) (*auth.Service, error) {
	return auth.NewService(buildConfig(), nil, prompter, logger)
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func setupSignalHandler(cancel context.CancelFunc, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received interrupt signal, shutting down")
		cancel()
	}()
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current authentication state",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(verbose)
			svc, err := newAuthService(auth.ConsolePrompter{}, logger)
			if err != nil {
				return err
			}

			st := svc.Status()
			fmt.Printf("Tenant:       %s\n", st.Tenant)
			fmt.Printf("Strategy:     %s\n", st.Strategy)
			fmt.Printf("Token stored: %v\n", st.TokenPresent)
			if st.TokenPresent {
				fmt.Printf("Expires at:   %s\n", st.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}
