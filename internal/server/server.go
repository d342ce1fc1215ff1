// Package server exposes the authenticated identity-platform client over MCP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"idcloud-mcp/internal/auth"
	"idcloud-mcp/internal/idm"
	"idcloud-mcp/internal/logging"
)

// Transport names accepted by Start.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// MCPServer exposes login, status and managed-object queries as MCP tools.
type MCPServer struct {
	authSvc   *auth.Service
	idmClient *idm.Client
	logger    *slog.Logger
	mcpServer *server.MCPServer
	transport string
}

// New creates the MCP server and registers its tools.
func New(authSvc *auth.Service, idmClient *idm.Client, transport, version string, logger *slog.Logger) *MCPServer {
	mcpServer := server.NewMCPServer(
		"idcloud-mcp",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	s := &MCPServer{
		authSvc:   authSvc,
		idmClient: idmClient,
		logger:    logging.WithComponent(logger, "mcp-server"),
		mcpServer: mcpServer,
		transport: transport,
	}
	s.registerTools()
	return s
}

// Start serves MCP over the configured transport. listenAddr is only used by
// the streamable-http transport.
func (s *MCPServer) Start(ctx context.Context, listenAddr string) error {
	switch s.transport {
	case TransportStdio:
		s.logger.Info("serving MCP over stdio")
		return server.ServeStdio(s.mcpServer)
	case TransportStreamableHTTP:
		httpServer := server.NewStreamableHTTPServer(
			s.mcpServer,
			server.WithEndpointPath("/mcp"),
		)
		s.logger.Info("serving MCP over streamable-http", slog.String("addr", listenAddr))

		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.Start(listenAddr) }()
		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		}
	default:
		return fmt.Errorf("unsupported server transport: %s", s.transport)
	}
}
