package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-post-scheduler/internal/config"
)

const serverName = "Post Scheduler MCP Server"

// NewServer builds an MCP server exposing every scheduled-post tool.
func NewServer(svc PostService, version string, log zerolog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	NewHandler(svc, log).AddTools(s)
	return s
}

// Serve runs s on the transport selected by cfg until ctx is cancelled.
// The stdio transport reads requests from in and writes responses to out;
// nothing else may write to out while it runs.
func Serve(ctx context.Context, s *server.MCPServer, cfg config.MCPConfig, in io.Reader, out io.Writer, log zerolog.Logger) error {
	switch cfg.Transport {
	case "stdio":
		return serveStdio(ctx, s, in, out, log)
	case "http":
		return serveHTTP(ctx, s, cfg.Addr, log)
	default:
		return fmt.Errorf("mcp: unknown transport %q", cfg.Transport)
	}
}

func serveStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, log zerolog.Logger) error {
	log.Info().Msg("mcp: serving on stdio")
	err := server.NewStdioServer(s).Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func serveHTTP(ctx context.Context, s *server.MCPServer, addr string, log zerolog.Logger) error {
	httpSrv := server.NewStreamableHTTPServer(s)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("mcp: serving streamable HTTP on /mcp")
		errCh <- httpSrv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mcp: shutdown: %w", err)
	}
	return nil
}
