package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-post-scheduler/internal/mcp"
)

var (
	mcpTransport string
	mcpAddr      string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server and the publication daemon",
	Long: `Expose the scheduled-post operations as MCP tools. The default stdio
transport is meant to be launched by an MCP client; logs go to stderr so
stdout carries protocol messages only. The http transport serves streamable
HTTP on /mcp.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "", "stdio or http (overrides MCP_TRANSPORT)")
	mcpCmd.Flags().StringVar(&mcpAddr, "addr", "", "listen address for the http transport (overrides MCP_ADDR)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, "mcp", os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()
	if mcpTransport != "" {
		a.cfg.MCP.Transport = mcpTransport
	}
	if mcpAddr != "" {
		a.cfg.MCP.Addr = mcpAddr
	}

	if err := a.startDaemon(ctx); err != nil {
		return err
	}
	go runJanitor(ctx, a.db, janitorInterval, a.log)

	s := mcp.NewServer(a.svc, appVersion(), a.log)
	return mcp.Serve(ctx, s, a.cfg.MCP, os.Stdin, os.Stdout, a.log)
}
