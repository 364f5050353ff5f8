package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/streakline/internal/config"
	"github.com/felixgeelhaar/streakline/internal/daemon"
	mcpserver "github.com/felixgeelhaar/streakline/internal/mcp"
)

// cmdMCP serves the MCP tools on stdio, or on HTTP with --http <addr>
func cmdMCP(args []string) error {
	var httpAddr string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--http":
			if i+1 >= len(args) {
				return fmt.Errorf("--http requires an address")
			}
			httpAddr = args[i+1]
			i++
		default:
			return fmt.Errorf("unknown mcp flag: %s", args[i])
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := daemon.OpenServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.StartConsumer(ctx); err != nil {
		return fmt.Errorf("start cascade consumer: %w", err)
	}

	srv := mcpserver.NewServer(mcpserver.Config{
		Progress: svc.Tracker,
		Ledger:   svc.Ledger,
		Stats:    svc.Stats,
		Rewards:  svc.Catalog,
		Version:  Version,
	})

	if httpAddr != "" {
		fmt.Fprintf(os.Stderr, "MCP server listening on %s\n", httpAddr)
		return srv.ServeHTTP(ctx, httpAddr)
	}
	return srv.ServeStdio(ctx)
}
