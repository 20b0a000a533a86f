// Package servecmder provides the serve command that runs the parley API.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/api"
	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/config"
)

const shutdownTimeout = 30 * time.Second

type serveCommander struct {
	listen     string
	disableMCP bool
}

const serveLongDesc string = `Run the parley API server.

The server exposes broadcasting (collect mode and SSE streaming), conversation
browsing, manual continuation, summaries, request analysis, and an MCP
endpoint at /mcp.

Flags override environment variables (PARLEY_*), which override config.toml.

Examples:
  parley serve
  parley serve --listen :9000 --storage postgres --postgres postgres://...
  parley serve --events kafka --kafka-brokers localhost:9092 --progress redis --redis-addr localhost:6379`

const serveShortDesc string = "Run the parley API server"

var serveFlags = append([]string{config.FlagListen}, boot.EngineFlags...)

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	boot.AddEngineFlags(cmd)
	cmd.Flags().BoolVar(&cmder.disableMCP, "no-mcp", false, "Do not mount the MCP endpoint")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	a, log, err := boot.Open(boot.Context(cmd), cmd, serveFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := api.NewServer(api.Config{
		ListenAddr: a.Config.API.Listen,
		DisableMCP: c.disableMCP,
	}, a, log)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
