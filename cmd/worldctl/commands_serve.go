package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentworld/nexusworld/internal/observability"
	"github.com/agentworld/nexusworld/internal/world"
)

// buildServeCmd creates the "serve" command that loads a world and keeps its
// orchestrations running until a shutdown signal arrives. The HTTP/WebSocket
// transport that would expose this world to remote clients is an external
// collaborator per spec §1 and is not implemented here; this command is the
// runtime's own supervision loop, the thing a transport process embeds.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		worldID    string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load a world and run its orchestrations until shutdown",
		Long: `Start the nexusworld runtime for a single world: attach the
persistence and activity listeners, subscribe every configured agent to the
bus, and keep the process alive until SIGINT/SIGTERM.

A transport layer (HTTP/WebSocket, CLI/TUI renderer) is expected to run
alongside this process and drive it via World.Bus() and the publish/CRUD
helpers in internal/bus and internal/world; this command boots the runtime
on its own for local development and scripted scenarios.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, worldID, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&worldID, "world", "w", "default", "World id to load (created if absent)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath, worldID string, debug bool) error {
	cfg, store, opts, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer closeStore(store)

	if debug {
		opts.Logger = observability.NewLogger(observability.LogConfig{Level: "debug", Format: cfg.Logging.Format})
	}

	w, err := world.GetWorld(ctx, worldID, opts)
	if err != nil {
		w, err = world.CreateWorld(ctx, worldID, opts)
		if err != nil {
			return err
		}
	}
	defer w.Shutdown(ctx)

	slog.Info("world loaded", "world", worldID, "agents", len(w.ListAgents()), "chats", len(w.ListChats()), "storage", cfg.Storage.Backend)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-runCtx.Done()
	slog.Info("shutdown signal received, detaching world listeners")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	w.Shutdown(shutdownCtx)
	return nil
}
