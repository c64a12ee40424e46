// Command worldctl is the CLI entry point for nexusworld: it starts the
// world's HTTP/SSE surface and manages agents/chats against a configured
// storage backend. Grounded on cmd/nexus/main.go's buildRootCmd/cobra
// command-tree structure, trimmed to this runtime's surface.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "worldctl",
		Short:   "nexusworld — multi-agent message-passing runtime",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Long: `worldctl runs and administers a nexusworld instance: a shared event bus
that lets several LLM-backed agents observe messages, decide whether to
respond, stream their answers, and execute tools under an approval cache.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildWorldCmd(),
		buildAgentCmd(),
		buildChatCmd(),
	)
	return rootCmd
}
