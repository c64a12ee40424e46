package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentworld/nexusworld/internal/world"
)

// buildWorldCmd creates the "world" command group for managing worlds, the
// top-level container of agents, chats, and events (spec §3).
func buildWorldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "Manage worlds",
		Long:  "Create, inspect, and delete worlds, the top-level container of agents, chats, and the event bus.",
	}
	cmd.AddCommand(buildWorldCreateCmd(), buildWorldShowCmd(), buildWorldSetChatCmd(), buildWorldDeleteCmd())
	return cmd
}

func buildWorldCreateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "create [world-id]",
		Short: "Create a new world",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return withWorld(cmd.Context(), configPath, args[0], true, func(ctx context.Context, w *world.World) error {
				fmt.Fprintf(cmd.OutOrStdout(), "created world %s\n", w.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildWorldShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show [world-id]",
		Short: "Show a world's agents and chats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return withWorld(cmd.Context(), configPath, args[0], false, func(ctx context.Context, w *world.World) error {
				return printWorldShow(cmd.OutOrStdout(), w)
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildWorldSetChatCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "set-current-chat [world-id] [chat-id]",
		Short: "Set a world's current chat",
		Long:  "Sets world.currentChatId, the only sanctioned mutator (spec §5). Also invalidates standing session-scope tool approvals for the prior chat.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return withWorld(cmd.Context(), configPath, args[0], false, func(ctx context.Context, w *world.World) error {
				if err := w.SetCurrentChat(ctx, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current chat set to %s\n", args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildWorldDeleteCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "delete [world-id]",
		Short: "Delete a world and cascade-delete its agents and chats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			_, store, opts, err := loadRuntime(configPath)
			if err != nil {
				return err
			}
			defer closeStore(store)
			if err := world.DeleteWorld(cmd.Context(), args[0], opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted world %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// withWorld loads (or, if create is true, creates) worldID and runs fn
// against it, always detaching listeners and closing storage afterward.
func withWorld(ctx context.Context, configPath, worldID string, create bool, fn func(context.Context, *world.World) error) error {
	_, store, opts, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer closeStore(store)

	var w *world.World
	if create {
		w, err = world.CreateWorld(ctx, worldID, opts)
	} else {
		w, err = world.GetWorld(ctx, worldID, opts)
	}
	if err != nil {
		return err
	}
	defer w.Shutdown(ctx)
	return fn(ctx, w)
}

func printWorldShow(out io.Writer, w *world.World) error {
	fmt.Fprintf(out, "world %s\n", w.ID)
	fmt.Fprintf(out, "  current chat: %s\n", w.CurrentChatID())
	fmt.Fprintln(out, "  agents:")
	for _, a := range w.ListAgents() {
		fmt.Fprintf(out, "    - %s (%s/%s, turnLimit=%d)\n", a.ID, a.Provider, a.Model, a.TurnLimit)
	}
	fmt.Fprintln(out, "  chats:")
	for _, c := range w.ListChats() {
		fmt.Fprintf(out, "    - %s %q\n", c.ID, c.Name)
	}
	return nil
}
