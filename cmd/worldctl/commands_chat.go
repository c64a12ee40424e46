package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentworld/nexusworld/internal/world"
)

// buildChatCmd creates the "chat" command group for managing chats (spec §3
// Chat: a logical conversation grouping, initially named "New Chat").
func buildChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Manage chats within a world",
	}
	cmd.AddCommand(buildChatCreateCmd(), buildChatListCmd(), buildChatDeleteCmd())
	return cmd
}

func buildChatCreateCmd() *cobra.Command {
	var (
		configPath string
		worldID    string
		setCurrent bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return withWorld(cmd.Context(), configPath, worldID, false, func(ctx context.Context, w *world.World) error {
				chat, err := w.CreateChat(ctx, uuid.NewString())
				if err != nil {
					return err
				}
				if setCurrent {
					if err := w.SetCurrentChat(ctx, chat.ID); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created chat %s %q\n", chat.ID, chat.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&worldID, "world", "w", "default", "World id the chat belongs to (required)")
	cmd.Flags().BoolVar(&setCurrent, "set-current", false, "Also make this the world's current chat")
	cobra.CheckErr(cmd.MarkFlagRequired("world"))
	return cmd
}

func buildChatListCmd() *cobra.Command {
	var (
		configPath string
		worldID    string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chats in a world",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return withWorld(cmd.Context(), configPath, worldID, false, func(ctx context.Context, w *world.World) error {
				current := w.CurrentChatID()
				for _, c := range w.ListChats() {
					marker := " "
					if c.ID == current {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%q\n", marker, c.ID, c.Name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&worldID, "world", "w", "default", "World id to list chats from (required)")
	cobra.CheckErr(cmd.MarkFlagRequired("world"))
	return cmd
}

func buildChatDeleteCmd() *cobra.Command {
	var (
		configPath string
		worldID    string
	)
	cmd := &cobra.Command{
		Use:   "delete [chat-id]",
		Short: "Delete a chat, cascade-deleting its messages and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return withWorld(cmd.Context(), configPath, worldID, false, func(ctx context.Context, w *world.World) error {
				if w.CurrentChatID() == args[0] {
					if err := w.SetCurrentChat(ctx, ""); err != nil {
						return err
					}
				}
				if err := w.DeleteChat(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted chat %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&worldID, "world", "w", "default", "World id the chat belongs to (required)")
	cobra.CheckErr(cmd.MarkFlagRequired("world"))
	return cmd
}
