package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentworld/nexusworld/internal/world"
	"github.com/agentworld/nexusworld/pkg/models"
)

// buildAgentCmd creates the "agent" command group for managing agents within
// a world (spec §3 Agent).
func buildAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents within a world",
	}
	cmd.AddCommand(buildAgentCreateCmd(), buildAgentListCmd())
	return cmd
}

func buildAgentCreateCmd() *cobra.Command {
	var (
		configPath   string
		worldID      string
		name         string
		systemPrompt string
		provider     string
		model        string
		turnLimit    int
		temperature  float64
	)

	cmd := &cobra.Command{
		Use:   "create [agent-id]",
		Short: "Create a new agent in a world",
		Long:  "Create a new agent, attach its two message-channel subscriptions (spec §4.2), and publish a CRUD event.",
		Example: `  # Create an Anthropic-backed agent
  worldctl agent create assistant --world demo --provider anthropic --model claude-sonnet-4-20250514 --name Assistant`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return withWorld(cmd.Context(), configPath, worldID, false, func(ctx context.Context, w *world.World) error {
				a := models.Agent{
					ID:           args[0],
					Name:         name,
					SystemPrompt: systemPrompt,
					Provider:     provider,
					Model:        model,
					Temperature:  temperature,
					TurnLimit:    turnLimit,
				}
				created, err := w.CreateAgent(ctx, a)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created agent %s in world %s\n", created.ID, worldID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&worldID, "world", "w", "default", "World id the agent belongs to (required)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "System prompt")
	cmd.Flags().StringVarP(&provider, "provider", "p", "anthropic", "LLM provider tag (anthropic, openai, google)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model identifier (required)")
	cmd.Flags().IntVar(&turnLimit, "turn-limit", models.DefaultTurnLimit, "Max consecutive LLM calls per human/world turn")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "Sampling temperature")
	cobra.CheckErr(cmd.MarkFlagRequired("world"))
	cobra.CheckErr(cmd.MarkFlagRequired("model"))

	return cmd
}

func buildAgentListCmd() *cobra.Command {
	var (
		configPath string
		worldID    string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents in a world",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return withWorld(cmd.Context(), configPath, worldID, false, func(ctx context.Context, w *world.World) error {
				for _, a := range w.ListAgents() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s/%s\tturnLimit=%d\tllmCalls=%d\n",
						a.ID, a.Name, a.Provider, a.Model, a.TurnLimit, a.LLMCallCount)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&worldID, "world", "w", "default", "World id to list agents from (required)")
	cobra.CheckErr(cmd.MarkFlagRequired("world"))
	return cmd
}
