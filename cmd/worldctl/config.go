package main

import (
	"context"
	"fmt"
	"os"

	"github.com/agentworld/nexusworld/internal/config"
	"github.com/agentworld/nexusworld/internal/observability"
	"github.com/agentworld/nexusworld/internal/providers"
	"github.com/agentworld/nexusworld/internal/storage"
	"github.com/agentworld/nexusworld/internal/world"
)

// defaultConfigPath mirrors the teacher's profile.DefaultConfigPath idiom,
// trimmed to a single well-known filename since this runtime has no
// multi-profile concept.
func defaultConfigPath() string {
	return "nexusworld.yaml"
}

// resolveConfigPath falls back to defaultConfigPath when the flag was left
// empty, matching the teacher's resolveConfigPath helper.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	return defaultConfigPath()
}

// openStore constructs the storage backend cfg.Storage selects.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "sqlite":
		return storage.OpenSQLiteStore(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildResolver closes over cfg to resolve an agent's provider tag to a
// concrete adapter, reading API keys from the already-env-overridden config
// (spec §4.9 names OpenAI-style, Anthropic-style, Google-style backends).
func buildResolver(cfg *config.Config) world.ProviderResolver {
	return func(tag string) (providers.Provider, bool) {
		pc := cfg.LLM.Providers[tag]
		switch tag {
		case "anthropic":
			return providers.NewAnthropicProvider(pc.APIKey), true
		case "openai":
			return providers.NewOpenAIProvider(pc.APIKey), true
		case "google":
			p, err := providers.NewGoogleProvider(context.Background(), pc.APIKey)
			if err != nil {
				return nil, false
			}
			return p, true
		default:
			return nil, false
		}
	}
}

// loadRuntime reads configuration, opens storage, and assembles the
// world.Options a serve/world/agent/chat command needs. Callers own closing
// the returned store once done (it implements io.Closer on the sqlite path).
func loadRuntime(configPath string) (*config.Config, storage.Store, world.Options, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, world.Options{}, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, world.Options{}, err
	}
	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	metrics := observability.NewMetrics()
	opts := world.Options{
		Store:            store,
		Logger:           logger,
		Metrics:          metrics,
		Resolver:         buildResolver(cfg),
		DisableStreaming: cfg.World.DisableStreaming,
		ErrorLogSize:     cfg.World.ErrorLogSize,
	}
	return cfg, store, opts, nil
}

func closeStore(store storage.Store) {
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "warning: closing storage:", err)
		}
	}
}
