package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fintrack/internal/config"
	"fintrack/internal/logging"
	"fintrack/internal/perception"
	"fintrack/internal/pipeline"
	"fintrack/internal/schema"
	"fintrack/internal/session"
	"fintrack/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fintrack",
	Short: "Natural-language personal finance tracker",
	Long: `fintrack answers questions about your money and records transactions
from plain English. Messages are translated into strictly validated,
parameterized SQL scoped to your account before anything runs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fintrack.yaml", "path to config file")
}

// bootstrap loads config and builds the logger every subcommand needs.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// buildAgent assembles the full pipeline over an open store.
func buildAgent(cfg *config.Config, st *store.Store, log *zap.Logger) (*pipeline.Orchestrator, error) {
	policy, err := schema.Load()
	if err != nil {
		return nil, fmt.Errorf("load schema policy: %w", err)
	}

	llm := perception.NewOpenAIClientWithConfig(perception.OpenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout.Std(),
	})

	return pipeline.NewOrchestrator(pipeline.Deps{
		Classifier: perception.NewClassifier(llm, log),
		Queries:    perception.NewQuerySynthesizer(llm, policy, st, log),
		Mutations:  perception.NewMutationSynthesizer(llm, policy, st, log),
		Validator:  pipeline.NewValidator(policy),
		Executor:   pipeline.NewExecutor(st, log),
		Sessions:   session.NewRegistry(0),
		Logger:     log,
	}), nil
}
