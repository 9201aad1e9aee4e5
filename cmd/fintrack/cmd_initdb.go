package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fintrack/internal/store"
)

var (
	initSeed     bool
	initEmail    string
	initUsername string
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the schema and the default user",
	RunE:  runInitDB,
}

func init() {
	initdbCmd.Flags().BoolVar(&initSeed, "seed", false, "load starter categories and sample transactions")
	initdbCmd.Flags().StringVar(&initEmail, "email", "demo@example.com", "email for the default user")
	initdbCmd.Flags().StringVar(&initUsername, "username", "demo", "username for the default user")
	rootCmd.AddCommand(initdbCmd)
}

func runInitDB(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	st, err := store.Open(cfg.Database.DSN, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	userID, err := st.EnsureUser(ctx, initEmail, initUsername)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	log.Info("database ready",
		zap.String("dsn", cfg.Database.DSN),
		zap.Int64("user_id", userID))

	if initSeed {
		if err := st.Seed(ctx, userID); err != nil {
			return fmt.Errorf("seed data: %w", err)
		}
		log.Info("seed data loaded", zap.Int64("user_id", userID))
	}
	return nil
}
