package main

import (
	"context"
	"fmt"
	"os"

	"p2p/internal/config"
	"p2p/internal/database"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var envFiles []string

func main() {
	rootCmd := &cobra.Command{
		Use:           "p2pctl",
		Short:         "Operator tooling for the procure-to-pay service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{"configs/.env", ".env"}, "env files loaded before the environment")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connect() (*config.Config, *logrus.Logger, *gorm.DB, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := cfg.NewLogger()
	db, err := database.NewConnection(cfg.Database.DSN(), database.Options{
		MaxOpenConns: 4,
		AutoMigrate:  false,
	}, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return cfg, logger, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, db, err := connect()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema is up to date")
			return nil
		},
	}
}
