package main

import (
	"context"
	"os"

	"github.com/roshni/backend/internal/config"
	"github.com/roshni/backend/internal/db"
	"github.com/roshni/backend/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	seedRoles bool
)

var rootCmd = &cobra.Command{
	Use:          "roshni-migrate",
	Short:        "Create or update the ROSHNI database schema",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{ConfigFile: cfgFile})
		if err != nil {
			return err
		}
		logger.Initialize(cfg.Log)

		conn, err := db.Connect(cfg.Database)
		if err != nil {
			return err
		}

		logger.Info("Running database migrations...", nil)
		if err := db.AutoMigrate(conn); err != nil {
			return err
		}
		if seedRoles {
			if _, err := db.SeedRoles(cmd.Context(), conn); err != nil {
				return err
			}
		}
		logger.Info("Database migrations completed successfully", nil)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "YAML config file (optional)")
	rootCmd.Flags().BoolVar(&seedRoles, "seed-roles", true, "insert the standard roles when the table is empty")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
