package cmd

import (
	"context"
	"fmt"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/migrations"

	"github.com/spf13/cobra"
)

// newMigrateCmd creates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long:  `Apply the embedded SQL migrations. Statements are idempotent, so running against an existing schema is safe.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd)
		},
	}
}

func runMigrate(cmd *cobra.Command) error {
	cfg := GetConfig()
	ctx := context.Background()

	dbPool, err := setupDatabaseConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	applied, err := migrations.Apply(ctx, dbPool)
	if err != nil {
		return err
	}

	for _, name := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newMigrateCmd())
}
