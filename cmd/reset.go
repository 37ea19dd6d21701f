package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/adapter/outbound/repository"

	"github.com/spf13/cobra"
)

// newResetCmd creates and returns the reset command.
func newResetCmd() *cobra.Command {
	var (
		dryRun          bool
		keepRecentHours int
		keepEntities    bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Bulk-reset documents for re-analysis",
		Long: `Return documents to pending with cleared batch references and attempt
counts so the pipeline analyzes them again. Stored mentions of the reset
documents are purged unless --keep-entities is set.

Runs as a dry run by default; pass --dry-run=false to apply changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReset(cmd, dryRun, keepRecentHours, keepEntities)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "Report without changing any state")
	cmd.Flags().IntVar(&keepRecentHours, "keep-recent-hours", 0, "Leave documents updated within the last N hours untouched")
	cmd.Flags().BoolVar(&keepEntities, "keep-entities", false, "Keep stored entities and mentions")
	return cmd
}

func runReset(cmd *cobra.Command, dryRun bool, keepRecentHours int, keepEntities bool) error {
	cfg := GetConfig()
	ctx := context.Background()

	dbPool, err := setupDatabaseConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	documentRepo := repository.NewPostgreSQLDocumentRepository(dbPool)
	out := cmd.OutOrStdout()

	if dryRun {
		total, countErr := documentRepo.CountResetCandidates(ctx, time.Duration(keepRecentHours)*time.Hour)
		if countErr != nil {
			return fmt.Errorf("failed to count reset candidates: %w", countErr)
		}
		fmt.Fprintf(out, "Would reset %d documents to pending", total)
		if keepRecentHours > 0 {
			fmt.Fprintf(out, " (keeping those updated within %dh)", keepRecentHours)
		}
		fmt.Fprintln(out)
		if !keepEntities {
			fmt.Fprintln(out, "Would purge their stored mentions and orphaned entities")
		}
		fmt.Fprintln(out, "Dry run: no changes applied. Re-run with --dry-run=false to apply.")
		return nil
	}

	reset, err := documentRepo.ResetAll(ctx, time.Duration(keepRecentHours)*time.Hour, keepEntities)
	if err != nil {
		return fmt.Errorf("failed to reset documents: %w", err)
	}

	fmt.Fprintf(out, "Reset %d documents to pending\n", reset)
	if !keepEntities {
		fmt.Fprintln(out, "Purged their stored mentions and orphaned entities")
	}

	return nil
}

func init() {
	rootCmd.AddCommand(newResetCmd())
}
