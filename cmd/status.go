package cmd

import (
	"context"
	"fmt"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/adapter/outbound/repository"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"

	"github.com/spf13/cobra"
)

// newStatusCmd creates and returns the status command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report document and batch pipeline state",
		Long:  `Report document counts per status and the currently open provider batches. Read-only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	cfg := GetConfig()
	ctx := context.Background()

	dbPool, err := setupDatabaseConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	documentRepo := repository.NewPostgreSQLDocumentRepository(dbPool)
	batchRepo := repository.NewPostgreSQLBatchRepository(dbPool)
	entityRepo := repository.NewPostgreSQLEntityRepository(dbPool)

	counts, err := documentRepo.StatusCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read document counts: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Documents:")
	for _, status := range valueobject.AllDocumentStatuses() {
		fmt.Fprintf(out, "  %-10s %d\n", status.String(), counts[status])
	}

	entities, mentions, err := entityRepo.Totals(ctx)
	if err != nil {
		return fmt.Errorf("failed to read entity counts: %w", err)
	}
	fmt.Fprintf(out, "Entities: %d (%d mentions)\n", entities, mentions)

	batches, err := batchRepo.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open batches: %w", err)
	}

	fmt.Fprintf(out, "Open batches: %d\n", len(batches))
	for _, batch := range batches {
		fmt.Fprintf(out, "  %s  %-12s %d documents  submitted %s\n",
			batch.BatchRef(),
			batch.ProviderStatus().String(),
			len(batch.DocumentIDs()),
			batch.CreatedAt().Format("2006-01-02 15:04:05"),
		)
	}

	return nil
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}
