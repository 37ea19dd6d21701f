package repository

import (
	"context"
	"testing"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/entity"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to the local test database, applies migrations, and
// wipes pipeline tables. Tests are skipped when no database is reachable.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database integration test in short mode")
	}

	pool, err := NewDatabaseConnection(DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "newsbias_test",
		Username: "dev",
		Password: "dev",
	})
	if err != nil {
		t.Skipf("Test database not available: %v", err)
	}
	t.Cleanup(pool.Close)

	ctx := context.Background()
	if _, err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	cleanupTestData(t, pool)
	return pool
}

// cleanupTestData wipes all pipeline tables for test isolation.
func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	for _, query := range []string{
		"DELETE FROM entity_mentions",
		"DELETE FROM entities",
		"DELETE FROM batches",
		"DELETE FROM documents",
	} {
		if _, err := pool.Exec(ctx, query); err != nil {
			t.Fatalf("Failed to clean up with query %s: %v", query, err)
		}
	}
}

// savePendingDocuments inserts n fresh pending documents and returns them.
func savePendingDocuments(t *testing.T, repo *PostgreSQLDocumentRepository, n int) []*entity.Document {
	t.Helper()
	ctx := context.Background()

	docs := make([]*entity.Document, 0, n)
	for i := 0; i < n; i++ {
		doc, err := entity.NewDocument(
			"https://example.com/article",
			"Body text for integration testing.",
		)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, doc))
		docs = append(docs, doc)
	}
	return docs
}

// claimAndAttach drives one document through claim and batch attach, the
// normal pre-ingestion path, and returns it.
func claimAndAttach(t *testing.T, repo *PostgreSQLDocumentRepository, batchRef string) *entity.Document {
	t.Helper()
	ctx := context.Background()

	savePendingDocuments(t, repo, 1)
	claimed, err := repo.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	attached, err := repo.AttachBatch(ctx, []uuid.UUID{claimed[0].ID()}, batchRef)
	require.NoError(t, err)
	require.Len(t, attached, 1)

	return claimed[0]
}
