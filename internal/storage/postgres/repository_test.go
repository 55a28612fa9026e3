package postgres

import (
	"context"
	"os"
	"testing"

	"expensetracker/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// testDatabaseURL points at a disposable database; the tests truncate it.
const testDatabaseURL = "EXPENSES_TEST_POSTGRES_URL"

func TestRepositoryContract(t *testing.T) {
	url := os.Getenv(testDatabaseURL)
	if url == "" {
		t.Skipf("%s not set", testDatabaseURL)
	}

	suite.Run(t, &storagetest.ContractSuite{
		Open: func(t *testing.T) (storagetest.Store, func()) {
			ctx := context.Background()
			repo, err := NewRepository(ctx, url)
			require.NoError(t, err)
			_, err = repo.pool.Exec(ctx, `TRUNCATE expenses, users`)
			require.NoError(t, err)
			return repo, func() { repo.Close() }
		},
	})
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "pgx5://u:p@localhost:5432/db?sslmode=disable"},
		{"postgresql://localhost/db", "pgx5://localhost/db"},
		{"pgx5://localhost/db", "pgx5://localhost/db"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}
