package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ormsql/internal/testutil"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createOrderStore creates a store with the order model's tables.
func createOrderStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	require.NoError(t, s.CreateSchema(context.Background(), testutil.OrderModel()))
	return s
}
