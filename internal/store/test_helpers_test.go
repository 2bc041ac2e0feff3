package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/subsku/internal/pool"
)

// createTestStore creates a new file-backed store in a temp dir.
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

// seedPool writes units for sku through UpdatePool.
func seedPool(t *testing.T, s *Store, sku string, units ...pool.SubUnit) *pool.Pool {
	t.Helper()
	p, err := s.UpdatePool(t.Context(), sku, func(p *pool.Pool, _ bool) error {
		p.SubUnits = append(p.SubUnits, units...)
		return nil
	})
	if err != nil {
		t.Fatalf("seedPool(%q) failed: %v", sku, err)
	}
	return p
}
