package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/subsku/internal/pool"
	"github.com/roach88/subsku/internal/store"
)

// OpenStore opens a file-backed store in t.TempDir() and closes it on cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "subsku.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedPool writes a pool for sku whose sub-units are numbered from 0001:
// first available Available ones, then unavailable Unavailable ones.
func SeedPool(t *testing.T, s *store.Store, sku string, available, unavailable int) *pool.Pool {
	t.Helper()
	p, err := s.UpdatePool(t.Context(), sku, func(p *pool.Pool, _ bool) error {
		seq := p.MaxSuffix()
		for i := 0; i < available; i++ {
			seq++
			p.SubUnits = append(p.SubUnits, pool.SubUnit{Name: pool.FormatName(sku, seq), Status: pool.Available})
		}
		for i := 0; i < unavailable; i++ {
			seq++
			p.SubUnits = append(p.SubUnits, pool.SubUnit{Name: pool.FormatName(sku, seq), Status: pool.Unavailable})
		}
		return nil
	})
	require.NoError(t, err)
	return p
}

// SeedUnits writes the given sub-units verbatim as the pool for sku.
func SeedUnits(t *testing.T, s *store.Store, sku string, units ...pool.SubUnit) *pool.Pool {
	t.Helper()
	p, err := s.UpdatePool(t.Context(), sku, func(p *pool.Pool, _ bool) error {
		p.SubUnits = append([]pool.SubUnit{}, units...)
		return nil
	})
	require.NoError(t, err)
	return p
}

// LoadPool reads the pool for sku, failing the test if it is absent.
func LoadPool(t *testing.T, s *store.Store, sku string) *pool.Pool {
	t.Helper()
	p, err := s.GetPool(t.Context(), sku)
	require.NoError(t, err)
	return p
}
