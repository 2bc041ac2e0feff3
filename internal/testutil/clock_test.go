package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsku/internal/engine"
)

var _ engine.Clock = (*DeterministicClock)(nil)

func TestDeterministicClock_Readings(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Zero(t, clock.Ticks())

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), clock.Now())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 2, 0, time.UTC), clock.Now())
	assert.Equal(t, int64(2), clock.Ticks())
}

func TestDeterministicClock_Replay(t *testing.T) {
	a, b := NewDeterministicClock(), NewDeterministicClock()
	for range 50 {
		require.Equal(t, a.Now(), b.Now())
	}
}

func TestDeterministicClock_ConcurrentReadsAreDistinct(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, reads = 20, 50

	var (
		mu   sync.Mutex
		seen = make(map[time.Time]bool, workers*reads)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range reads {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*reads)
	assert.Equal(t, int64(workers*reads), clock.Ticks())
	assert.True(t, seen[Epoch.Add(workers*reads*time.Second)])
}
