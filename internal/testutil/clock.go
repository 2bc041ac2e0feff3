package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a DeterministicClock can report; its first
// reading is Epoch plus one second.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock stamps activity rows with reproducible times. Each
// reading is one second after the previous one, so a scenario replayed
// against a fresh clock produces the same trace. It satisfies engine.Clock.
type DeterministicClock struct {
	mu    sync.Mutex
	ticks int64
}

// NewDeterministicClock returns a clock that has not been read yet.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now advances one tick and returns Epoch plus that many seconds.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	c.ticks++
	n := c.ticks
	c.mu.Unlock()
	return Epoch.Add(time.Duration(n) * time.Second)
}

// Ticks reports how many times Now has been called.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}
