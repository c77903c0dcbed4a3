package turns

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator assigns monotonically increasing turn ids within a session.
type IDGenerator struct {
	counter uint64
}

// NewIDGenerator returns a generator whose first id is turn_1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next turn id.
func (g *IDGenerator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("turn_%d", n)
}

// Issued returns how many ids have been handed out.
func (g *IDGenerator) Issued() uint64 {
	return atomic.LoadUint64(&g.counter)
}
