// Package handlegen issues numeric resource handles. Zero is reserved as the
// invalid handle and is never returned.
package handlegen

import "sync/atomic"

// Invalid is the handle value that no Generator ever issues.
const Invalid uint32 = 0

// Generator issues monotonically increasing uint32 handles and is safe for
// concurrent use. After the maximum value it wraps around to 1.
type Generator struct {
	last atomic.Uint32
}

// NewGenerator returns a Generator whose first handle is after+1, or 1 when
// after+1 would overflow.
//
// Parameters:
//   - after: The value preceding the first issued handle
//
// Returns:
//   - A new Generator
func NewGenerator(after uint32) *Generator {
	g := &Generator{}
	g.last.Store(after)
	return g
}

// Next returns the next handle, skipping Invalid.
func (g *Generator) Next() uint32 {
	for {
		h := g.last.Add(1)
		if h != Invalid {
			return h
		}
	}
}
