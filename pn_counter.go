package gocrdt

import "fmt"

// PNCounter is a Positive-Negative Counter CRDT.
//
// Unlike a GCounter, which is increment-only, a PNCounter allows for both
// increments and decrements. It achieves this by internally managing two
// independent G-Counters:
//   - The "P" counter tracks the sum of all increments.
//   - The "N" counter tracks the sum of all decrements.
//
// This structure ensures that even when nodes decrement values, the underlying
// state remains monotonic (always growing), which is a requirement for
// successful merging in distributed systems.
type PNCounter struct {
	pCounter *GCounter // Increments
	nCounter *GCounter // Decrements
}

// NewPNCounter initializes a PNCounter for a specific node.
// It creates two underlying GCounters, both sharing the same nodeID to
// track that node's specific contribution to the global sum and delta.
func NewPNCounter(nodeID string) *PNCounter {
	return &PNCounter{
		pCounter: NewGCounter(nodeID),
		nCounter: NewGCounter(nodeID),
	}
}

// Increment adds 1 to the counter.
// Internally, this increases the value in the positive GCounter.
func (c *PNCounter) Increment() {
	c.pCounter.Increment()
}

// IncrementBy adds delta to the counter.
func (c *PNCounter) IncrementBy(delta uint64) {
	c.pCounter.IncrementBy(delta)
}

// Decrement subtracts 1 from the counter.
// Internally, this increases the value in the negative GCounter.
// Note: We "increment" the negative state to represent a "decrement"
// of the total value.
func (c *PNCounter) Decrement() {
	c.nCounter.Increment()
}

// DecrementBy subtracts delta from the counter.
func (c *PNCounter) DecrementBy(delta uint64) {
	c.nCounter.IncrementBy(delta)
}

// Value calculates the current total by subtracting the negative GCounter sum
// from the positive GCounter sum, returned as an int64.
//
// This represents the "drift" between all additions and all subtractions
// known by the node. This method satisfies the CRDT interface.
func (c *PNCounter) Value() any {
	return c.Count()
}

// Count returns the current total without the interface indirection.
func (c *PNCounter) Count() int64 {
	return c.pCounter.Count() - c.nCounter.Count()
}

// Merge combines the state of another PNCounter into this one.
//
// The merge is performed by independently merging the underlying positive
// and negative GCounters. Since both underlying counters satisfy the
// properties of a Join-Semilattice, the PNCounter merge is also commutative,
// associative, and idempotent.
func (c *PNCounter) Merge(other CRDT) error {
	remote, ok := other.(*PNCounter)
	if !ok {
		return fmt.Errorf("cannot merge PNCounter with %T", other)
	}
	if err := c.pCounter.Merge(remote.pCounter); err != nil {
		return err
	}
	return c.nCounter.Merge(remote.nCounter)
}
