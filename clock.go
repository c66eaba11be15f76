package gocrdt

// LamportClock is a per-replica monotonic logical clock.
//
// Every local insert advances the clock by the number of graphemes inserted,
// so each character receives its own clock value. On merge the clock is
// raised to the maximum clock observed in the remote state, which keeps
// causally later operations at strictly greater clocks than everything they
// have seen.
type LamportClock struct {
	value uint64
}

// Value returns the current clock value without advancing it.
func (c *LamportClock) Value() uint64 {
	return c.value
}

// Tick increments the clock by one and returns the new value.
func (c *LamportClock) Tick() uint64 {
	c.value++
	return c.value
}

// TickBy advances the clock by n and returns the new value, which is the
// LAST clock of the allocated range. Inserting k graphemes calls TickBy(k)
// and assigns the characters the range [new-k+1, new].
func (c *LamportClock) TickBy(n int) uint64 {
	c.value += uint64(n)
	return c.value
}

// Update raises the clock to max(local, remote). It never decreases the
// clock, so local monotonicity is preserved across merges.
func (c *LamportClock) Update(remote uint64) {
	if remote > c.value {
		c.value = remote
	}
}
