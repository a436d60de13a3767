package npu

// CreditCounter bounds the number of groups the producer may have in flight
// beyond what the buffer alone can hold. It counts produced-but-undrained
// groups: one credit is minted per completed group and burned when a group's
// last word is drained. Production is admitted only while headroom remains,
// modeling a downstream commitment slower than raw buffer space.
type CreditCounter struct {
	max int
	n   int
}

// NewCreditCounter creates a counter saturating at max.
func NewCreditCounter(max int) *CreditCounter {
	return &CreditCounter{max: max}
}

// Count returns the current credit total, always in [0, max].
func (c *CreditCounter) Count() int { return c.n }

// Max returns the saturation bound.
func (c *CreditCounter) Max() int { return c.max }

// Available reports whether admission headroom remains for a new group.
// This is the only gate the global controller checks before letting the
// producer start a group.
func (c *CreditCounter) Available() bool { return c.n < c.max }

// Update applies one step's produce/consume signals. Both firing in the
// same step is a net-zero update; otherwise produce increments toward max
// (no-op at max) and consume decrements toward zero (no-op at zero).
func (c *CreditCounter) Update(produce, consume bool) {
	if produce == consume {
		return
	}
	if produce {
		if c.n < c.max {
			c.n++
		}
		return
	}
	if c.n > 0 {
		c.n--
	}
}
