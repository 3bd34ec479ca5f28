// Package timer holds per-subject countdowns and the clock that drives them.
package timer

// Countdowns keeps one remaining-seconds counter per subject index.
// It is not safe for concurrent use; the owning state machine serializes access.
type Countdowns struct {
	remaining []int
	expired   []bool
	frozen    []bool
}

// StartAll creates one countdown per subject. Zero subjects or a non-positive
// duration yields an empty set on which every call is a no-op.
func StartAll(subjects, secondsPerSubject int) *Countdowns {
	if subjects <= 0 || secondsPerSubject <= 0 {
		return &Countdowns{}
	}
	c := &Countdowns{
		remaining: make([]int, subjects),
		expired:   make([]bool, subjects),
		frozen:    make([]bool, subjects),
	}
	for i := range c.remaining {
		c.remaining[i] = secondsPerSubject
	}
	return c
}

// Len reports how many countdowns exist.
func (c *Countdowns) Len() int {
	return len(c.remaining)
}

// Tick advances countdown i by one second. It reports true exactly once,
// on the tick that reaches zero.
func (c *Countdowns) Tick(i int) bool {
	if !c.valid(i) || c.frozen[i] || c.expired[i] {
		return false
	}
	if c.remaining[i] > 0 {
		c.remaining[i]--
	}
	if c.remaining[i] == 0 {
		c.expired[i] = true
		return true
	}
	return false
}

// Freeze stops countdown i permanently.
func (c *Countdowns) Freeze(i int) {
	if c.valid(i) {
		c.frozen[i] = true
	}
}

// Remaining returns the seconds left on countdown i.
func (c *Countdowns) Remaining(i int) int {
	if !c.valid(i) {
		return 0
	}
	return c.remaining[i]
}

// Expired reports whether countdown i reached zero.
func (c *Countdowns) Expired(i int) bool {
	return c.valid(i) && c.expired[i]
}

func (c *Countdowns) valid(i int) bool {
	return i >= 0 && i < len(c.remaining)
}
