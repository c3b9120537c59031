package schedz

import "fmt"

// TierPolicy describes the shape of the multi-level feedback queue: how many
// priority tiers exist and how the per-tier quantum and cycle budget are
// derived from the base quantum.
//
// Tier 0 is the highest priority. Quanta grow exponentially toward the lower
// tiers while cycle budgets shrink, so every tier receives the same nominal
// time budget per full rotation:
//
//	Quantum(i) * Runs(i) == BaseQuantum * 2^(Tiers-1)
type TierPolicy struct {
	// Tiers is the number of priority queues. Must be at least 1.
	Tiers int

	// BaseQuantum is the time slice of tier 0, in scheduler time units.
	// Must be at least 1.
	BaseQuantum int
}

// Validate reports whether the policy describes a usable queue shape.
func (p TierPolicy) Validate() error {
	if p.Tiers < 1 {
		return fmt.Errorf("tier count must be >= 1, got %d", p.Tiers)
	}
	if p.BaseQuantum < 1 {
		return fmt.Errorf("base quantum must be >= 1, got %d", p.BaseQuantum)
	}
	return nil
}

// Quantum returns the time slice of tier i in scheduler time units.
// Lower-priority tiers get exponentially longer slices.
func (p TierPolicy) Quantum(i int) int {
	return p.BaseQuantum << i
}

// Runs returns the cycle budget of tier i: how many consecutive outer
// iterations the scheduler spends on that tier before rotating. Higher
// priority tiers get more cycles per sweep.
func (p TierPolicy) Runs(i int) int {
	return 1 << (p.Tiers - 1 - i)
}

// Higher returns the tier a process is promoted to after a voluntary I/O
// relinquish at tier i. Tier 0 is the promotion floor.
func (p TierPolicy) Higher(i int) int {
	if i <= 0 {
		return 0
	}
	return i - 1
}

// Lower returns the tier a process is demoted to after exhausting its
// quantum at tier i. The lowest tier demotes to itself.
func (p TierPolicy) Lower(i int) int {
	if i >= p.Tiers-1 {
		return p.Tiers - 1
	}
	return i + 1
}
