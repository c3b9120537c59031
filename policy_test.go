package schedz

import "testing"

func TestTierPolicy(t *testing.T) {
	t.Run("Quantum Doubles Per Tier", func(t *testing.T) {
		p := TierPolicy{Tiers: 3, BaseQuantum: 2}
		want := []int{2, 4, 8}
		for i, w := range want {
			if got := p.Quantum(i); got != w {
				t.Errorf("Quantum(%d) = %d, want %d", i, got, w)
			}
		}
	})

	t.Run("Runs Halve Per Tier", func(t *testing.T) {
		p := TierPolicy{Tiers: 3, BaseQuantum: 2}
		want := []int{4, 2, 1}
		for i, w := range want {
			if got := p.Runs(i); got != w {
				t.Errorf("Runs(%d) = %d, want %d", i, got, w)
			}
		}
	})

	t.Run("Every Tier Gets The Same Rotation Budget", func(t *testing.T) {
		for _, tiers := range []int{1, 2, 3, 5} {
			p := TierPolicy{Tiers: tiers, BaseQuantum: 2}
			want := p.BaseQuantum << (tiers - 1)
			for i := 0; i < tiers; i++ {
				if got := p.Quantum(i) * p.Runs(i); got != want {
					t.Errorf("tiers=%d: Quantum(%d)*Runs(%d) = %d, want %d", tiers, i, i, got, want)
				}
			}
		}
	})

	t.Run("Higher Has A Floor At Zero", func(t *testing.T) {
		p := TierPolicy{Tiers: 3, BaseQuantum: 2}
		cases := map[int]int{0: 0, 1: 0, 2: 1}
		for in, want := range cases {
			if got := p.Higher(in); got != want {
				t.Errorf("Higher(%d) = %d, want %d", in, got, want)
			}
		}
	})

	t.Run("Lower Has A Ceiling At The Last Tier", func(t *testing.T) {
		p := TierPolicy{Tiers: 3, BaseQuantum: 2}
		cases := map[int]int{0: 1, 1: 2, 2: 2}
		for in, want := range cases {
			if got := p.Lower(in); got != want {
				t.Errorf("Lower(%d) = %d, want %d", in, got, want)
			}
		}
	})

	t.Run("Validate Rejects Degenerate Shapes", func(t *testing.T) {
		if err := (TierPolicy{Tiers: 0, BaseQuantum: 2}).Validate(); err == nil {
			t.Error("expected error for zero tiers")
		}
		if err := (TierPolicy{Tiers: 3, BaseQuantum: 0}).Validate(); err == nil {
			t.Error("expected error for zero quantum")
		}
		if err := (TierPolicy{Tiers: 1, BaseQuantum: 1}).Validate(); err != nil {
			t.Errorf("unexpected error for minimal policy: %v", err)
		}
	})
}
