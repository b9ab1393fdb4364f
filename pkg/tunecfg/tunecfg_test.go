package tunecfg

import (
	"testing"

	"github.com/BYTE-6D65/tunedaemon/internal/tier"
)

func TestForTier_ReturnsMatchingTier(t *testing.T) {
	cases := []tier.Tier{tier.LowEnd, tier.MidRange, tier.Flagship}
	for _, want := range cases {
		got := ForTier(want)
		if got.Tier != want {
			t.Errorf("ForTier(%v).Tier = %v, want %v", want, got.Tier, want)
		}
	}
}

func TestForTier_UnknownFallsBackToLowEnd(t *testing.T) {
	got := ForTier(tier.Tier(99))
	if got.Tier != tier.LowEnd {
		t.Fatalf("ForTier(99).Tier = %v, want LowEnd", got.Tier)
	}
}

func TestForTier_ProfilesAreDistinct(t *testing.T) {
	low := ForTier(tier.LowEnd)
	mid := ForTier(tier.MidRange)
	high := ForTier(tier.Flagship)

	if low.CPU.MaxLatencyNS == high.CPU.MaxLatencyNS {
		t.Error("low-end and flagship CPU.MaxLatencyNS should differ")
	}
	if low.Memory.SwappinessBase == high.Memory.SwappinessBase &&
		low.Memory.Kp == high.Memory.Kp {
		t.Error("low-end and flagship memory tunables should differ somewhere")
	}
	if mid == low || mid == high {
		t.Error("mid-range profile should not equal either adjacent tier")
	}
}

func TestKernelLimits_NonZero(t *testing.T) {
	for _, p := range []Profile{ForTier(tier.LowEnd), ForTier(tier.MidRange), ForTier(tier.Flagship)} {
		if p.Limits == (KernelLimits{}) {
			t.Errorf("%v profile has zero-value KernelLimits", p.Tier)
		}
	}
}
