package memory

import (
	"testing"

	"github.com/BYTE-6D65/tunedaemon/internal/tier"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

func testProfile() tunecfg.Profile { return tunecfg.ForTier(tier.MidRange) }

func TestController_TargetsWithinLimits(t *testing.T) {
	profile := testProfile()
	c := New(profile.Memory, profile.Limits)

	in := Inputs{
		PMem: 30, PMemFull: 10,
		VM:           VMStats{PgscanDelta: 1000, PgstealDelta: 600, WorkingSetRefaultDelta: 50},
		CPUTempC:     45,
		IOSaturation: 0.2,
	}
	for i := 0; i < 10; i++ {
		targets := c.Cycle(in, 1.0, 2.0, 0.3)
		if targets.Swappiness < profile.Limits.MinSwappiness || targets.Swappiness > profile.Limits.MaxSwappiness {
			t.Fatalf("iteration %d: Swappiness=%d outside limits", i, targets.Swappiness)
		}
		if targets.VFSCachePressure < profile.Limits.MinVFSCachePressure || targets.VFSCachePressure > profile.Limits.MaxVFSCachePressure {
			t.Fatalf("iteration %d: VFSCachePressure=%d outside limits", i, targets.VFSCachePressure)
		}
	}
}

func TestController_ReclaimEfficiencyBounded(t *testing.T) {
	profile := testProfile()
	c := New(profile.Memory, profile.Limits)

	in := Inputs{VM: VMStats{PgscanDelta: 100, PgstealDelta: 500}}
	targets := c.Cycle(in, 1.0, 1.0, 0)
	if targets.ReclaimEfficiency < 0 || targets.ReclaimEfficiency > 1 {
		t.Errorf("ReclaimEfficiency = %v, want in [0,1]", targets.ReclaimEfficiency)
	}
}

func TestController_AsymmetricSwappinessDrop(t *testing.T) {
	profile := testProfile()
	c := New(profile.Memory, profile.Limits)

	high := Inputs{PMem: 90, VM: VMStats{PgscanDelta: 1000, PgstealDelta: 100}}
	for i := 0; i < 5; i++ {
		c.Cycle(high, 1.0, 2.0, 0.1)
	}
	before := c.state.swappiness

	low := Inputs{PMem: 0, VM: VMStats{PgscanDelta: 1000, PgstealDelta: 1000}}
	c.Cycle(low, 1.0, 2.0, 0.1)
	after := c.state.swappiness

	if after >= before {
		t.Errorf("expected swappiness to drop immediately on pressure relief: before=%v after=%v", before, after)
	}
}
