package cpu

import (
	"testing"

	"github.com/BYTE-6D65/tunedaemon/internal/tier"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

func testProfile() tunecfg.Profile { return tunecfg.ForTier(tier.MidRange) }

func TestController_TargetsWithinLimits(t *testing.T) {
	profile := testProfile()
	c := New(profile.CPU, profile.Limits)

	for i := 0; i < 20; i++ {
		targets := c.Cycle(float64(i*5%100), 1.0, 0.8, false)
		if targets.LatencyNS < profile.Limits.MinLatencyNS || targets.LatencyNS > profile.Limits.MaxLatencyNS {
			t.Fatalf("iteration %d: LatencyNS=%d outside limits", i, targets.LatencyNS)
		}
		if targets.GranularityNS < profile.Limits.MinGranularityNS || targets.GranularityNS > targets.LatencyNS {
			t.Fatalf("iteration %d: GranularityNS=%d not in [min,latency]", i, targets.GranularityNS)
		}
	}
}

func TestController_StructuralBreakResetsLoad(t *testing.T) {
	profile := testProfile()
	c := New(profile.CPU, profile.Limits)

	c.Cycle(80, 1.0, 1.0, false)
	c.Cycle(80, 1.0, 1.0, false)
	if c.load.firstRun {
		t.Fatal("expected load state seeded after two cycles")
	}

	c.Cycle(10, 1.0, 1.0, true)
	if c.load.x != 10 {
		t.Errorf("after structural break, demand = %v, want seeded to measurement 10", c.load.x)
	}
}

func TestController_HighPressureRaisesUclampMin(t *testing.T) {
	profile := testProfile()
	low := New(profile.CPU, profile.Limits)
	high := New(profile.CPU, profile.Limits)

	var lowTarget, highTarget Targets
	for i := 0; i < 5; i++ {
		lowTarget = low.Cycle(5, 1.0, 1.0, false)
		highTarget = high.Cycle(95, 1.0, 1.0, false)
	}

	if highTarget.UclampMin <= lowTarget.UclampMin {
		t.Errorf("uclamp_min under high pressure (%d) should exceed low pressure (%d)", highTarget.UclampMin, lowTarget.UclampMin)
	}
}
