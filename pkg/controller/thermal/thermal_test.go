package thermal

import (
	"testing"

	"github.com/BYTE-6D65/tunedaemon/internal/tier"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

func testCfg() tunecfg.ThermalTunables { return tunecfg.ForTier(tier.MidRange).Thermal }

func TestRegulator_DampingWithinRange(t *testing.T) {
	r := New(testCfg())
	for i := 0; i < 20; i++ {
		d := r.Damping(Inputs{CPUTempC: float64(40 + i), BatTempC: 35, PSILoad: 10}, 1.0)
		if d < 0.1 || d > 1.0 {
			t.Fatalf("iteration %d: damping %v outside [0.1,1.0]", i, d)
		}
	}
}

func TestRegulator_HardBatteryLimitForcesThrottle(t *testing.T) {
	cfg := testCfg()
	r := New(cfg)
	d := r.Damping(Inputs{CPUTempC: 70, BatTempC: cfg.HardLimitBat, PSILoad: 0}, 1.0)
	if d > 0.2 {
		t.Errorf("damping at hard battery limit = %v, want <= 0.2", d)
	}
}

func TestRegulator_PSILoadLowersDynamicTarget(t *testing.T) {
	cfg := testCfg()
	low := New(cfg)
	high := New(cfg)

	var lowD, highD float64
	for i := 0; i < 5; i++ {
		lowD = low.Damping(Inputs{CPUTempC: 70, BatTempC: 35, PSILoad: 0}, 1.0)
		highD = high.Damping(Inputs{CPUTempC: 70, BatTempC: 35, PSILoad: 90}, 1.0)
	}
	if highD >= lowD {
		t.Errorf("higher PSI load should anticipatorily lower damping further: lowD=%v highD=%v", lowD, highD)
	}
}
