// Package thermal implements the thermal regulator: a PID loop over
// CPU-temperature error combined with a leaky bucket that penalises
// sustained positive error, producing a damping scalar that the CPU
// handler uses as the thermal scale of its targets (spec §4.7).
package thermal

import (
	"math"

	"github.com/BYTE-6D65/tunedaemon/pkg/mathutil"
	"github.com/BYTE-6D65/tunedaemon/pkg/pid"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

const bucketMax = 100.0

// energyBucket accumulates sustained positive thermal error (spec §3
// "EnergyBucket").
type energyBucket struct {
	level float64
}

func (b *energyBucket) update(errC, dt, cpuTempC, batTempC, fillRate, leakBase float64) float64 {
	if errC > 0 {
		b.level += errC * dt * fillRate
	}
	leak := leakBase * math.Max(cpuTempC-batTempC, 0) / 20
	b.level -= leak * dt
	b.level = mathutil.Clamp(b.level, 0, bucketMax)
	return b.level / bucketMax
}

// Inputs is everything the thermal regulator consumes in one cycle.
type Inputs struct {
	CPUTempC, BatTempC float64
	PSILoad            float64
}

// Regulator holds the thermal regulator's private PID and leaky-bucket
// state across cycles.
type Regulator struct {
	cfg    tunecfg.ThermalTunables
	pid    *pid.Controller
	bucket energyBucket
}

// New returns a Regulator parameterised by the device tier's profile.
func New(cfg tunecfg.ThermalTunables) *Regulator {
	return &Regulator{
		cfg: cfg,
		pid: pid.New(cfg.Kp, cfg.Ki, cfg.Kd, 100),
	}
}

// Damping returns this cycle's damping scalar in [0.1, 1.0], clamped to
// at most 0.2 whenever BatTempC >= the tier's hard battery limit (spec
// §4.7, §8 boundary scenario 4).
func (r *Regulator) Damping(in Inputs, dt float64) float64 {
	if dt <= 0 {
		dt = 1e-3
	}

	dynamicTarget := math.Min(in.BatTempC+r.cfg.TargetHeadroom*r.cfg.SafetyScaling, r.cfg.HardLimitCPU)
	dynamicTarget -= r.cfg.PSIStrength * math.Max(in.PSILoad-r.cfg.PSIThreshold, 0)

	errC := in.CPUTempC - dynamicTarget
	pidOut := r.pid.Update(errC, dt)

	leakPenalty := 1.0
	if in.CPUTempC > r.cfg.LeakageStartTemp {
		leakPenalty = math.Exp((in.CPUTempC - r.cfg.LeakageStartTemp) * r.cfg.LeakageK)
	}

	bucketFraction := r.bucket.update(errC, dt, in.CPUTempC, in.BatTempC, r.cfg.BucketFillRate, r.cfg.BucketLeakBase)

	baseThrottle := math.Max(pidOut, 0)
	damping := 1 / (1 + baseThrottle*leakPenalty + bucketFraction*0.5)
	damping = mathutil.Clamp(damping, 0.1, 1.0)

	if in.BatTempC >= r.cfg.HardLimitBat {
		damping = math.Min(damping, 0.2)
	}

	return damping
}
