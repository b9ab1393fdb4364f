// Package cpu implements the CPU scheduler controller: it turns CPU PSI
// into scheduler-latency, wakeup-granularity, migration-cost and
// uclamp_min targets (spec §4.4).
package cpu

import (
	"math"

	"github.com/BYTE-6D65/tunedaemon/pkg/mathutil"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

// loadState is the controller's private damped second-order follower
// (spec §3 "LoadState"): a smoothed demand scalar, its rate of change,
// and a residual ring buffer used only for the transient predicate.
type loadState struct {
	x, rate float64

	ring   [16]float64
	filled int
	next   int

	firstRun bool
}

func newLoadState() loadState {
	return loadState{firstRun: true}
}

const (
	followerGain    = 0.35
	rateGain        = 0.2
	gapResetSeconds = 5.0
)

// update advances the follower toward measurement p over dt seconds.
// structuralBreak resets the state before processing (spec §4.4 "normal
// -> structural break ... resets the load state").
func (s *loadState) update(p, dt float64, structuralBreak bool, cfg tunecfg.CpuMathConfig) (demand, velocity float64) {
	if structuralBreak || dt > gapResetSeconds {
		*s = newLoadState()
	}
	if s.firstRun {
		s.x = p
		s.rate = 0
		s.firstRun = false
		s.pushResidual(0)
		return s.x, s.rate
	}

	residual := p - s.x
	s.pushResidual(residual)

	s.x += followerGain * residual
	s.rate += rateGain * (residual/math.Max(dt, 1e-3) - s.rate)

	// Surge branch: a fast-moving measurement gets an extra kick added
	// to the internal rate so the follower catches up faster.
	if math.Abs(s.rate) > cfg.SurgeThreshold {
		s.rate += s.rate * cfg.SurgeGain
	}

	return s.x, s.rate
}

func (s *loadState) pushResidual(r float64) {
	s.ring[s.next] = r
	s.next = (s.next + 1) % len(s.ring)
	if s.filled < len(s.ring) {
		s.filled++
	}
}

// transient reports whether the follower's state is moving too fast or
// too far from target to trust smoothed output (spec §4.4 "Transient
// predicate").
func (s *loadState) transient(target float64, cfg tunecfg.CpuMathConfig) bool {
	return math.Abs(s.rate) > cfg.RateThreshold || math.Abs(s.x-target) > cfg.DistanceThreshold
}

// Targets is one cycle's computed knob targets, already clamped to the
// tier's KernelLimits (spec §4.5-style invariant applied uniformly).
type Targets struct {
	LatencyNS        uint64
	GranularityNS    uint64
	WakeupGranNS     uint64
	MigrationCostNS  uint64
	UclampMin        uint64
	Demand, Velocity float64
	Transient        bool
}

// Controller holds the CPU controller's private state across cycles.
type Controller struct {
	cfg    tunecfg.CpuMathConfig
	limits tunecfg.KernelLimits
	load   loadState
}

// New returns a Controller parameterised by the device tier's profile.
func New(cfg tunecfg.CpuMathConfig, limits tunecfg.KernelLimits) *Controller {
	return &Controller{cfg: cfg, limits: limits, load: newLoadState()}
}

// Cycle computes this cycle's targets. pEff is max(current, avg10) for
// CPU PSI (spec §4.4); thermalScale is the thermal regulator's damping
// output in [0,1] (spec §4.7); structuralBreak signals a discontinuity
// the caller has detected (e.g. a CPU hotplug event) that should reset
// the load follower.
func (c *Controller) Cycle(pEff, dt, thermalScale float64, structuralBreak bool) Targets {
	demand, velocity := c.load.update(pEff, dt, structuralBreak, c.cfg)

	latRange := c.cfg.MaxLatencyNS - c.cfg.MinLatencyNS
	sigmoidLatency := c.cfg.MaxLatencyNS - mathutil.Sigmoid(pEff, 50, 0.08, latRange)
	lowLatencyTarget := c.cfg.MaxLatencyNS - latRange*mathutil.Ramp(demand, 0, 100)
	latency := math.Min(sigmoidLatency, lowLatencyTarget)

	thermalFloor := c.cfg.MinLatencyNS + (1-mathutil.Clamp(thermalScale, 0, 1))*(c.cfg.MaxLatencyNS-c.cfg.MinLatencyNS)*0.25
	latency = math.Max(latency, thermalFloor)
	latency = mathutil.Clamp(latency, c.cfg.MinLatencyNS, c.cfg.MaxLatencyNS)

	granularity := mathutil.Clamp(latency*c.cfg.LatencyGranRatio, c.cfg.GranMinNS, latency)

	wakeupGran := c.cfg.WakeupGranMinNS + (c.cfg.WakeupGranMaxNS-c.cfg.WakeupGranMinNS)*mathutil.Decay(pEff, c.cfg.WakeupDecayCoeff)

	migrationBase := c.cfg.MigrationCostBaseNS + (pEff/100)*(pEff/100)*(c.cfg.MigrationCostMaxNS-c.cfg.MigrationCostBaseNS)
	attenuation := math.Min(math.Abs(velocity)/25, 0.5)
	migrationCost := migrationBase * (1 - attenuation)

	uclampSigmoid := mathutil.Sigmoid(pEff, 50, 0.08, c.cfg.UclampMinCeiling-c.cfg.UclampMinFloor) + c.cfg.UclampMinFloor
	uclampMin := uclampSigmoid * mathutil.Clamp(thermalScale, 0, 1)

	return Targets{
		LatencyNS:       clampU64(latency, float64(c.limits.MinLatencyNS), float64(c.limits.MaxLatencyNS)),
		GranularityNS:   clampU64(granularity, float64(c.limits.MinGranularityNS), float64(c.limits.MaxGranularityNS)),
		WakeupGranNS:    clampU64(wakeupGran, float64(c.limits.MinGranularityNS), float64(c.limits.MaxGranularityNS)),
		MigrationCostNS: clampU64(migrationCost, 0, float64(c.limits.MaxGranularityNS)),
		UclampMin:       clampU64(uclampMin, 0, 1024),
		Demand:          demand,
		Velocity:        velocity,
		Transient:       c.load.transient(demand, c.cfg),
	}
}

func clampU64(v, lo, hi float64) uint64 {
	v = mathutil.Clamp(v, lo, hi)
	if v < 0 {
		return 0
	}
	return uint64(v)
}
