// Package storage implements the block I/O queue controller: it turns
// IO PSI and block device statistics into read-ahead and nr_requests
// queue-depth targets via a gradient-based governor (spec §4.6).
package storage

import (
	"math"

	"github.com/BYTE-6D65/tunedaemon/pkg/mathutil"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

const sequentialitySmoothing = 0.3

// DeviceStats is one cycle's raw block device counters (spec §4.6);
// callers pass pre-computed deltas between samples.
type DeviceStats struct {
	ReadIOsDelta, ReadMergesDelta, ReadSectorsDelta, ReadTicksDelta   float64
	WriteIOsDelta, WriteTicksDelta                                    float64
	InFlight                                                          float64
	ServiceTimeMS                                                     float64 // 0 if unavailable
}

// Inputs is everything the storage controller consumes in one cycle.
type Inputs struct {
	PSIIO float64
	Dev   DeviceStats
}

// Targets is one cycle's computed, limit-clamped knob values.
type Targets struct {
	ReadAheadKB    uint64
	NRRequests     uint64
	Sequentiality  float64
	EffectiveLatencyMS float64
	CriticalCongestion bool
}

// Controller holds the storage controller's private state across cycles
// (spec §3 "QueueState": a smoothed scalar, here sequentiality, plus the
// queue-depth governor's current depth).
type Controller struct {
	cfg    tunecfg.StorageMathConfig
	limits tunecfg.KernelLimits

	sequentiality float64
	depth         float64
	firstRun      bool
}

// New returns a Controller parameterised by the device tier's profile,
// with the queue depth seeded at the tier's maximum (most permissive).
func New(cfg tunecfg.StorageMathConfig, limits tunecfg.KernelLimits) *Controller {
	return &Controller{cfg: cfg, limits: limits, depth: float64(limits.MaxNRRequests), firstRun: true}
}

// Cycle computes this cycle's targets. dt is the elapsed seconds since
// the previous cycle.
func (c *Controller) Cycle(in Inputs, dt float64) Targets {
	if dt <= 0 {
		dt = 1e-3
	}

	lambdaEff := (in.Dev.ReadIOsDelta + in.Dev.WriteIOsDelta) / dt

	reqSizeRatio := 0.0
	if in.Dev.ReadIOsDelta > 0 {
		reqSizeRatio = in.Dev.ReadSectorsDelta / (in.Dev.ReadIOsDelta * 8) // sectors->KB heuristic
	}
	mergeRatio := 0.0
	if in.Dev.ReadIOsDelta+in.Dev.ReadMergesDelta > 0 {
		mergeRatio = in.Dev.ReadMergesDelta / (in.Dev.ReadIOsDelta + in.Dev.ReadMergesDelta)
	}
	pattern := math.Max(mathutil.Clamp(reqSizeRatio, 0, 1), mergeRatio)
	inFlightPressure := mathutil.Ramp(in.Dev.InFlight, 0, c.cfg.QueueHighInFlight)
	rawSequentiality := pattern * inFlightPressure

	if c.firstRun {
		c.sequentiality = rawSequentiality
		c.firstRun = false
	} else {
		c.sequentiality = mathutil.Lerp(c.sequentiality, rawSequentiality, sequentialitySmoothing)
	}

	effectiveLatency := in.Dev.ServiceTimeMS
	if effectiveLatency <= 0 {
		if lambdaEff > 0 {
			effectiveLatency = in.Dev.InFlight / lambdaEff * 1000
		} else {
			effectiveLatency = c.cfg.TargetLatencyMS
		}
	}

	critical := in.PSIIO > c.cfg.CriticalPSIThreshold || in.Dev.InFlight > c.cfg.QueueHighInFlight
	if critical {
		c.depth = float64(c.limits.MinNRRequests)
	} else {
		gradient := c.cfg.TargetLatencyMS / math.Max(effectiveLatency, 1e-6)
		next := c.depth
		switch {
		case gradient > 1.2:
			next = c.depth + 2
		case gradient < 0.8:
			next = c.depth * math.Sqrt(gradient)
		}
		next = mathutil.Clamp(next, float64(c.limits.MinNRRequests), float64(c.limits.MaxNRRequests))
		if c.shouldUpdateDepth(next) {
			c.depth = next
		}
	}

	readAhead := c.cfg.ReadAheadMinKB + c.cfg.ReadAheadRangeKB*c.sequentiality

	return Targets{
		ReadAheadKB:        clampU64(readAhead, float64(c.limits.MinReadAheadKB), float64(c.limits.MaxReadAheadKB)),
		NRRequests:         clampU64(c.depth, float64(c.limits.MinNRRequests), float64(c.limits.MaxNRRequests)),
		Sequentiality:      c.sequentiality,
		EffectiveLatencyMS: effectiveLatency,
		CriticalCongestion: critical,
	}
}

// shouldUpdateDepth implements spec §4.6's hysteresis: a change is only
// accepted when its relative error exceeds the configured threshold or
// the new value sits on a boundary.
func (c *Controller) shouldUpdateDepth(next float64) bool {
	if next == float64(c.limits.MinNRRequests) || next == float64(c.limits.MaxNRRequests) {
		return true
	}
	if c.depth == 0 {
		return true
	}
	relErr := math.Abs(next-c.depth) / c.depth
	return relErr > c.cfg.HysteresisRelativeThreshold
}

func clampU64(v, lo, hi float64) uint64 {
	v = mathutil.Clamp(v, lo, hi)
	if v < 0 {
		return 0
	}
	return uint64(v)
}
