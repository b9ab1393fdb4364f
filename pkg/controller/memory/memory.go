// Package memory implements the memory reclaim controller: it turns
// memory PSI, VM reclaim statistics, and thermal/IO context into
// swappiness, VFS cache pressure, dirty-ratio, and watermark targets
// (spec §4.5). Inputs.BatteryDepletionRate is accepted but does not
// enter any target.
package memory

import (
	"math"

	"github.com/BYTE-6D65/tunedaemon/pkg/mathutil"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

const epsilon = 1e-6

// VMStats is one cycle's raw VM reclaim counters (spec §4.5 "VM
// statistics delta"); callers pass pre-computed deltas between samples.
type VMStats struct {
	PgscanDelta          float64
	PgstealDelta         float64
	WorkingSetRefaultDelta float64
	ActiveLRU, InactiveLRU float64
}

// Inputs is everything the memory controller consumes in one cycle.
type Inputs struct {
	PMem, PMemFull float64 // memory PSI some current / full avg60
	VM             VMStats
	CPUTempC       float64
	IOSaturation   float64 // 0..1
	BatteryDepletionRate float64
}

// workloadState is the private smoothing state (spec §3 "WorkloadState"):
// a smoothed swappiness target, its derivative, and a first_run flag.
type workloadState struct {
	swappiness float64
	derivative float64
	prevPMem   float64
	firstRun   bool
}

func newWorkloadState() workloadState { return workloadState{firstRun: true} }

// Targets is one cycle's computed, limit-clamped knob values.
type Targets struct {
	Swappiness          uint64
	VFSCachePressure     uint64
	DirtyRatio           uint64
	DirtyBackgroundRatio uint64
	WatermarkScaleFactor uint64
	ReclaimEfficiency    float64
	RefaultIndex         float64
}

// Controller holds the memory controller's private state across cycles.
type Controller struct {
	cfg    tunecfg.MemoryMathConfig
	limits tunecfg.KernelLimits
	state  workloadState
}

// New returns a Controller parameterised by the device tier's profile.
func New(cfg tunecfg.MemoryMathConfig, limits tunecfg.KernelLimits) *Controller {
	return &Controller{cfg: cfg, limits: limits, state: newWorkloadState()}
}

// Cycle computes this cycle's targets from in, the elapsed seconds dt
// since the previous cycle, and residenceSeconds (mean page residence
// time, used by the congestion correction).
func (c *Controller) Cycle(in Inputs, dt, residenceSeconds, residenceCV float64) Targets {
	if dt <= 0 {
		dt = 1e-3
	}

	E := mathutil.Clamp(in.VM.PgstealDelta/(in.VM.PgscanDelta+epsilon), 0, 1)
	R := in.VM.WorkingSetRefaultDelta / (in.VM.PgscanDelta + in.VM.WorkingSetRefaultDelta + epsilon)

	congestion := congestionCorrection(residenceSeconds, residenceCV, c.cfg.CongestionThreshold, c.cfg.CongestionExponent)

	if c.state.firstRun {
		c.state.prevPMem = in.PMem
		c.state.firstRun = false
	}
	dp := (in.PMem - c.state.prevPMem) / dt
	c.state.prevPMem = in.PMem

	thermalFactor := math.Max((in.CPUTempC-50)/20, 0)
	ioFactor := 1 + in.IOSaturation*0.3

	raw := c.cfg.SwappinessBase + c.cfg.Kp*in.PMem + c.cfg.Kd*dp + c.cfg.CInefficiency*(1-E)
	raw *= congestion
	raw *= 1 + thermalFactor
	raw *= ioFactor
	wssProtection := 1 - math.Pow(R*c.cfg.WorkingSetProtectionK, 2)
	raw *= mathutil.Clamp(wssProtection, 0, 1)
	raw = mathutil.Clamp(raw, c.cfg.SwappinessMin, c.cfg.SwappinessMax)

	smoothing := c.cfg.SmoothingFast
	if in.PMemFull > c.cfg.HighPressureAvg60Threshold {
		smoothing = c.cfg.SmoothingSlow
	}

	if raw < c.state.swappiness {
		// asymmetric: accept a lower swappiness immediately.
		c.state.swappiness = raw
	} else {
		// smoothing is the weight kept on the previous value, so the
		// larger SmoothingSlow adapts more slowly.
		c.state.swappiness = mathutil.Lerp(raw, c.state.swappiness, smoothing)
	}
	c.state.derivative = dp

	vfsPressure := mathutil.ExpApproach(in.PMem, c.cfg.VFSPressureMin, c.cfg.VFSPressureRange, c.cfg.VFSPressureK)

	dirtyRatio := mathutil.Sigmoid(in.PMem, 50, -0.05, c.cfg.DirtyRatioMax-c.cfg.DirtyRatioMin) + c.cfg.DirtyRatioMin
	dirtyBackground := mathutil.Sigmoid(in.PMem, 50, -0.05, c.cfg.DirtyBackgroundRatioMax-c.cfg.DirtyBackgroundRatioMin) + c.cfg.DirtyBackgroundRatioMin
	watermarkScale := mathutil.ExpApproach(in.PMem, c.cfg.WatermarkScaleMin, c.cfg.WatermarkScaleMax-c.cfg.WatermarkScaleMin, 0.04)

	return Targets{
		Swappiness:           clampU64(c.state.swappiness, float64(c.limits.MinSwappiness), float64(c.limits.MaxSwappiness)),
		VFSCachePressure:     clampU64(vfsPressure, float64(c.limits.MinVFSCachePressure), float64(c.limits.MaxVFSCachePressure)),
		DirtyRatio:           clampU64(dirtyRatio, c.cfg.DirtyRatioMin, c.cfg.DirtyRatioMax),
		DirtyBackgroundRatio: clampU64(dirtyBackground, c.cfg.DirtyBackgroundRatioMin, c.cfg.DirtyBackgroundRatioMax),
		WatermarkScaleFactor: clampU64(watermarkScale, c.cfg.WatermarkScaleMin, c.cfg.WatermarkScaleMax),
		ReclaimEfficiency:    E,
		RefaultIndex:         R,
	}
}

// congestionCorrection implements spec §4.5's residence-time protection
// factor divided by a CV-amplified variability factor, clamped [0,1.5].
func congestionCorrection(residenceSeconds, residenceCV, threshold, exponent float64) float64 {
	if residenceSeconds <= 0 {
		residenceSeconds = epsilon
	}
	protection := 1 / (1 + math.Pow(threshold/residenceSeconds, exponent))
	variability := 1 + residenceCV
	return mathutil.Clamp(protection/variability, 0, 1.5)
}

func clampU64(v, lo, hi float64) uint64 {
	v = mathutil.Clamp(v, lo, hi)
	if v < 0 {
		return 0
	}
	return uint64(v)
}
