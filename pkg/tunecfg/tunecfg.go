// Package tunecfg holds the immutable configuration structs chosen at
// startup from the device tier (spec §3: "CpuMathConfig /
// MemoryMathConfig / StorageMathConfig / ThermalTunables / KernelLimits
// ... chosen at startup from a device tier"). Nothing in this package is
// mutated after construction.
package tunecfg

import "github.com/BYTE-6D65/tunedaemon/internal/tier"

// KernelLimits bounds every value a controller may hand to a
// pkg/knob.CachedWriter (spec §4.5 invariant: "every target value is
// clamped to declared kernel_limits before being handed to the
// cached-writer").
type KernelLimits struct {
	MinLatencyNS, MaxLatencyNS           uint64
	MinGranularityNS, MaxGranularityNS   uint64
	MinSwappiness, MaxSwappiness         uint64
	MinVFSCachePressure, MaxVFSCachePressure uint64
	MinReadAheadKB, MaxReadAheadKB       uint64
	MinNRRequests, MaxNRRequests         uint64
}

// CpuMathConfig parameterises the CPU controller's scheduler-latency
// mapping (spec §4.4). Tier-parameterised, 32-bit floats in the source;
// kept as float64 here since Go has no idiomatic reason to narrow.
type CpuMathConfig struct {
	MinLatencyNS, MaxLatencyNS         float64
	LatencyGranRatio                   float64
	GranMinNS                          float64
	WakeupGranMinNS, WakeupGranMaxNS   float64
	WakeupDecayCoeff                   float64
	MigrationCostBaseNS, MigrationCostMaxNS float64
	UclampMinFloor, UclampMinCeiling   float64
	SurgeThreshold, SurgeGain         float64
	RateThreshold, DistanceThreshold  float64
}

// MemoryMathConfig parameterises the memory controller's swappiness/VFS
// pressure/dirty-ratio mappings (spec §4.5).
type MemoryMathConfig struct {
	SwappinessMin, SwappinessMax float64
	SwappinessBase               float64
	Kp, Kd, CInefficiency        float64
	CongestionThreshold, CongestionExponent float64
	WorkingSetProtectionK        float64
	VFSPressureMin, VFSPressureRange, VFSPressureK float64
	DirtyRatioMin, DirtyRatioMax float64
	DirtyBackgroundRatioMin, DirtyBackgroundRatioMax float64
	WatermarkScaleMin, WatermarkScaleMax float64
	HighPressureAvg60Threshold   float64
	SmoothingSlow, SmoothingFast float64
}

// StorageMathConfig parameterises the storage controller's queue-depth
// and read-ahead mappings (spec §4.6).
type StorageMathConfig struct {
	ReadAheadMinKB, ReadAheadRangeKB float64
	NRRequestsMin, NRRequestsMax    float64
	TargetLatencyMS                 float64
	CriticalPSIThreshold            float64
	QueueHighInFlight                float64
	HysteresisRelativeThreshold      float64
}

// ThermalTunables parameterises the thermal regulator's PID and leaky
// bucket (spec §4.7).
type ThermalTunables struct {
	Kp, Ki, Kd           float64
	TargetHeadroom       float64
	SafetyScaling        float64
	HardLimitCPU         float64
	HardLimitBat         float64
	PSIStrength          float64
	PSIThreshold         float64
	LeakageStartTemp     float64
	LeakageK             float64
	BucketFillRate       float64
	BucketLeakBase       float64
}

// Profile bundles every math config selected for one device tier.
type Profile struct {
	Tier    tier.Tier
	CPU     CpuMathConfig
	Memory  MemoryMathConfig
	Storage StorageMathConfig
	Thermal ThermalTunables
	Limits  KernelLimits
}

// ForTier returns the immutable profile for the given tier. Flagship
// devices get tighter latency targets and wider queue depths; LowEnd
// devices get looser (more power-conscious) targets throughout.
func ForTier(t tier.Tier) Profile {
	switch t {
	case tier.Flagship:
		return flagshipProfile
	case tier.MidRange:
		return midRangeProfile
	default:
		return lowEndProfile
	}
}

var flagshipProfile = Profile{
	Tier: tier.Flagship,
	CPU: CpuMathConfig{
		MinLatencyNS: 500_000, MaxLatencyNS: 24_000_000,
		LatencyGranRatio: 0.25, GranMinNS: 500_000,
		WakeupGranMinNS: 500_000, WakeupGranMaxNS: 4_000_000, WakeupDecayCoeff: 0.05,
		MigrationCostBaseNS: 250_000, MigrationCostMaxNS: 5_000_000,
		UclampMinFloor: 0, UclampMinCeiling: 200,
		SurgeThreshold: 8, SurgeGain: 0.4,
		RateThreshold: 4, DistanceThreshold: 10,
	},
	Memory: MemoryMathConfig{
		SwappinessMin: 10, SwappinessMax: 100, SwappinessBase: 60,
		Kp: 0.8, Kd: 0.3, CInefficiency: 20,
		CongestionThreshold: 0.3, CongestionExponent: 2,
		WorkingSetProtectionK: 0.5,
		VFSPressureMin: 50, VFSPressureRange: 150, VFSPressureK: 0.03,
		DirtyRatioMin: 10, DirtyRatioMax: 40,
		DirtyBackgroundRatioMin: 5, DirtyBackgroundRatioMax: 20,
		WatermarkScaleMin: 10, WatermarkScaleMax: 200,
		HighPressureAvg60Threshold: 40,
		SmoothingSlow: 0.3, SmoothingFast: 0.1,
	},
	Storage: StorageMathConfig{
		ReadAheadMinKB: 128, ReadAheadRangeKB: 1920,
		NRRequestsMin: 64, NRRequestsMax: 1024,
		TargetLatencyMS: 5, CriticalPSIThreshold: 60,
		QueueHighInFlight: 128, HysteresisRelativeThreshold: 0.1,
	},
	Thermal: ThermalTunables{
		Kp: 0.05, Ki: 0.002, Kd: 0.01,
		TargetHeadroom: 10, SafetyScaling: 1.0,
		HardLimitCPU: 95, HardLimitBat: 45,
		PSIStrength: 0.1, PSIThreshold: 50,
		LeakageStartTemp: 70, LeakageK: 0.05,
		BucketFillRate: 5, BucketLeakBase: 0.2,
	},
	Limits: KernelLimits{
		MinLatencyNS: 500_000, MaxLatencyNS: 24_000_000,
		MinGranularityNS: 500_000, MaxGranularityNS: 8_000_000,
		MinSwappiness: 1, MaxSwappiness: 100,
		MinVFSCachePressure: 50, MaxVFSCachePressure: 200,
		MinReadAheadKB: 128, MaxReadAheadKB: 2048,
		MinNRRequests: 64, MaxNRRequests: 1024,
	},
}

var midRangeProfile = Profile{
	Tier: tier.MidRange,
	CPU: CpuMathConfig{
		MinLatencyNS: 1_000_000, MaxLatencyNS: 32_000_000,
		LatencyGranRatio: 0.3, GranMinNS: 750_000,
		WakeupGranMinNS: 750_000, WakeupGranMaxNS: 6_000_000, WakeupDecayCoeff: 0.06,
		MigrationCostBaseNS: 375_000, MigrationCostMaxNS: 6_500_000,
		UclampMinFloor: 0, UclampMinCeiling: 150,
		SurgeThreshold: 10, SurgeGain: 0.35,
		RateThreshold: 5, DistanceThreshold: 12,
	},
	Memory: MemoryMathConfig{
		SwappinessMin: 15, SwappinessMax: 90, SwappinessBase: 50,
		Kp: 0.7, Kd: 0.25, CInefficiency: 18,
		CongestionThreshold: 0.35, CongestionExponent: 2,
		WorkingSetProtectionK: 0.45,
		VFSPressureMin: 60, VFSPressureRange: 130, VFSPressureK: 0.028,
		DirtyRatioMin: 10, DirtyRatioMax: 35,
		DirtyBackgroundRatioMin: 5, DirtyBackgroundRatioMax: 18,
		WatermarkScaleMin: 10, WatermarkScaleMax: 150,
		HighPressureAvg60Threshold: 40,
		SmoothingSlow: 0.35, SmoothingFast: 0.12,
	},
	Storage: StorageMathConfig{
		ReadAheadMinKB: 96, ReadAheadRangeKB: 1408,
		NRRequestsMin: 32, NRRequestsMax: 512,
		TargetLatencyMS: 8, CriticalPSIThreshold: 55,
		QueueHighInFlight: 96, HysteresisRelativeThreshold: 0.12,
	},
	Thermal: ThermalTunables{
		Kp: 0.06, Ki: 0.0025, Kd: 0.012,
		TargetHeadroom: 8, SafetyScaling: 0.95,
		HardLimitCPU: 92, HardLimitBat: 45,
		PSIStrength: 0.12, PSIThreshold: 45,
		LeakageStartTemp: 65, LeakageK: 0.055,
		BucketFillRate: 5, BucketLeakBase: 0.22,
	},
	Limits: KernelLimits{
		MinLatencyNS: 1_000_000, MaxLatencyNS: 32_000_000,
		MinGranularityNS: 750_000, MaxGranularityNS: 10_000_000,
		MinSwappiness: 1, MaxSwappiness: 100,
		MinVFSCachePressure: 50, MaxVFSCachePressure: 200,
		MinReadAheadKB: 64, MaxReadAheadKB: 1536,
		MinNRRequests: 32, MaxNRRequests: 512,
	},
}

var lowEndProfile = Profile{
	Tier: tier.LowEnd,
	CPU: CpuMathConfig{
		MinLatencyNS: 2_000_000, MaxLatencyNS: 48_000_000,
		LatencyGranRatio: 0.35, GranMinNS: 1_000_000,
		WakeupGranMinNS: 1_000_000, WakeupGranMaxNS: 8_000_000, WakeupDecayCoeff: 0.08,
		MigrationCostBaseNS: 500_000, MigrationCostMaxNS: 8_000_000,
		UclampMinFloor: 0, UclampMinCeiling: 100,
		SurgeThreshold: 12, SurgeGain: 0.3,
		RateThreshold: 6, DistanceThreshold: 15,
	},
	Memory: MemoryMathConfig{
		SwappinessMin: 20, SwappinessMax: 80, SwappinessBase: 40,
		Kp: 0.6, Kd: 0.2, CInefficiency: 15,
		CongestionThreshold: 0.4, CongestionExponent: 2,
		WorkingSetProtectionK: 0.4,
		VFSPressureMin: 70, VFSPressureRange: 110, VFSPressureK: 0.025,
		DirtyRatioMin: 10, DirtyRatioMax: 30,
		DirtyBackgroundRatioMin: 5, DirtyBackgroundRatioMax: 15,
		WatermarkScaleMin: 10, WatermarkScaleMax: 125,
		HighPressureAvg60Threshold: 35,
		SmoothingSlow: 0.4, SmoothingFast: 0.15,
	},
	Storage: StorageMathConfig{
		ReadAheadMinKB: 64, ReadAheadRangeKB: 960,
		NRRequestsMin: 16, NRRequestsMax: 256,
		TargetLatencyMS: 12, CriticalPSIThreshold: 50,
		QueueHighInFlight: 64, HysteresisRelativeThreshold: 0.15,
	},
	Thermal: ThermalTunables{
		Kp: 0.07, Ki: 0.003, Kd: 0.015,
		TargetHeadroom: 6, SafetyScaling: 0.9,
		HardLimitCPU: 90, HardLimitBat: 45,
		PSIStrength: 0.15, PSIThreshold: 40,
		LeakageStartTemp: 60, LeakageK: 0.06,
		BucketFillRate: 5, BucketLeakBase: 0.25,
	},
	Limits: KernelLimits{
		MinLatencyNS: 2_000_000, MaxLatencyNS: 48_000_000,
		MinGranularityNS: 1_000_000, MaxGranularityNS: 12_000_000,
		MinSwappiness: 1, MaxSwappiness: 100,
		MinVFSCachePressure: 50, MaxVFSCachePressure: 200,
		MinReadAheadKB: 32, MaxReadAheadKB: 1024,
		MinNRRequests: 16, MaxNRRequests: 256,
	},
}
