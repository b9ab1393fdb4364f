// Package config holds the daemon's startup configuration: the knobs
// that are not part of the regulation math itself (device tier
// override, per-controller enable flags, adaptive-poller weights, and
// the pressure file paths). It follows the teacher's hand-rolled
// env-var loading style rather than introducing a config library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BYTE-6D65/tunedaemon/internal/tier"
)

// Config is the daemon's full startup configuration.
type Config struct {
	// TierOverride, if set via FromEnv, bypasses hardware detection
	// (internal/tier.Detect) entirely.
	TierOverride string `env:"TUNED_TIER" default:""`

	EnableCPU     bool `env:"TUNED_ENABLE_CPU" default:"true"`
	EnableMemory  bool `env:"TUNED_ENABLE_MEMORY" default:"true"`
	EnableStorage bool `env:"TUNED_ENABLE_STORAGE" default:"true"`
	EnableTweaks  bool `env:"TUNED_ENABLE_TWEAKS" default:"false"`

	PollWeightPressure   float64 `env:"TUNED_POLL_WEIGHT_PRESSURE" default:"0.7"`
	PollWeightDerivative float64 `env:"TUNED_POLL_WEIGHT_DERIVATIVE" default:"0.3"`

	CooldownDuration time.Duration `env:"TUNED_COOLDOWN" default:"5s"`
	EpollCeiling     time.Duration `env:"TUNED_EPOLL_CEILING" default:"10s"`

	MetricsAddr string `env:"TUNED_METRICS_ADDR" default:":9477"`

	LogLevel string `env:"TUNED_LOG_LEVEL" default:"info"`

	// BlockDevice names the device under /sys/block whose queue knobs
	// and /stat counters the storage controller drives (spec §4.6).
	BlockDevice string `env:"TUNED_BLOCK_DEVICE" default:"sda"`
}

// DefaultConfig returns a Config with every field at its documented
// default, as if every environment variable above were unset.
func DefaultConfig() Config {
	return Config{
		EnableCPU:            true,
		EnableMemory:         true,
		EnableStorage:        true,
		EnableTweaks:         false,
		PollWeightPressure:   0.7,
		PollWeightDerivative: 0.3,
		CooldownDuration:     5 * time.Second,
		EpollCeiling:         10 * time.Second,
		MetricsAddr:          ":9477",
		LogLevel:             "info",
		BlockDevice:          "sda",
	}
}

// LoadFromEnv returns DefaultConfig with every recognised TUNED_*
// environment variable applied on top.
func LoadFromEnv() (Config, error) {
	c := DefaultConfig()

	if v, ok := os.LookupEnv("TUNED_TIER"); ok {
		c.TierOverride = v
	}
	if v, ok := os.LookupEnv("TUNED_ENABLE_CPU"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("TUNED_ENABLE_CPU: %w", err)
		}
		c.EnableCPU = b
	}
	if v, ok := os.LookupEnv("TUNED_ENABLE_MEMORY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("TUNED_ENABLE_MEMORY: %w", err)
		}
		c.EnableMemory = b
	}
	if v, ok := os.LookupEnv("TUNED_ENABLE_STORAGE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("TUNED_ENABLE_STORAGE: %w", err)
		}
		c.EnableStorage = b
	}
	if v, ok := os.LookupEnv("TUNED_ENABLE_TWEAKS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("TUNED_ENABLE_TWEAKS: %w", err)
		}
		c.EnableTweaks = b
	}
	if v, ok := os.LookupEnv("TUNED_POLL_WEIGHT_PRESSURE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("TUNED_POLL_WEIGHT_PRESSURE: %w", err)
		}
		c.PollWeightPressure = f
	}
	if v, ok := os.LookupEnv("TUNED_POLL_WEIGHT_DERIVATIVE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("TUNED_POLL_WEIGHT_DERIVATIVE: %w", err)
		}
		c.PollWeightDerivative = f
	}
	if v, ok := os.LookupEnv("TUNED_COOLDOWN"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("TUNED_COOLDOWN: %w", err)
		}
		c.CooldownDuration = d
	}
	if v, ok := os.LookupEnv("TUNED_EPOLL_CEILING"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("TUNED_EPOLL_CEILING: %w", err)
		}
		c.EpollCeiling = d
	}
	if v, ok := os.LookupEnv("TUNED_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := os.LookupEnv("TUNED_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("TUNED_BLOCK_DEVICE"); ok {
		c.BlockDevice = v
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects nonsensical configuration before the daemon starts.
func (c Config) Validate() error {
	if c.PollWeightPressure < 0 || c.PollWeightDerivative < 0 {
		return fmt.Errorf("poll weights must be non-negative: pressure=%v derivative=%v", c.PollWeightPressure, c.PollWeightDerivative)
	}
	if c.CooldownDuration <= 0 {
		return fmt.Errorf("cooldown duration must be positive, got %v", c.CooldownDuration)
	}
	if c.EpollCeiling <= 0 {
		return fmt.Errorf("epoll ceiling must be positive, got %v", c.EpollCeiling)
	}
	if c.TierOverride != "" {
		if _, ok := tier.FromEnv(c.TierOverride); !ok {
			return fmt.Errorf("unrecognised TUNED_TIER %q", c.TierOverride)
		}
	}
	return nil
}

// ResolveTier returns the configured tier override, falling back to
// hardware detection when none was set.
func (c Config) ResolveTier() tier.Tier {
	if c.TierOverride != "" {
		if t, ok := tier.FromEnv(c.TierOverride); ok {
			return t
		}
	}
	return tier.Detect()
}

// String renders a human-readable summary, used by the CLI's startup log
// line.
func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tier_override=%q enable_cpu=%v enable_memory=%v enable_storage=%v enable_tweaks=%v ",
		c.TierOverride, c.EnableCPU, c.EnableMemory, c.EnableStorage, c.EnableTweaks)
	fmt.Fprintf(&b, "poll_weights=(%v,%v) cooldown=%v epoll_ceiling=%v metrics_addr=%s log_level=%s block_device=%s",
		c.PollWeightPressure, c.PollWeightDerivative, c.CooldownDuration, c.EpollCeiling, c.MetricsAddr, c.LogLevel, c.BlockDevice)
	return b.String()
}
