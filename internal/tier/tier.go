// Package tier classifies the host device into a static performance
// class used to select CpuMathConfig/MemoryMathConfig/StorageMathConfig
// constants at startup (spec §3, §9 "Device tier"). The heuristic that
// inspects real hardware paths is an external collaborator per spec §1;
// this package owns only the Tier type and the selection/override logic
// around it.
package tier

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// Tier is the static device classification from spec's GLOSSARY.
type Tier int

const (
	// LowEnd is the default, most conservative tier.
	LowEnd Tier = iota
	MidRange
	Flagship
)

func (t Tier) String() string {
	switch t {
	case Flagship:
		return "flagship"
	case MidRange:
		return "mid_range"
	default:
		return "low_end"
	}
}

// FromEnv parses a tier override from a config string ("flagship",
// "mid_range"/"midrange", "low_end"/"lowend", case-insensitive). Returns
// false if s does not name a known tier.
func FromEnv(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flagship":
		return Flagship, true
	case "mid_range", "midrange", "mid":
		return MidRange, true
	case "low_end", "lowend", "low":
		return LowEnd, true
	default:
		return LowEnd, false
	}
}

// Thresholds used by Detect's hardware-probing heuristic. These numbers
// are illustrative defaults for the out-of-scope probe (spec §1); a real
// deployment is expected to override via FromEnv instead.
const (
	flagshipMinFreqKHz = 2_800_000
	flagshipMinRAMKB   = 8 << 20 // 8 GiB
	midRangeMinFreqKHz = 1_800_000
	midRangeMinRAMKB   = 4 << 20 // 4 GiB
)

// Detect probes /sys and /proc for CPU max frequency and total RAM and
// classifies the host accordingly. This is the thin, swappable hardware
// probe named in spec §1 as an external collaborator; callers that want
// deterministic behaviour (tests, containers without the expected sysfs
// layout) should prefer FromEnv.
func Detect() Tier {
	freq, okFreq := readCPUMaxFreqKHz()
	ram, okRAM := readTotalRAMKB()
	if !okFreq || !okRAM {
		return LowEnd
	}
	if freq >= flagshipMinFreqKHz && ram >= flagshipMinRAMKB {
		return Flagship
	}
	if freq >= midRangeMinFreqKHz && ram >= midRangeMinRAMKB {
		return MidRange
	}
	return LowEnd
}

func readCPUMaxFreqKHz() (int64, bool) {
	b, err := os.ReadFile("/sys/devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq")
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func readTotalRAMKB() (int64, bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
