// Package psi reads and parses Linux Pressure Stall Information from
// /proc/pressure/{cpu,memory,io} and derives an instantaneous pressure
// rate from the kernel's monotonic `total` counter (spec §3, §4.1).
package psi

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BYTE-6D65/tunedaemon/internal/tuneerr"
	"github.com/BYTE-6D65/tunedaemon/pkg/mathutil"
)

// Resource names a pressure file under /proc/pressure.
type Resource string

const (
	CPU    Resource = "cpu"
	Memory Resource = "memory"
	IO     Resource = "io"
)

// Path returns the /proc/pressure path for the resource.
func (r Resource) Path() string {
	return "/proc/pressure/" + string(r)
}

const readBufSize = 512

// Trend is one reading of one PSI line (`some` or `full`). Current is
// only meaningful after the second successful read; the first read seeds
// Current from Avg10 (spec §3).
type Trend struct {
	Avg10, Avg60, Avg300 float64
	Total                uint64
	Current              float64
}

// Data pairs the `some` (any task stalled) and `full` (all non-idle
// tasks stalled) trends from one read of one pressure file (spec §3).
type Data struct {
	Some Trend
	Full Trend
}

const minDeltaMicros = 1000 // 1ms floor on Δt, spec §4.1

// Monitor re-reads one pressure file from offset 0 each cycle and derives
// the `current` rate from the previous read's `total` counters. Not
// safe for concurrent use by multiple goroutines; each controller owns
// its own Monitor per spec §5 ("every open file descriptor is owned by
// one controller").
type Monitor struct {
	resource Resource
	path     string

	f *os.File

	firstRead bool
	prevSome  uint64
	prevFull  uint64
}

// NewMonitor opens the pressure file for resource. The file is kept open
// for the lifetime of the Monitor and re-read from offset 0 on each call
// to Read.
func NewMonitor(resource Resource) (*Monitor, error) {
	path := resource.Path()
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyOpenErr(resource, err)
	}
	return &Monitor{resource: resource, path: path, f: f, firstRead: true}, nil
}

// Close releases the underlying file descriptor.
func (m *Monitor) Close() error {
	return m.f.Close()
}

// Read parses one snapshot of the pressure file. elapsedMicros is the
// wall-clock time since the previous successful Read, used to derive
// Current; pass 0 on the very first call.
func (m *Monitor) Read(elapsedMicros uint64) (Data, error) {
	buf := make([]byte, readBufSize)
	n, err := m.f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return Data{}, tuneerr.Wrap(tuneerr.IO, string(m.resource), err)
	}
	content := buf[:n]
	if len(content) == 0 {
		return Data{}, tuneerr.New(tuneerr.PsiParseError, string(m.resource), "empty pressure file")
	}
	if !utf8.Valid(content) {
		return Data{}, tuneerr.New(tuneerr.PsiParseError, string(m.resource), "pressure file is not valid UTF-8")
	}

	some, full, err := parseLines(content)
	if err != nil {
		return Data{}, tuneerr.Wrap(tuneerr.PsiParseError, string(m.resource), err)
	}

	dt := elapsedMicros
	if dt < minDeltaMicros {
		dt = minDeltaMicros
	}

	if m.firstRead {
		some.Current = some.Avg10
		full.Current = full.Avg10
		m.firstRead = false
	} else {
		some.Current = currentRate(some.Total, m.prevSome, dt)
		full.Current = currentRate(full.Total, m.prevFull, dt)
	}
	m.prevSome = some.Total
	m.prevFull = full.Total

	return Data{Some: some, Full: full}, nil
}

// currentRate derives (Δtotal/Δt_µs)×100 clamped to [0,100].
func currentRate(total, prev, dtMicros uint64) float64 {
	if total < prev {
		// counter reset or wrap; treat as no movement rather than
		// underflowing.
		return 0
	}
	delta := total - prev
	rate := (float64(delta) / float64(dtMicros)) * 100
	return mathutil.Clamp(rate, 0, 100)
}

func parseLines(content []byte) (some, full Trend, err error) {
	var sawSome, sawFull bool
	for _, line := range strings.Split(string(bytes.TrimRight(content, "\x00")), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "some "):
			some, err = parsePSILine(strings.TrimPrefix(line, "some "))
			if err != nil {
				return Trend{}, Trend{}, err
			}
			sawSome = true
		case strings.HasPrefix(line, "full "):
			full, err = parsePSILine(strings.TrimPrefix(line, "full "))
			if err != nil {
				return Trend{}, Trend{}, err
			}
			sawFull = true
		}
	}
	if !sawSome {
		return Trend{}, Trend{}, fmt.Errorf("missing 'some' line")
	}
	if !sawFull {
		// io/cpu.pressure on some kernels only ever reports `some`
		// historically (cpu has no `full` line pre-5.13); treat a
		// missing `full` line as zero pressure rather than an error.
		full = Trend{}
	}
	return some, full, nil
}

func parsePSILine(rest string) (Trend, error) {
	var t Trend
	for _, tok := range strings.Fields(rest) {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]
		switch key {
		case "avg10":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return Trend{}, fmt.Errorf("parsing avg10: %w", err)
			}
			t.Avg10 = f
		case "avg60":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return Trend{}, fmt.Errorf("parsing avg60: %w", err)
			}
			t.Avg60 = f
		case "avg300":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return Trend{}, fmt.Errorf("parsing avg300: %w", err)
			}
			t.Avg300 = f
		case "total":
			u, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return Trend{}, fmt.Errorf("parsing total: %w", err)
			}
			t.Total = u
		}
	}
	return t, nil
}

func classifyOpenErr(resource Resource, err error) error {
	if os.IsNotExist(err) {
		return tuneerr.Wrap(tuneerr.InvalidPath, string(resource), err)
	}
	if os.IsPermission(err) {
		return tuneerr.Wrap(tuneerr.PermissionDenied, string(resource), err)
	}
	return tuneerr.Wrap(tuneerr.IO, string(resource), err)
}
