package daemon

import (
	"time"

	"golang.org/x/sys/unix"

	cpuctl "github.com/BYTE-6D65/tunedaemon/pkg/controller/cpu"
	"github.com/BYTE-6D65/tunedaemon/internal/registry"
	"github.com/BYTE-6D65/tunedaemon/internal/telemetry"
	"github.com/BYTE-6D65/tunedaemon/pkg/clock"
	"github.com/BYTE-6D65/tunedaemon/pkg/knob"
	"github.com/BYTE-6D65/tunedaemon/pkg/poller"
	"github.com/BYTE-6D65/tunedaemon/pkg/psi"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

// cpuKnobPaths are the scheduler sysctls the CPU controller drives (spec
// §4.4, §6: "scheduler (/proc/sys/kernel/sched_*)").
var cpuKnobPaths = struct {
	latency, granularity, wakeupGran, migrationCost, uclampMin string
}{
	latency:       "/proc/sys/kernel/sched_latency_ns",
	granularity:   "/proc/sys/kernel/sched_min_granularity_ns",
	wakeupGran:    "/proc/sys/kernel/sched_wakeup_granularity_ns",
	migrationCost: "/proc/sys/kernel/sched_migration_cost_ns",
	uclampMin:     "/proc/sys/kernel/sched_util_clamp_min",
}

// cpuHandler drives one CPU regulation cycle per timerfd expiration: read
// CPU PSI, run the controller, write the resulting scheduler knobs, and
// rearm the timer at the adaptive poller's freshly computed interval.
type cpuHandler struct {
	timer *timerFD
	clk   clock.Clock

	mon  *psi.Monitor
	ctl  *cpuctl.Controller
	poll *poller.Adaptive

	latencyW, granW, wakeupW, migrationW, uclampW *knob.CachedWriter

	pressure *registry.GlobalPressure
	diag     *registry.Diagnostics
	metrics  *telemetry.Metrics

	lastTick clock.MonoTime
	started  bool
}

func newCPUHandler(clk clock.Clock, cfg tunecfg.CpuMathConfig, limits tunecfg.KernelLimits, pressure *registry.GlobalPressure, diag *registry.Diagnostics, metrics *telemetry.Metrics) (*cpuHandler, error) {
	mon, err := psi.NewMonitor(psi.CPU)
	if err != nil {
		return nil, err
	}

	latencyW, err := knob.Open(cpuKnobPaths.latency)
	if err != nil {
		mon.Close()
		return nil, err
	}
	granW, err := knob.Open(cpuKnobPaths.granularity)
	if err != nil {
		mon.Close()
		latencyW.Close()
		return nil, err
	}
	wakeupW, err := knob.Open(cpuKnobPaths.wakeupGran)
	if err != nil {
		mon.Close()
		latencyW.Close()
		granW.Close()
		return nil, err
	}
	migrationW, err := knob.Open(cpuKnobPaths.migrationCost)
	if err != nil {
		mon.Close()
		latencyW.Close()
		granW.Close()
		wakeupW.Close()
		return nil, err
	}
	uclampW, err := knob.Open(cpuKnobPaths.uclampMin)
	if err != nil {
		mon.Close()
		latencyW.Close()
		granW.Close()
		wakeupW.Close()
		migrationW.Close()
		return nil, err
	}

	timer, err := newTimerFD()
	if err != nil {
		mon.Close()
		latencyW.Close()
		granW.Close()
		wakeupW.Close()
		migrationW.Close()
		uclampW.Close()
		return nil, err
	}
	if err := timer.arm(poller.MinPollingMS); err != nil {
		return nil, err
	}

	return &cpuHandler{
		timer:      timer,
		clk:        clk,
		mon:        mon,
		ctl:        cpuctl.New(cfg, limits),
		poll:       poller.New(0.7, 0.3),
		latencyW:   latencyW,
		granW:      granW,
		wakeupW:    wakeupW,
		migrationW: migrationW,
		uclampW:    uclampW,
		pressure:   pressure,
		diag:       diag,
		metrics:    metrics,
	}, nil
}

func (h *cpuHandler) AsRawFD() int         { return h.timer.fd }
func (h *cpuHandler) GetPollFlags() uint32 { return unix.EPOLLIN }
func (h *cpuHandler) GetTimeoutMS() int64  { return -1 }
func (h *cpuHandler) OnTimeout() error      { return nil }

func (h *cpuHandler) OnEvent(events uint32) error {
	h.timer.drain()

	now := h.clk.Now()
	elapsed := time.Duration(poller.MinPollingMS) * time.Millisecond
	if h.started {
		elapsed = h.clk.Since(h.lastTick)
	}
	h.started = true
	h.lastTick = now

	timer := telemetry.NewTimer()
	data, err := h.mon.Read(uint64(elapsed.Microseconds()))
	if err != nil {
		return err
	}

	pEff := data.Some.Current
	if data.Some.Avg10 > pEff {
		pEff = data.Some.Avg10
	}
	h.pressure.SetCPU(pEff)
	h.metrics.PSICurrent.WithLabelValues("cpu", "some").Set(data.Some.Current)
	h.metrics.PSIAvg10.WithLabelValues("cpu", "some").Set(data.Some.Avg10)

	thermalScale := h.pressure.ThermalDamping()
	dt := elapsed.Seconds()
	targets := h.ctl.Cycle(pEff, dt, thermalScale, false)

	h.writeKnob(h.latencyW, targets.LatencyNS, "sched_latency_ns")
	h.writeKnob(h.granW, targets.GranularityNS, "sched_min_granularity_ns")
	h.writeKnob(h.wakeupW, targets.WakeupGranNS, "sched_wakeup_granularity_ns")
	h.writeKnob(h.migrationW, targets.MigrationCostNS, "sched_migration_cost_ns")
	h.writeKnob(h.uclampW, targets.UclampMin, "sched_util_clamp_min")

	h.diag.Publish("cpu", targets)
	h.metrics.ControllerCycles.WithLabelValues("cpu").Inc()
	timer.ObserveWithLabels(h.metrics.ControllerDuration, map[string]string{"controller": "cpu"})

	next := h.poll.Next(pEff, elapsed)
	h.metrics.PollIntervalMS.WithLabelValues("cpu").Set(next)
	return h.timer.arm(next)
}

func (h *cpuHandler) writeKnob(w *knob.CachedWriter, value uint64, name string) {
	wrote, err := w.Update(value, false, knob.Relative{Pct: 0.05})
	if err != nil {
		// Write failures are swallowed here; the next cycle retries
		// with a fresh target (spec §4.8, §7).
		return
	}
	if wrote {
		h.metrics.KnobWrites.WithLabelValues(name).Inc()
	} else {
		h.metrics.KnobSuppressed.WithLabelValues(name).Inc()
	}
}

func (h *cpuHandler) close() {
	h.timer.close()
	h.mon.Close()
	h.latencyW.Close()
	h.granW.Close()
	h.wakeupW.Close()
	h.migrationW.Close()
	h.uclampW.Close()
}
