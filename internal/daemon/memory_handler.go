package daemon

import (
	"context"
	"math"
	"time"

	"golang.org/x/sys/unix"

	"github.com/BYTE-6D65/tunedaemon/internal/registry"
	"github.com/BYTE-6D65/tunedaemon/internal/telemetry"
	memctl "github.com/BYTE-6D65/tunedaemon/pkg/controller/memory"
	"github.com/BYTE-6D65/tunedaemon/pkg/clock"
	"github.com/BYTE-6D65/tunedaemon/pkg/event"
	"github.com/BYTE-6D65/tunedaemon/pkg/knob"
	"github.com/BYTE-6D65/tunedaemon/pkg/poller"
	"github.com/BYTE-6D65/tunedaemon/pkg/psi"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

// memoryKnobPaths are the VM sysctls the memory controller drives (spec
// §4.5, §6: "VM (/proc/sys/vm/{swappiness,vfs_cache_pressure,dirty_*,
// watermark_scale_factor,...})").
var memoryKnobPaths = struct {
	swappiness, vfsCachePressure, dirtyRatio, dirtyBackgroundRatio, watermarkScaleFactor string
}{
	swappiness:           "/proc/sys/vm/swappiness",
	vfsCachePressure:     "/proc/sys/vm/vfs_cache_pressure",
	dirtyRatio:           "/proc/sys/vm/dirty_ratio",
	dirtyBackgroundRatio: "/proc/sys/vm/dirty_background_ratio",
	watermarkScaleFactor: "/proc/sys/vm/watermark_scale_factor",
}

type memoryHandler struct {
	timer *timerFD
	clk   clock.Clock

	mon    *psi.Monitor
	vmstat *vmstatReader
	ctl    *memctl.Controller
	poll   *poller.Adaptive

	swappinessW, vfsPressureW, dirtyRatioW, dirtyBgRatioW, watermarkW *knob.CachedWriter

	pressure *registry.GlobalPressure
	diag     *registry.Diagnostics
	metrics  *telemetry.Metrics
	control  *event.InMemoryBus

	residence     residenceEstimator
	lastSwappiness uint64
	hasSwappiness  bool
	lastTick  clock.MonoTime
	started   bool
}

// residenceEstimator approximates mean page residence time via Little's
// law (resident pages / eviction rate) and tracks its coefficient of
// variation with an exponential moving average, feeding the memory
// controller's congestion correction (spec §4.5).
type residenceEstimator struct {
	meanSeconds, varSeconds float64
	initialised             bool
}

const residenceSmoothing = 0.2

func (r *residenceEstimator) observe(residentPages, pgstealDelta, dt float64) (meanSeconds, cv float64) {
	evictionRate := pgstealDelta / dt
	sample := residentPages / 100 // pgsteal is reported per-100-pages in /proc/vmstat batches on most kernels
	if evictionRate > 0 {
		sample = residentPages / evictionRate
	}

	if !r.initialised {
		r.meanSeconds = sample
		r.varSeconds = 0
		r.initialised = true
	} else {
		delta := sample - r.meanSeconds
		r.meanSeconds += residenceSmoothing * delta
		r.varSeconds = (1-residenceSmoothing)*(r.varSeconds+residenceSmoothing*delta*delta)
	}

	if r.meanSeconds <= 0 {
		return r.meanSeconds, 0
	}
	return r.meanSeconds, math.Sqrt(r.varSeconds) / r.meanSeconds
}

func newMemoryHandler(clk clock.Clock, cfg tunecfg.MemoryMathConfig, limits tunecfg.KernelLimits, pressure *registry.GlobalPressure, diag *registry.Diagnostics, metrics *telemetry.Metrics, control *event.InMemoryBus) (*memoryHandler, error) {
	mon, err := psi.NewMonitor(psi.Memory)
	if err != nil {
		return nil, err
	}

	writers := make([]*knob.CachedWriter, 0, 5)
	open := func(path string) (*knob.CachedWriter, error) {
		w, err := knob.Open(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
		return w, nil
	}
	closeAll := func() {
		mon.Close()
		for _, w := range writers {
			w.Close()
		}
	}

	swappinessW, err := open(memoryKnobPaths.swappiness)
	if err != nil {
		closeAll()
		return nil, err
	}
	vfsPressureW, err := open(memoryKnobPaths.vfsCachePressure)
	if err != nil {
		closeAll()
		return nil, err
	}
	dirtyRatioW, err := open(memoryKnobPaths.dirtyRatio)
	if err != nil {
		closeAll()
		return nil, err
	}
	dirtyBgRatioW, err := open(memoryKnobPaths.dirtyBackgroundRatio)
	if err != nil {
		closeAll()
		return nil, err
	}
	watermarkW, err := open(memoryKnobPaths.watermarkScaleFactor)
	if err != nil {
		closeAll()
		return nil, err
	}

	timer, err := newTimerFD()
	if err != nil {
		closeAll()
		return nil, err
	}
	if err := timer.arm(poller.MinPollingMS); err != nil {
		return nil, err
	}

	return &memoryHandler{
		timer:          timer,
		clk:            clk,
		mon:            mon,
		vmstat:         newVMStatReader(),
		ctl:            memctl.New(cfg, limits),
		poll:           poller.New(0.7, 0.3),
		swappinessW:    swappinessW,
		vfsPressureW:   vfsPressureW,
		dirtyRatioW:    dirtyRatioW,
		dirtyBgRatioW:  dirtyBgRatioW,
		watermarkW:     watermarkW,
		pressure:      pressure,
		diag:          diag,
		metrics:       metrics,
		control:       control,
	}, nil
}

func (h *memoryHandler) AsRawFD() int         { return h.timer.fd }
func (h *memoryHandler) GetPollFlags() uint32 { return unix.EPOLLIN }
func (h *memoryHandler) GetTimeoutMS() int64  { return -1 }
func (h *memoryHandler) OnTimeout() error      { return nil }

func (h *memoryHandler) OnEvent(events uint32) error {
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
	vm, err := h.vmstat.read()
	if err != nil {
		return err
	}

	h.pressure.SetMemory(data.Some.Current)
	h.metrics.PSICurrent.WithLabelValues("memory", "some").Set(data.Some.Current)
	h.metrics.PSIAvg10.WithLabelValues("memory", "some").Set(data.Some.Avg10)

	in := memctl.Inputs{
		PMem:     data.Some.Current,
		PMemFull: data.Full.Avg60,
		VM: memctl.VMStats{
			PgscanDelta:            float64(vm.pgscan),
			PgstealDelta:           float64(vm.pgsteal),
			WorkingSetRefaultDelta: float64(vm.refault),
			ActiveLRU:              vm.activeLRU,
			InactiveLRU:            vm.inactiveLRU,
		},
		CPUTempC:             readCPUTempC(),
		IOSaturation:         h.pressure.IOSaturation(),
		BatteryDepletionRate: readBatteryDepletionRate(),
	}

	residentPages := vm.activeLRU + vm.inactiveLRU
	dt := elapsed.Seconds()
	residenceSeconds, residenceCV := h.residence.observe(residentPages, float64(vm.pgsteal), dt)
	targets := h.ctl.Cycle(in, dt, residenceSeconds, residenceCV)

	h.writeSwappiness(targets.Swappiness, in.VM.WorkingSetRefaultDelta)
	h.writeKnobMemory(h.vfsPressureW, targets.VFSCachePressure, "vfs_cache_pressure", knob.Relative{Pct: 0.05})
	h.writeKnobMemory(h.dirtyRatioW, targets.DirtyRatio, "dirty_ratio", knob.Absolute{Delta: 1})
	h.writeKnobMemory(h.dirtyBgRatioW, targets.DirtyBackgroundRatio, "dirty_background_ratio", knob.Absolute{Delta: 1})
	h.writeKnobMemory(h.watermarkW, targets.WatermarkScaleFactor, "watermark_scale_factor", knob.Relative{Pct: 0.05})

	h.diag.Publish("memory", targets)
	h.metrics.ControllerCycles.WithLabelValues("memory").Inc()
	timer.ObserveWithLabels(h.metrics.ControllerDuration, map[string]string{"controller": "memory"})

	next := h.poll.Next(data.Some.Current, elapsed)
	h.metrics.PollIntervalMS.WithLabelValues("memory").Set(next)
	return h.timer.arm(next)
}

func (h *memoryHandler) writeSwappiness(value uint64, refaultDelta float64) {
	wrote, err := h.swappinessW.Update(value, false, knob.Absolute{Delta: 2})
	if err != nil {
		return
	}
	if !wrote {
		h.metrics.KnobSuppressed.WithLabelValues("swappiness").Inc()
		return
	}
	h.metrics.KnobWrites.WithLabelValues("swappiness").Inc()

	if h.hasSwappiness && h.lastSwappiness == value {
		return
	}
	h.lastSwappiness, h.hasSwappiness = value, true

	reason := "reclaim pressure decreased"
	if refaultDelta > 0 {
		reason = "workingset refault pressure"
	}
	cmd := event.SwapAdjustCommand{Swappiness: value, Reason: reason, Timestamp: time.Now()}
	evt := event.NewControlEvent(event.EventTypeSwapAdjust, cmd)
	_ = h.control.Publish(context.Background(), *evt)
}

func (h *memoryHandler) writeKnobMemory(w *knob.CachedWriter, value uint64, name string, strategy knob.Strategy) {
	wrote, err := w.Update(value, false, strategy)
	if err != nil {
		return
	}
	if wrote {
		h.metrics.KnobWrites.WithLabelValues(name).Inc()
	} else {
		h.metrics.KnobSuppressed.WithLabelValues(name).Inc()
	}
}

func (h *memoryHandler) close() {
	h.timer.close()
	h.mon.Close()
	h.swappinessW.Close()
	h.vfsPressureW.Close()
	h.dirtyRatioW.Close()
	h.dirtyBgRatioW.Close()
	h.watermarkW.Close()
}
