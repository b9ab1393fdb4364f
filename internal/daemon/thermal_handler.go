package daemon

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/BYTE-6D65/tunedaemon/internal/registry"
	"github.com/BYTE-6D65/tunedaemon/internal/telemetry"
	"github.com/BYTE-6D65/tunedaemon/pkg/clock"
	thermalctl "github.com/BYTE-6D65/tunedaemon/pkg/controller/thermal"
	"github.com/BYTE-6D65/tunedaemon/pkg/event"
	"github.com/BYTE-6D65/tunedaemon/pkg/poller"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

// dampingPublishThreshold is the minimum change in the damping scalar
// between cycles that warrants a control event; otherwise every cycle
// (every few seconds) would publish, drowning out the signal (spec
// §4.7's damping changes gradually except at the hard battery limit).
const dampingPublishThreshold = 0.05

// thermalHandler drives the thermal regulator (spec §4.7). Unlike the
// other controllers it has no PSI file or knob file of its own: its
// input is the hottest of the three PSI scalars already published by
// its siblings, and its output is a damping scalar written back into
// GlobalPressure rather than any /proc or /sys path.
type thermalHandler struct {
	timer *timerFD
	clk   clock.Clock

	reg  *thermalctl.Regulator
	poll *poller.Adaptive

	pressure *registry.GlobalPressure
	diag     *registry.Diagnostics
	metrics  *telemetry.Metrics
	control  *event.InMemoryBus

	lastDamping float64
	hasDamping  bool
	lastTick    clock.MonoTime
	started     bool
}

func newThermalHandler(clk clock.Clock, cfg tunecfg.ThermalTunables, pressure *registry.GlobalPressure, diag *registry.Diagnostics, metrics *telemetry.Metrics, control *event.InMemoryBus) (*thermalHandler, error) {
	timer, err := newTimerFD()
	if err != nil {
		return nil, err
	}
	if err := timer.arm(poller.MinPollingMS); err != nil {
		timer.close()
		return nil, err
	}

	return &thermalHandler{
		timer:    timer,
		clk:      clk,
		reg:      thermalctl.New(cfg),
		poll:     poller.New(0.7, 0.3),
		pressure: pressure,
		diag:     diag,
		metrics:  metrics,
		control:  control,
	}, nil
}

func (h *thermalHandler) AsRawFD() int         { return h.timer.fd }
func (h *thermalHandler) GetPollFlags() uint32 { return unix.EPOLLIN }
func (h *thermalHandler) GetTimeoutMS() int64  { return -1 }
func (h *thermalHandler) OnTimeout() error     { return nil }

func (h *thermalHandler) OnEvent(events uint32) error {
	h.timer.drain()

	now := h.clk.Now()
	elapsed := time.Duration(poller.MinPollingMS) * time.Millisecond
	if h.started {
		elapsed = h.clk.Since(h.lastTick)
	}
	h.started = true
	h.lastTick = now

	timer := telemetry.NewTimer()

	snap := h.pressure.Snapshot()
	psiLoad := snap.CPU
	if snap.Memory > psiLoad {
		psiLoad = snap.Memory
	}
	if snap.IO > psiLoad {
		psiLoad = snap.IO
	}

	in := thermalctl.Inputs{
		CPUTempC: readCPUTempC(),
		BatTempC: readBatTempC(),
		PSILoad:  psiLoad,
	}
	dt := elapsed.Seconds()
	damping := h.reg.Damping(in, dt)

	h.pressure.SetThermalDamping(damping)
	h.diag.Publish("thermal", damping)
	h.publishDampingChange(damping, in)
	h.metrics.ControllerCycles.WithLabelValues("thermal").Inc()
	timer.ObserveWithLabels(h.metrics.ControllerDuration, map[string]string{"controller": "thermal"})

	next := h.poll.Next(psiLoad, elapsed)
	h.metrics.PollIntervalMS.WithLabelValues("thermal").Set(next)
	return h.timer.arm(next)
}

func (h *thermalHandler) publishDampingChange(damping float64, in thermalctl.Inputs) {
	delta := damping - h.lastDamping
	if delta < 0 {
		delta = -delta
	}
	if h.hasDamping && delta < dampingPublishThreshold {
		return
	}
	h.lastDamping, h.hasDamping = damping, true

	reason := "thermal headroom adjustment"
	if damping <= 0.2 {
		reason = "battery hard limit reached"
	}
	cmd := event.ThermalDampingCommand{
		Damping:   damping,
		CPUTempC:  in.CPUTempC,
		BatTempC:  in.BatTempC,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	evt := event.NewControlEvent(event.EventTypeThermalThrottle, cmd)
	_ = h.control.Publish(context.Background(), *evt)
}

func (h *thermalHandler) close() {
	h.timer.close()
}
