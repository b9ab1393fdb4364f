package daemon

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/BYTE-6D65/tunedaemon/internal/registry"
	"github.com/BYTE-6D65/tunedaemon/internal/telemetry"
	"github.com/BYTE-6D65/tunedaemon/pkg/clock"
	storagectl "github.com/BYTE-6D65/tunedaemon/pkg/controller/storage"
	"github.com/BYTE-6D65/tunedaemon/pkg/event"
	"github.com/BYTE-6D65/tunedaemon/pkg/knob"
	"github.com/BYTE-6D65/tunedaemon/pkg/mathutil"
	"github.com/BYTE-6D65/tunedaemon/pkg/poller"
	"github.com/BYTE-6D65/tunedaemon/pkg/psi"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"
)

// storageKnobPaths are the block queue tunables the storage controller
// drives (spec §4.6: "queue/{read_ahead_kb,nr_requests,iosched/fifo_batch}").
func storageKnobPaths(device string) (readAhead, nrRequests, fifoBatch string) {
	base := "/sys/block/" + device + "/queue/"
	return base + "read_ahead_kb", base + "nr_requests", base + "iosched/fifo_batch"
}

type storageHandler struct {
	timer *timerFD
	clk   clock.Clock

	mon     *psi.Monitor
	diskst  *diskstatReader
	ctl     *storagectl.Controller
	poll    *poller.Adaptive

	readAheadW, nrRequestsW, fifoBatchW *knob.CachedWriter

	// queueHigh is the in-flight count that maps to IO saturation 1.0.
	queueHigh float64

	pressure *registry.GlobalPressure
	diag     *registry.Diagnostics
	metrics  *telemetry.Metrics
	control  *event.InMemoryBus

	lastNRRequests uint64
	hasNRRequests  bool
	lastTick       clock.MonoTime
	started        bool
}

func newStorageHandler(clk clock.Clock, device string, cfg tunecfg.StorageMathConfig, limits tunecfg.KernelLimits, pressure *registry.GlobalPressure, diag *registry.Diagnostics, metrics *telemetry.Metrics, control *event.InMemoryBus) (*storageHandler, error) {
	mon, err := psi.NewMonitor(psi.IO)
	if err != nil {
		return nil, err
	}

	writers := make([]*knob.CachedWriter, 0, 3)
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

	readAheadPath, nrRequestsPath, fifoBatchPath := storageKnobPaths(device)

	readAheadW, err := open(readAheadPath)
	if err != nil {
		closeAll()
		return nil, err
	}
	nrRequestsW, err := open(nrRequestsPath)
	if err != nil {
		closeAll()
		return nil, err
	}
	// fifo_batch is scheduler-dependent (only present under mq-deadline);
	// its absence is tolerated rather than treated as a fatal init error.
	fifoBatchW, ferr := knob.Open(fifoBatchPath)
	if ferr == nil {
		writers = append(writers, fifoBatchW)
	} else {
		fifoBatchW = nil
	}

	timer, err := newTimerFD()
	if err != nil {
		closeAll()
		return nil, err
	}
	if err := timer.arm(poller.MinPollingMS); err != nil {
		return nil, err
	}

	return &storageHandler{
		timer:       timer,
		clk:         clk,
		mon:         mon,
		diskst:      newDiskstatReader(device),
		ctl:         storagectl.New(cfg, limits),
		poll:        poller.New(0.7, 0.3),
		readAheadW:  readAheadW,
		nrRequestsW: nrRequestsW,
		fifoBatchW:  fifoBatchW,
		queueHigh:   cfg.QueueHighInFlight,
		pressure:    pressure,
		diag:        diag,
		metrics:     metrics,
		control:     control,
	}, nil
}

func (h *storageHandler) AsRawFD() int         { return h.timer.fd }
func (h *storageHandler) GetPollFlags() uint32 { return unix.EPOLLIN }
func (h *storageHandler) GetTimeoutMS() int64  { return -1 }
func (h *storageHandler) OnTimeout() error     { return nil }

func (h *storageHandler) OnEvent(events uint32) error {
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
	dev, err := h.diskst.read()
	if err != nil {
		return err
	}

	h.pressure.SetIO(data.Some.Current)
	h.pressure.SetIOSaturation(mathutil.Ramp(dev.InFlight, 0, h.queueHigh))
	h.metrics.PSICurrent.WithLabelValues("io", "some").Set(data.Some.Current)
	h.metrics.PSIAvg10.WithLabelValues("io", "some").Set(data.Some.Avg10)

	in := storagectl.Inputs{PSIIO: data.Some.Current, Dev: dev}
	dt := elapsed.Seconds()
	targets := h.ctl.Cycle(in, dt)

	h.writeKnobStorage(h.readAheadW, targets.ReadAheadKB, "read_ahead_kb", knob.Relative{Pct: 0.1})
	h.writeNRRequests(targets.NRRequests, targets.CriticalCongestion)
	if h.fifoBatchW != nil {
		fifoBatch := uint64(8)
		if targets.CriticalCongestion {
			fifoBatch = 4
		}
		h.writeKnobStorage(h.fifoBatchW, fifoBatch, "fifo_batch", knob.Strict{})
	}

	h.diag.Publish("storage", targets)
	h.metrics.ControllerCycles.WithLabelValues("storage").Inc()
	timer.ObserveWithLabels(h.metrics.ControllerDuration, map[string]string{"controller": "storage"})

	next := h.poll.Next(data.Some.Current, elapsed)
	h.metrics.PollIntervalMS.WithLabelValues("storage").Set(next)
	return h.timer.arm(next)
}

func (h *storageHandler) writeNRRequests(value uint64, critical bool) {
	wrote, err := h.nrRequestsW.Update(value, false, knob.Relative{Pct: 0.1})
	if err != nil {
		return
	}
	if !wrote {
		h.metrics.KnobSuppressed.WithLabelValues("nr_requests").Inc()
		return
	}
	h.metrics.KnobWrites.WithLabelValues("nr_requests").Inc()

	if h.hasNRRequests && h.lastNRRequests == value {
		return
	}
	h.lastNRRequests, h.hasNRRequests = value, true

	reason := "queue depth gradient adjustment"
	if critical {
		reason = "io.pressure above critical threshold"
	}
	cmd := event.QueueDepthCommand{NRRequests: value, Critical: critical, Reason: reason, Timestamp: time.Now()}
	evt := event.NewControlEvent(event.EventTypeQueueAdjust, cmd)
	_ = h.control.Publish(context.Background(), *evt)
}

func (h *storageHandler) writeKnobStorage(w *knob.CachedWriter, value uint64, name string, strategy knob.Strategy) {
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

func (h *storageHandler) close() {
	h.timer.close()
	h.mon.Close()
	h.readAheadW.Close()
	h.nrRequestsW.Close()
	if h.fifoBatchW != nil {
		h.fifoBatchW.Close()
	}
}
