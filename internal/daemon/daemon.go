// Package daemon wires the startup configuration, device tier profile,
// shared registries, telemetry, and host bridge into a running
// internal/supervisor instance: the resident process itself (spec §1,
// §4.9, §5).
package daemon

import (
	"context"
	"time"

	"github.com/BYTE-6D65/tunedaemon/internal/bridge"
	"github.com/BYTE-6D65/tunedaemon/internal/config"
	"github.com/BYTE-6D65/tunedaemon/internal/registry"
	"github.com/BYTE-6D65/tunedaemon/internal/supervisor"
	"github.com/BYTE-6D65/tunedaemon/internal/telemetry"
	"github.com/BYTE-6D65/tunedaemon/internal/tier"
	"github.com/BYTE-6D65/tunedaemon/pkg/clock"
	"github.com/BYTE-6D65/tunedaemon/pkg/event"
	"github.com/BYTE-6D65/tunedaemon/pkg/tunecfg"

	"github.com/prometheus/client_golang/prometheus"
)

// Daemon bundles every long-lived component the core needs for one
// process lifetime (spec §3: "GlobalPressure... lives for process
// lifetime").
type Daemon struct {
	cfg     config.Config
	profile tunecfg.Profile

	pressure *registry.GlobalPressure
	diag     *registry.Diagnostics
	metrics  *telemetry.Metrics
	bus      *event.ErrorBus
	control  *event.InMemoryBus
	history  *event.OrderedEventStore
	bridge   bridge.Bridge

	sup *supervisor.Supervisor
	clk clock.Clock
}

// New builds a Daemon from configuration, resolving the device tier and
// constructing every shared component, but registers no services yet.
func New(cfg config.Config, b bridge.Bridge, metricsRegistry prometheus.Registerer) (*Daemon, error) {
	if b == nil {
		b = bridge.NoopBridge{}
	}

	tier := cfg.ResolveTier()
	profile := tunecfg.ForTier(tier)

	clk := clock.NewSystemClock()
	bus := event.NewErrorBus(256)
	metrics := telemetry.InitMetrics(metricsRegistry)
	control := event.NewInMemoryBus(event.WithBusName("control"), event.WithMetrics(metrics))
	history := event.NewOrderedEventStore()

	sup, err := supervisor.New(clk,
		supervisor.WithCooldown(cfg.CooldownDuration),
		supervisor.WithEpollCeiling(cfg.EpollCeiling),
		supervisor.WithErrorBus(bus),
	)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		profile:  profile,
		pressure: registry.New(),
		diag:     registry.NewDiagnostics(),
		metrics:  metrics,
		bus:      bus,
		control:  control,
		history:  history,
		bridge:   b,
		sup:      sup,
		clk:      clk,
	}
	d.retainControlHistory()
	d.publishTierOverride(tier)
	d.registerServices()
	return d, nil
}

// retainControlHistory subscribes to the control bus and appends every
// command into a rolling ordered store, giving the TUI and any future
// bridge export a recent-history view beyond the error bus's lossy,
// fire-and-forget delivery.
func (d *Daemon) retainControlHistory() {
	sub, err := d.control.Subscribe(context.Background(), event.Filter{})
	if err != nil {
		return
	}
	go func() {
		for evt := range sub.Events() {
			d.history.Append(evt)
		}
	}()
}

func (d *Daemon) publishTierOverride(t tier.Tier) {
	cmd := event.TierOverrideCommand{
		Tier:      t.String(),
		FromEnv:   d.cfg.TierOverride != "",
		Timestamp: time.Now(),
	}
	evt := event.NewControlEvent(event.EventTypeTierOverride, cmd)
	_ = d.control.Publish(context.Background(), *evt)
}

// registerServices registers a factory for every enabled controller
// (spec §4.9: "handler dispatch as capability contract"; construction is
// deferred to the supervisor's own init-pending pass so a missing PSI
// file or knob path only disables that one service).
func (d *Daemon) registerServices() {
	if d.cfg.EnableCPU {
		d.sup.Register("cpu", func() (supervisor.Handler, error) {
			return newCPUHandler(d.clk, d.profile.CPU, d.profile.Limits, d.pressure, d.diag, d.metrics)
		})
	}
	if d.cfg.EnableMemory {
		d.sup.Register("memory", func() (supervisor.Handler, error) {
			return newMemoryHandler(d.clk, d.profile.Memory, d.profile.Limits, d.pressure, d.diag, d.metrics, d.control)
		})
	}
	if d.cfg.EnableStorage {
		d.sup.Register("storage", func() (supervisor.Handler, error) {
			return newStorageHandler(d.clk, d.cfg.BlockDevice, d.profile.Storage, d.profile.Limits, d.pressure, d.diag, d.metrics, d.control)
		})
	}
	// The thermal regulator has no PSI or knob file of its own (it reads
	// GlobalPressure and writes the damping scalar back into it), so it
	// is always registered regardless of EnableTweaks.
	d.sup.Register("thermal", func() (supervisor.Handler, error) {
		return newThermalHandler(d.clk, d.profile.Thermal, d.pressure, d.diag, d.metrics, d.control)
	})
}

// Run drives the supervisor's epoll loop until ctx is cancelled or
// Shutdown is called.
func (d *Daemon) Run(ctx context.Context) error {
	return d.sup.Run(ctx)
}

// Shutdown requests the supervisor loop stop at its next iteration
// boundary.
func (d *Daemon) Shutdown() {
	d.sup.RequestShutdown()
	d.bridge.NotifyServiceDeath("daemon shutdown requested")
}

// Pressure exposes the shared cross-controller pressure snapshot, used
// by the TUI and the host bridge property surface.
func (d *Daemon) Pressure() *registry.GlobalPressure { return d.pressure }

// Diagnostics exposes the per-controller diagnostic index, used by the TUI.
func (d *Daemon) Diagnostics() *registry.Diagnostics { return d.diag }

// ErrorBus exposes the lossy error/lifecycle event bus for subscribers
// (the TUI, a future log forwarder).
func (d *Daemon) ErrorBus() *event.ErrorBus { return d.bus }

// ControlBus exposes the typed control-command bus (thermal damping,
// swappiness, queue depth, tier resolution) that the handlers publish to
// alongside the lossy error bus.
func (d *Daemon) ControlBus() *event.InMemoryBus { return d.control }

// History returns the rolling ordered store of every control command
// published since startup.
func (d *Daemon) History() *event.OrderedEventStore { return d.history }

// Tier returns the configuration profile selected for the resolved device
// tier this daemon is running with.
func (d *Daemon) Tier() tunecfg.Profile { return d.profile }
