// Package registry holds the process-wide shared state described in
// spec §3 and §5: GlobalPressure, a single-writer-per-field snapshot of
// the four cross-controller pressure scalars and the thermal damping
// scalar, plus a diagnostic index of
// per-controller state for the TUI and the host bridge.
package registry

import (
	"math"
	"sync/atomic"

	tuneregistry "github.com/BYTE-6D65/tunedaemon/pkg/registry"
)

// GlobalPressure is the process-wide snapshot of cross-controller
// pressure scalars (spec §3: "lives for process lifetime; updated by the
// owning controller on each cycle"). Each field is written by exactly
// one controller and may be read by any number of others; fields are
// stored as bit-patterns behind atomics so reads never block a writer
// and never observe a torn value (spec §5: "atomic-per-field... both
// acceptable").
type GlobalPressure struct {
	cpuPSI          atomic.Uint64
	memoryPSI       atomic.Uint64
	ioPSI           atomic.Uint64
	ioSaturation    atomic.Uint64
	thermalDamping  atomic.Uint64
}

// New returns a zeroed GlobalPressure snapshot. ThermalDamping starts at
// 1.0 (no damping) since a just-started thermal regulator hasn't run a
// cycle yet and the other controllers must not assume worst-case damping.
func New() *GlobalPressure {
	g := &GlobalPressure{}
	g.SetThermalDamping(1.0)
	return g
}

// SetCPU stores the CPU PSI percentage. Called only by the CPU controller.
func (g *GlobalPressure) SetCPU(v float64) { g.cpuPSI.Store(math.Float64bits(v)) }

// CPU returns the last CPU PSI percentage stored.
func (g *GlobalPressure) CPU() float64 { return math.Float64frombits(g.cpuPSI.Load()) }

// SetMemory stores the memory PSI percentage. Called only by the memory controller.
func (g *GlobalPressure) SetMemory(v float64) { g.memoryPSI.Store(math.Float64bits(v)) }

// Memory returns the last memory PSI percentage stored.
func (g *GlobalPressure) Memory() float64 { return math.Float64frombits(g.memoryPSI.Load()) }

// SetIO stores the IO PSI percentage. Called only by the storage controller.
func (g *GlobalPressure) SetIO(v float64) { g.ioPSI.Store(math.Float64bits(v)) }

// IO returns the last IO PSI percentage stored.
func (g *GlobalPressure) IO() float64 { return math.Float64frombits(g.ioPSI.Load()) }

// SetIOSaturation stores the IO saturation ratio (0..1). Called only by
// the storage controller.
func (g *GlobalPressure) SetIOSaturation(v float64) { g.ioSaturation.Store(math.Float64bits(v)) }

// IOSaturation returns the last IO saturation ratio stored.
func (g *GlobalPressure) IOSaturation() float64 {
	return math.Float64frombits(g.ioSaturation.Load())
}

// SetThermalDamping stores this cycle's thermal damping scalar in
// [0.1, 1.0] (spec §4.7). Called only by the thermal regulator; read by
// the CPU handler as the thermal scale of its scheduler targets.
func (g *GlobalPressure) SetThermalDamping(v float64) {
	g.thermalDamping.Store(math.Float64bits(v))
}

// ThermalDamping returns the last thermal damping scalar stored.
func (g *GlobalPressure) ThermalDamping() float64 {
	return math.Float64frombits(g.thermalDamping.Load())
}

// Snapshot is a point-in-time copy of all five scalars, used by the TUI
// and diagnostic index; readers may observe a mix of cycles across
// fields since there is no cross-field lock (spec §3 "readers may see
// stale values").
type Snapshot struct {
	CPU, Memory, IO, IOSaturation float64
	ThermalDamping                float64
}

// Snapshot copies the current value of every field.
func (g *GlobalPressure) Snapshot() Snapshot {
	return Snapshot{
		CPU:            g.CPU(),
		Memory:         g.Memory(),
		IO:             g.IO(),
		IOSaturation:   g.IOSaturation(),
		ThermalDamping: g.ThermalDamping(),
	}
}

// Diagnostics is a named index of arbitrary per-service diagnostic state
// (last controller targets, cached-writer tolerances, tier selection)
// exposed to the TUI and host bridge. It is separate from GlobalPressure
// because its entries are not hot-path per-field scalars but coarser
// snapshots updated at controller-cycle granularity.
type Diagnostics struct {
	reg *tuneregistry.TypedRegistry[any]
}

// NewDiagnostics returns an empty diagnostic index backed by an
// in-memory registry.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{reg: tuneregistry.NewTypedRegistry[any](tuneregistry.NewInMemoryRegistry())}
}

// Publish records the latest diagnostic value for a named component.
func (d *Diagnostics) Publish(component string, value any) {
	d.reg.Set(component, value)
}

// Get retrieves the latest diagnostic value for a named component.
func (d *Diagnostics) Get(component string) (any, bool) {
	return d.reg.Get(component)
}

// Components lists every component with a published diagnostic value.
func (d *Diagnostics) Components() []string {
	return d.reg.Keys()
}
