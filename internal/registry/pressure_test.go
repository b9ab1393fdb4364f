package registry

import "testing"

func TestGlobalPressure_New_SeedsThermalDampingToOne(t *testing.T) {
	g := New()
	if got := g.ThermalDamping(); got != 1.0 {
		t.Fatalf("ThermalDamping() on fresh GlobalPressure = %v, want 1.0", got)
	}
}

func TestGlobalPressure_SetGet(t *testing.T) {
	g := New()

	g.SetCPU(42.5)
	g.SetMemory(10.0)
	g.SetIO(5.25)
	g.SetIOSaturation(0.75)
	g.SetThermalDamping(0.6)

	if got := g.CPU(); got != 42.5 {
		t.Errorf("CPU() = %v, want 42.5", got)
	}
	if got := g.Memory(); got != 10.0 {
		t.Errorf("Memory() = %v, want 10.0", got)
	}
	if got := g.IO(); got != 5.25 {
		t.Errorf("IO() = %v, want 5.25", got)
	}
	if got := g.IOSaturation(); got != 0.75 {
		t.Errorf("IOSaturation() = %v, want 0.75", got)
	}
	if got := g.ThermalDamping(); got != 0.6 {
		t.Errorf("ThermalDamping() = %v, want 0.6", got)
	}
}

func TestGlobalPressure_Snapshot(t *testing.T) {
	g := New()
	g.SetCPU(1)
	g.SetMemory(2)
	g.SetIO(3)
	g.SetIOSaturation(4)
	g.SetThermalDamping(5)

	snap := g.Snapshot()
	want := Snapshot{CPU: 1, Memory: 2, IO: 3, IOSaturation: 4, ThermalDamping: 5}
	if snap != want {
		t.Fatalf("Snapshot() = %+v, want %+v", snap, want)
	}
}

func TestDiagnostics_PublishGetComponents(t *testing.T) {
	d := NewDiagnostics()

	if _, ok := d.Get("cpu"); ok {
		t.Fatal("Get on empty Diagnostics returned ok=true")
	}

	d.Publish("cpu", 12.5)
	d.Publish("memory", "nominal")

	v, ok := d.Get("cpu")
	if !ok || v != 12.5 {
		t.Fatalf("Get(\"cpu\") = (%v, %v), want (12.5, true)", v, ok)
	}

	comps := d.Components()
	if len(comps) != 2 {
		t.Fatalf("Components() = %v, want 2 entries", comps)
	}

	// Republishing overwrites rather than duplicating the component.
	d.Publish("cpu", 99.0)
	v, ok = d.Get("cpu")
	if !ok || v != 99.0 {
		t.Fatalf("Get(\"cpu\") after overwrite = (%v, %v), want (99.0, true)", v, ok)
	}
	if comps := d.Components(); len(comps) != 2 {
		t.Fatalf("Components() after overwrite = %v, want still 2 entries", comps)
	}
}
