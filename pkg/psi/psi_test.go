package psi

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseLines_ColdStart(t *testing.T) {
	content := []byte("some avg10=0.00 avg60=0.00 avg300=0.00 total=0\n" +
		"full avg10=0.00 avg60=0.00 avg300=0.00 total=0\n")

	some, full, err := parseLines(content)
	if err != nil {
		t.Fatalf("parseLines: %v", err)
	}
	if some.Avg10 != 0 || some.Total != 0 {
		t.Errorf("some = %+v, want zeroed", some)
	}
	if full.Avg10 != 0 {
		t.Errorf("full.Avg10 = %v, want 0", full.Avg10)
	}
}

func TestParseLines_MissingSome(t *testing.T) {
	_, _, err := parseLines([]byte("full avg10=1.0 avg60=1.0 avg300=1.0 total=5\n"))
	if err == nil {
		t.Fatal("expected error for missing 'some' line")
	}
}

func TestParseLines_MissingFullIsZeroNotError(t *testing.T) {
	some, full, err := parseLines([]byte("some avg10=5.0 avg60=2.0 avg300=1.0 total=100\n"))
	if err != nil {
		t.Fatalf("parseLines: %v", err)
	}
	if some.Avg10 != 5.0 {
		t.Errorf("some.Avg10 = %v, want 5.0", some.Avg10)
	}
	if full != (Trend{}) {
		t.Errorf("full = %+v, want zero value", full)
	}
}

func TestCurrentRate_StepPressure(t *testing.T) {
	// spec §8 boundary scenario 2: total jumps 0 -> 500_000us over 1s.
	got := currentRate(500_000, 0, 1_000_000)
	if got != 50.0 {
		t.Errorf("currentRate = %v, want 50.0", got)
	}
}

func TestCurrentRate_ClampedToRange(t *testing.T) {
	got := currentRate(10_000_000, 0, 1000)
	if got != 100 {
		t.Errorf("currentRate = %v, want clamped to 100", got)
	}
}

func TestCurrentRate_CounterResetYieldsZero(t *testing.T) {
	got := currentRate(10, 500, 1000)
	if got != 0 {
		t.Errorf("currentRate on counter reset = %v, want 0", got)
	}
}

func TestMonitor_FirstReadSeedsCurrentFromAvg10(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory")
	content := "some avg10=12.50 avg60=0.00 avg300=0.00 total=100\n" +
		"full avg10=3.00 avg60=0.00 avg300=0.00 total=50\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	m := &Monitor{resource: Memory, f: f, firstRead: true}
	defer m.Close()

	data, err := m.Read(0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	some, full := data.Some, data.Full

	if some.Current != 12.5 {
		t.Errorf("Current = %v, want seeded 12.5", some.Current)
	}
	if full.Current != 3.0 {
		t.Errorf("Current = %v, want seeded 3.0", full.Current)
	}
}

func TestParsePSILine_AllFields(t *testing.T) {
	tr, err := parsePSILine("avg10=1.23 avg60=4.56 avg300=7.89 total=123456")
	if err != nil {
		t.Fatalf("parsePSILine: %v", err)
	}
	if tr.Avg10 != 1.23 || tr.Avg60 != 4.56 || tr.Avg300 != 7.89 || tr.Total != 123456 {
		t.Errorf("parsed = %+v", tr)
	}
}

func TestParsePSILine_MalformedFloat(t *testing.T) {
	_, err := parsePSILine("avg10=notanumber avg60=1 avg300=1 total=1")
	if err == nil {
		t.Fatal("expected error for malformed avg10")
	}
}
