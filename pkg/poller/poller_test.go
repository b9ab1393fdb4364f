package poller

import (
	"testing"
	"time"
)

func TestAdaptive_OutputAlwaysInRange(t *testing.T) {
	a := New(0.7, 0.3)
	for i := 0; i < 100; i++ {
		pressure := float64((i * 7) % 100)
		got := a.Next(pressure, 4*time.Second)
		if got < MinPollingMS || got > MaxPollingMS {
			t.Fatalf("iteration %d: Next = %v outside [%v,%v]", i, got, MinPollingMS, MaxPollingMS)
		}
	}
}

func TestAdaptive_TimeDiscontinuitySnapsToMin(t *testing.T) {
	a := New(0.7, 0.3)
	a.Next(10, 4*time.Second)
	got := a.Next(10, 30*time.Second) // suspend/resume gap
	if got != MinPollingMS {
		t.Errorf("Next after gap = %v, want MinPollingMS", got)
	}
}

func TestAdaptive_ColdStartReturnsMin(t *testing.T) {
	a := New(0.7, 0.3)
	got := a.Next(0, 0)
	if got != MinPollingMS {
		t.Errorf("cold start Next = %v, want %v", got, MinPollingMS)
	}
}

func TestAdaptive_HighUrgencySnapsDown(t *testing.T) {
	a := New(1.0, 0.0)
	a.Next(0, 4*time.Second)
	got := a.Next(100, 4*time.Second)
	if got >= MaxPollingMS {
		t.Errorf("Next under high urgency = %v, expected to snap toward min", got)
	}
}
