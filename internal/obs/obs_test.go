package obs

import (
	"context"
	"testing"
	"time"

	"github.com/BYTE-6D65/tunedaemon/pkg/event"
)

func TestLogger_AttachRendersPublishedEvents(t *testing.T) {
	bus := event.NewErrorBus(8)
	l := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := l.Attach(ctx, bus); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	n := bus.Publish(event.NewErrorEvent(event.InfoSeverity, event.CodeServiceInit, "thermal", "service initialised"))
	if n == 0 {
		t.Fatal("Publish() delivered to zero subscribers, want at least one (the attached logger)")
	}

	// render runs on the subscription's own goroutine; give it a moment.
	time.Sleep(20 * time.Millisecond)
}

func TestLogger_AttachWithSignalDoesNotPanic(t *testing.T) {
	bus := event.NewErrorBus(8)
	l := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := l.Attach(ctx, bus); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	evt := event.NewErrorEvent(event.WarningSeverity, event.CodeServiceCooldown, "storage", "init failed").WithSignal(event.SignalCooldown)
	bus.Publish(evt)

	time.Sleep(20 * time.Millisecond)
}
