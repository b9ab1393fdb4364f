// Package obs renders the error/control bus to stderr with the stdlib
// logger, the way cmd/pipeline's main.go sets up logging (AMBIENT
// STACK: no logging library in the teacher's dependency set, so this
// stays on stdlib log rather than reaching for one that nothing else in
// the tree uses).
package obs

import (
	"context"
	"log"
	"os"

	"github.com/BYTE-6D65/tunedaemon/pkg/event"
)

// Logger renders ErrorEvents from an event.ErrorBus to stderr.
type Logger struct {
	std *log.Logger
}

// New returns a Logger writing to stderr with time-of-day and
// microsecond precision, matching cmd/pipeline/main.go's
// log.SetFlags(log.Ltime | log.Lmicroseconds).
func New() *Logger {
	return &Logger{std: log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)}
}

// Attach subscribes to bus and renders every event until ctx is
// cancelled. Runs in its own goroutine via the bus's own handler
// dispatch; Attach itself returns once the subscription is established.
func (l *Logger) Attach(ctx context.Context, bus *event.ErrorBus) error {
	_, err := bus.SubscribeWithHandler(ctx, l.render)
	return err
}

func (l *Logger) render(evt event.ErrorEvent) {
	if evt.Signal != event.SignalNone {
		l.std.Printf("%-8s %-20s [%s] %s: %s", evt.Severity, evt.Component, evt.Signal, evt.Code, evt.Message)
		return
	}
	l.std.Printf("%-8s %-20s %s: %s", evt.Severity, evt.Component, evt.Code, evt.Message)
}
