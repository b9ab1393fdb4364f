package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/BYTE-6D65/tunedaemon/internal/bridge"
	"github.com/BYTE-6D65/tunedaemon/internal/config"
	"github.com/BYTE-6D65/tunedaemon/internal/daemon"
	"github.com/BYTE-6D65/tunedaemon/internal/obs"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	// No arguments: run resident with the live status TUI in the
	// foreground, mirroring the teacher's "no args launches the
	// interactive view" default.
	if len(os.Args) < 2 {
		if err := runWithTUI(); err != nil {
			log.Fatalf("tunedaemon: %v", err)
		}
		return
	}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		if err := runHeadless(); err != nil {
			log.Fatalf("tunedaemon: %v", err)
		}
	case "version":
		fmt.Printf("tunedaemon v%s\n", version)
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	case "help", "-h", "--help":
		usage()
	default:
		log.Fatalf("ERROR: unknown command %q (try 'tunedaemon help')", cmd)
	}
}

func newDaemon() (*daemon.Daemon, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	log.Printf("starting with %s", cfg.String())
	return daemon.New(cfg, bridge.NoopBridge{}, nil)
}

// runHeadless runs the daemon until SIGINT/SIGTERM, rendering its error
// bus to stderr via internal/obs rather than a TUI.
func runHeadless() error {
	d, err := newDaemon()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := obs.New().Attach(ctx, d.ErrorBus()); err != nil {
		return fmt.Errorf("attaching logger: %w", err)
	}

	return d.Run(ctx)
}

// runWithTUI runs the daemon alongside the bubbletea status viewer; the
// viewer's lifetime governs the process's, matching startTUI's role in
// the teacher.
func runWithTUI() error {
	d, err := newDaemon()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := d.Run(ctx); err != nil {
			log.Printf("supervisor exited: %v", err)
		}
	}()
	defer d.Shutdown()

	return startTUI(d)
}

func usage() {
	fmt.Fprintf(os.Stderr, `tunedaemon - adaptive kernel resource-allocation tuning daemon

Usage:
  tunedaemon
      Launch the resident daemon with the live status TUI in the foreground.

  tunedaemon run
      Launch the resident daemon headless, logging to stderr.

  tunedaemon version
      Show version and platform information.

  tunedaemon help
      Show this help message.

Configuration is read from TUNED_* environment variables; see
internal/config for the full list and defaults.
`)
}
