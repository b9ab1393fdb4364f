// Package bridge defines the host-process contract the core consumes
// for PSI trigger descriptors, service-death notification, and system
// property get/set (spec §6). The real privileged helper is an external
// collaborator and out of scope; NoopBridge is a standalone fallback so
// the daemon is runnable without one, mirroring the teacher's
// adapter/emitter contract-only packages.
package bridge

import "errors"

// ErrPropertyAbsent is returned by Get when the bridge has no value for
// a key; the core is required to tolerate this as "property absent"
// rather than as a fatal error (spec §6).
var ErrPropertyAbsent = errors.New("bridge: property absent")

// Bridge is the two one-way signals plus the property store the core
// consumes from the privileged host process (spec §6).
type Bridge interface {
	// NotifyServiceDeath reports that a supervised service died, with a
	// free-form string context (e.g. "Startup Panic").
	NotifyServiceDeath(context string)

	// GetProperty reads a system property. Any failure, including the
	// key not existing, must surface as ErrPropertyAbsent.
	GetProperty(key string) (string, error)

	// SetProperty writes a system property. Errors surface as non-zero
	// returns per spec §6; the core tolerates any failure.
	SetProperty(key, value string) error
}

// NoopBridge is a standalone fallback implementation: notifications are
// dropped and every property is absent. It exists so the daemon can run
// in development and in tests without a privileged helper process.
type NoopBridge struct{}

var _ Bridge = NoopBridge{}

func (NoopBridge) NotifyServiceDeath(string) {}

func (NoopBridge) GetProperty(string) (string, error) {
	return "", ErrPropertyAbsent
}

func (NoopBridge) SetProperty(string, string) error {
	return nil
}
