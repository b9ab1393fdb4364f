// Package knob implements the cached-write discipline that suppresses
// redundant writes to kernel pseudo-files (spec §4.8). Every writable
// /proc or /sys knob is wrapped in a CachedWriter so a controller can
// call Update every cycle without re-validating the kernel on every
// call.
package knob

import (
	"fmt"
	"os"

	"github.com/BYTE-6D65/tunedaemon/internal/tuneerr"
)

// Strategy decides, given a candidate value and the last value actually
// written, whether a non-forced Update should write again (spec §4.8).
type Strategy interface {
	shouldWrite(value, last uint64, hasLast bool) bool
}

// Absolute requires the candidate to differ from the cache by at least
// delta before a write is issued.
type Absolute struct{ Delta uint64 }

func (a Absolute) shouldWrite(value, last uint64, hasLast bool) bool {
	if !hasLast {
		return true
	}
	return absDiff(value, last) >= a.Delta
}

// Relative requires the candidate to differ from the cache by at least
// pct (0..1) of the cached value before a write is issued.
type Relative struct{ Pct float64 }

func (r Relative) shouldWrite(value, last uint64, hasLast bool) bool {
	if !hasLast {
		return true
	}
	if last == 0 {
		return value != 0
	}
	return float64(absDiff(value, last))/float64(last) >= r.Pct
}

// Strict requires strict inequality against the cached value.
type Strict struct{}

func (Strict) shouldWrite(value, last uint64, hasLast bool) bool {
	if !hasLast {
		return true
	}
	return value != last
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// CachedWriter wraps one open writable kernel file plus the last value
// actually written to it. It seeks to offset 0 and writes the decimal
// representation plus a trailing newline on every successful write, as
// required by /proc write semantics (spec §4.8, §6).
type CachedWriter struct {
	path string
	f    *os.File

	last    uint64
	hasLast bool
}

// Open opens path for writing and returns a CachedWriter with an empty
// cache (the first Update, forced or not, always writes).
func Open(path string) (*CachedWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, classifyWriteOpenErr(path, err)
	}
	return &CachedWriter{path: path, f: f}, nil
}

// Close releases the underlying file descriptor.
func (w *CachedWriter) Close() error { return w.f.Close() }

// Last returns the last value successfully written and whether any write
// has yet succeeded.
func (w *CachedWriter) Last() (uint64, bool) { return w.last, w.hasLast }

// Update writes value if force is true, or if strategy decides the
// candidate differs enough from the cache. On write failure the cache is
// left untouched so the next cycle retries (spec §4.8, §7 "write
// failures... swallowed"); the error is returned to the caller for
// logging but is never fatal to the controller's cycle.
func (w *CachedWriter) Update(value uint64, force bool, strategy Strategy) (wrote bool, err error) {
	if !force && !strategy.shouldWrite(value, w.last, w.hasLast) {
		return false, nil
	}
	if err := w.write(value); err != nil {
		return false, err
	}
	w.last = value
	w.hasLast = true
	return true, nil
}

func (w *CachedWriter) write(value uint64) error {
	if _, err := w.f.Seek(0, 0); err != nil {
		return tuneerr.Wrap(tuneerr.IO, w.path, err)
	}
	if _, err := fmt.Fprintf(w.f, "%d\n", value); err != nil {
		return tuneerr.Wrap(tuneerr.IO, w.path, err)
	}
	return nil
}

func classifyWriteOpenErr(path string, err error) error {
	if os.IsNotExist(err) {
		return tuneerr.Wrap(tuneerr.InvalidPath, path, err)
	}
	if os.IsPermission(err) {
		return tuneerr.Wrap(tuneerr.PermissionDenied, path, err)
	}
	return tuneerr.Wrap(tuneerr.IO, path, err)
}
