package daemon

import (
	"golang.org/x/sys/unix"

	"github.com/BYTE-6D65/tunedaemon/internal/tuneerr"
)

// timerFD wraps a Linux timerfd used to give each regulation service a
// real file descriptor to register with the supervisor's epoll instance
// (spec §4.9: the event loop dispatches purely on handler fd readiness
// and per-handler timeouts; a timerfd is the idiomatic way to turn "wake
// me up every N milliseconds, N itself changing every cycle" into
// epoll-compatible readiness rather than polling GetTimeoutMS alone).
type timerFD struct {
	fd int
}

func newTimerFD() (*timerFD, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC)
	if err != nil {
		return nil, tuneerr.Wrap(tuneerr.IO, "timerfd_create", err)
	}
	return &timerFD{fd: fd}, nil
}

// arm (re)schedules a single-shot expiration after ms milliseconds. Called
// once at construction and again at the end of every cycle with the
// adaptive poller's freshly computed interval.
func (t *timerFD) arm(ms float64) error {
	if ms <= 0 {
		ms = 1
	}
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(int64(ms) * 1_000_000),
	}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return tuneerr.Wrap(tuneerr.IO, "timerfd_settime", err)
	}
	return nil
}

// drain consumes the 8-byte expiration counter so the fd stops reporting
// readable; timerfd semantics require this on every wakeup.
func (t *timerFD) drain() {
	var buf [8]byte
	_, _ = unix.Read(t.fd, buf[:])
}

func (t *timerFD) close() {
	_ = unix.Close(t.fd)
}
