package daemon

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestTimerFD_ArmFiresAndDrains(t *testing.T) {
	tf, err := newTimerFD()
	if err != nil {
		t.Fatalf("newTimerFD() error = %v", err)
	}
	defer tf.close()

	if err := tf.arm(5); err != nil {
		t.Fatalf("arm() error = %v", err)
	}

	fds := []unix.PollFd{{Fd: int32(tf.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 1000)
	if err != nil {
		t.Fatalf("poll() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("poll() returned %d ready fds, want 1 after timer fired", n)
	}

	tf.drain()

	// A second, immediate poll with a short timeout should see the fd
	// not-ready again now that the expiration counter has been drained.
	n, err = unix.Poll(fds, 10)
	if err != nil {
		t.Fatalf("poll() after drain error = %v", err)
	}
	if n != 0 {
		t.Fatalf("poll() after drain returned %d ready fds, want 0", n)
	}
}

func TestTimerFD_ArmRejectsNonPositiveByFlooringToOneMS(t *testing.T) {
	tf, err := newTimerFD()
	if err != nil {
		t.Fatalf("newTimerFD() error = %v", err)
	}
	defer tf.close()

	if err := tf.arm(0); err != nil {
		t.Fatalf("arm(0) error = %v, want nil (floored to 1ms)", err)
	}

	fds := []unix.PollFd{{Fd: int32(tf.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 100)
	if err != nil {
		t.Fatalf("poll() error = %v", err)
	}
	if n != 1 {
		t.Fatal("expected arm(0) to still schedule a near-immediate expiration")
	}
	tf.drain()
}

func TestTimerFD_CloseInvalidatesFD(t *testing.T) {
	tf, err := newTimerFD()
	if err != nil {
		t.Fatalf("newTimerFD() error = %v", err)
	}
	tf.close()

	if err := tf.arm(5); err == nil {
		t.Fatal("arm() after close() = nil error, want an error from a closed fd")
	}
}
