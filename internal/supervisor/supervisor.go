// Package supervisor owns the single epoll loop that drives every
// supervised service — the CPU, memory, storage, and thermal regulation
// cycles, plus whatever tweak services are enabled. One thread runs the
// loop; controllers run sequentially within each iteration (spec §5: "one
// supervisor thread runs the epoll loop, controllers sequential per
// iteration"). Linux only, grounded on the epoll wrapper style of
// trpc-group/tnet's internal poller.
package supervisor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/BYTE-6D65/tunedaemon/internal/tuneerr"
	"github.com/BYTE-6D65/tunedaemon/pkg/clock"
	"github.com/BYTE-6D65/tunedaemon/pkg/event"
	"github.com/BYTE-6D65/tunedaemon/pkg/statemachine"
)

// defaultEpollCeiling bounds how long a single epoll_wait call may block, even
// when no service has a nearer timeout (spec §4.9: "~10s ceiling").
const defaultEpollCeiling = 10 * time.Second

// Handler is the capability contract a supervised service implements
// (spec §4.9, §9: "handler dispatch as capability contract").
type Handler interface {
	// AsRawFD returns the file descriptor to register with epoll.
	AsRawFD() int

	// OnEvent is called when epoll reports readiness on this handler's fd.
	OnEvent(events uint32) error

	// OnTimeout is called when this handler's own timeout elapses without
	// an intervening event.
	OnTimeout() error

	// GetTimeoutMS returns the handler's requested timeout from its last
	// tick, or a negative value to mean "no timeout".
	GetTimeoutMS() int64

	// GetPollFlags returns the epoll event mask to register for this fd.
	GetPollFlags() uint32
}

// Factory constructs a Handler, performing whatever fallible setup
// (opening a PSI file, a knob file, a bridge handle) the service needs.
type Factory func() (Handler, error)

const (
	stateUninitialized statemachine.State = "uninitialized"
	stateActive        statemachine.State = "active"
	stateCooldown      statemachine.State = "cooldown"
	stateDisabled      statemachine.State = "permanently_disabled"

	eventInitOK       statemachine.Event = "init_ok"
	eventInitTransient statemachine.Event = "init_fail_transient"
	eventInitFatal    statemachine.Event = "init_fail_fatal"
	eventRuntimeTransient statemachine.Event = "runtime_fail_transient"
	eventRuntimeFatal statemachine.Event = "runtime_fail_fatal"
	eventCooldownDone statemachine.Event = "cooldown_expired"
)

// service is spec §3's ServiceRecord: a named handler slot with its own
// lifecycle, cooldown timer, and epoll registration state.
type service struct {
	name    string
	factory Factory
	handler Handler

	machine       *statemachine.Machine
	cooldownUntil clock.MonoTime
	lastTick      clock.MonoTime
	registered    bool
}

func newService(name string, factory Factory) *service {
	m := statemachine.NewMachine(stateUninitialized)
	for _, s := range []statemachine.State{stateUninitialized, stateActive, stateCooldown, stateDisabled} {
		m.AddState(statemachine.StateConfig{Name: s})
	}
	_ = m.AddTransition(statemachine.Transition{From: stateUninitialized, To: stateActive, Event: eventInitOK})
	_ = m.AddTransition(statemachine.Transition{From: stateUninitialized, To: stateCooldown, Event: eventInitTransient})
	_ = m.AddTransition(statemachine.Transition{From: stateUninitialized, To: stateDisabled, Event: eventInitFatal})
	_ = m.AddTransition(statemachine.Transition{From: stateCooldown, To: stateUninitialized, Event: eventCooldownDone})
	_ = m.AddTransition(statemachine.Transition{From: stateActive, To: stateCooldown, Event: eventRuntimeTransient})
	_ = m.AddTransition(statemachine.Transition{From: stateActive, To: stateDisabled, Event: eventRuntimeFatal})

	return &service{name: name, factory: factory, machine: m}
}

func (s *service) state() statemachine.State { return s.machine.Current() }

// burstWindow and burstMinFaults bound the correlated-fault detector: three
// or more service faults within five seconds usually share one root cause
// (a dying host bridge, a remounted /sys) rather than three independent bugs.
const (
	burstWindow    = 5 * time.Second
	burstMinFaults = 3
)

// Supervisor owns the epoll fd and the service records slice (spec §4.9).
type Supervisor struct {
	epfd int
	svcs []*service

	clock        clock.Clock
	cooldown     time.Duration
	epollCeiling time.Duration
	bus          *event.ErrorBus
	faults       *event.OrderedEventStore
	shutdown     atomic.Bool
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithCooldown overrides the default cooldown duration applied after a
// transient service failure (spec §4.9 default: 5s).
func WithCooldown(d time.Duration) Option {
	return func(s *Supervisor) { s.cooldown = d }
}

// WithEpollCeiling overrides the maximum epoll_wait budget per iteration.
func WithEpollCeiling(d time.Duration) Option {
	return func(s *Supervisor) { s.epollCeiling = d }
}

// WithErrorBus routes lifecycle and fault notifications to the given bus
// instead of discarding them.
func WithErrorBus(bus *event.ErrorBus) Option {
	return func(s *Supervisor) { s.bus = bus }
}

// New creates a Supervisor with its own epoll instance.
func New(clk clock.Clock, opts ...Option) (*Supervisor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, tuneerr.Wrap(tuneerr.IO, "supervisor.epoll_create1", err)
	}

	s := &Supervisor{
		epfd:         epfd,
		clock:        clk,
		cooldown:     5 * time.Second,
		epollCeiling: defaultEpollCeiling,
		faults:       event.NewOrderedEventStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register adds a named service with its handler factory. Registration
// only records the record; the handler itself is constructed lazily on
// the first iteration (spec §4.9: "init uninitialized non-cooldown
// services via factory").
func (s *Supervisor) Register(name string, factory Factory) {
	s.svcs = append(s.svcs, newService(name, factory))
}

// RequestShutdown sets the shutdown flag the run loop polls at iteration
// boundaries (spec §5: "SHUTDOWN_REQUESTED atomic boolean polled at
// iteration boundaries").
func (s *Supervisor) RequestShutdown() {
	s.shutdown.Store(true)
}

func (s *Supervisor) publish(signal event.ControlSignal, code, component, message string) {
	if s.bus == nil {
		return
	}
	evt := event.NewErrorEvent(event.InfoSeverity, code, component, message).WithSignal(signal)
	s.bus.Publish(evt)
}

// Run drives the epoll loop until RequestShutdown is called or ctx is
// cancelled. It owns the single blocking call in the process (spec §5:
// "the only blocking call is epoll_wait").
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.unregisterAll()

	for {
		if s.shutdown.Load() || ctx.Err() != nil {
			return nil
		}

		s.initPending()

		budget := s.nextBudget()

		events := make([]unix.EpollEvent, 64)
		n, err := unix.EpollWait(s.epfd, events, int(budget.Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return tuneerr.Wrap(tuneerr.IO, "supervisor.epoll_wait", err)
		}

		if s.shutdown.Load() || ctx.Err() != nil {
			return nil
		}

		ready := make(map[int]uint32, n)
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			ready[fd] = events[i].Events
		}

		now := s.clock.Now()
		for _, svc := range s.svcs {
			if svc.state() != stateActive || svc.handler == nil {
				continue
			}
			fd := svc.handler.AsRawFD()
			if mask, hit := ready[fd]; hit {
				s.deliverEvent(svc, mask)
				svc.lastTick = now
				continue
			}
			if s.timeoutExpired(svc, now) {
				s.deliverTimeout(svc)
				svc.lastTick = now
			}
		}
	}
}

// initPending constructs handlers for every service that is uninitialized
// and not presently in cooldown (spec §4.9).
func (s *Supervisor) initPending() {
	now := s.clock.Now()
	for _, svc := range s.svcs {
		switch svc.state() {
		case stateCooldown:
			if now >= svc.cooldownUntil {
				_ = svc.machine.Trigger(context.Background(), eventCooldownDone)
			}
		case stateUninitialized:
			s.initOne(svc, now)
		}
	}
}

func (s *Supervisor) initOne(svc *service, now clock.MonoTime) {
	h, err := svc.factory()
	if err != nil {
		s.classifyInitFailure(svc, now, err)
		return
	}

	if err := s.register(h); err != nil {
		s.classifyInitFailure(svc, now, err)
		return
	}

	svc.handler = h
	svc.registered = true
	svc.lastTick = now
	_ = svc.machine.Trigger(context.Background(), eventInitOK)
	s.publish(event.SignalNone, event.CodeServiceInit, svc.name, "service initialised")
}

func (s *Supervisor) classifyInitFailure(svc *service, now clock.MonoTime, err error) {
	if tuneerr.IsFatal(err) {
		_ = svc.machine.Trigger(context.Background(), eventInitFatal)
		s.publish(event.SignalDisabled, event.CodeServiceDisabled, svc.name, err.Error())
		return
	}
	svc.cooldownUntil = now + clock.FromDuration(s.cooldown)
	_ = svc.machine.Trigger(context.Background(), eventInitTransient)
	s.publish(event.SignalCooldown, event.CodeServiceCooldown, svc.name, err.Error())
}

func (s *Supervisor) register(h Handler) error {
	ev := unix.EpollEvent{Events: h.GetPollFlags(), Fd: int32(h.AsRawFD())}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, h.AsRawFD(), &ev); err != nil {
		return tuneerr.Wrap(tuneerr.IO, "supervisor.epoll_ctl_add", err)
	}
	return nil
}

func (s *Supervisor) unregister(h Handler) {
	_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, h.AsRawFD(), nil)
}

func (s *Supervisor) unregisterAll() {
	for _, svc := range s.svcs {
		if svc.registered && svc.handler != nil {
			s.unregister(svc.handler)
			svc.registered = false
		}
	}
}

// nextBudget computes the epoll_wait timeout: the minimum of every active
// handler's remaining timeout, every cooldown's remaining time, and the
// configured ceiling (spec §4.9).
func (s *Supervisor) nextBudget() time.Duration {
	budget := s.epollCeiling
	now := s.clock.Now()

	for _, svc := range s.svcs {
		switch svc.state() {
		case stateActive:
			if svc.handler == nil {
				continue
			}
			timeoutMS := svc.handler.GetTimeoutMS()
			if timeoutMS < 0 {
				continue
			}
			elapsed := s.clock.Since(svc.lastTick)
			remaining := time.Duration(timeoutMS)*time.Millisecond - elapsed
			if remaining < 0 {
				remaining = 0
			}
			if remaining < budget {
				budget = remaining
			}
		case stateCooldown:
			remaining := clock.ToDuration(svc.cooldownUntil - now)
			if remaining < 0 {
				remaining = 0
			}
			if remaining < budget {
				budget = remaining
			}
		}
	}

	if budget < 0 {
		budget = 0
	}
	return budget
}

func (s *Supervisor) timeoutExpired(svc *service, now clock.MonoTime) bool {
	timeoutMS := svc.handler.GetTimeoutMS()
	if timeoutMS < 0 {
		return false
	}
	return s.clock.Since(svc.lastTick) >= time.Duration(timeoutMS)*time.Millisecond
}

func (s *Supervisor) deliverEvent(svc *service, mask uint32) {
	if err := svc.handler.OnEvent(mask); err != nil {
		s.faultOne(svc, err)
	}
}

func (s *Supervisor) deliverTimeout(svc *service) {
	if err := svc.handler.OnTimeout(); err != nil {
		s.faultOne(svc, err)
	}
}

func (s *Supervisor) faultOne(svc *service, err error) {
	s.publish(event.SignalNone, event.CodeServiceFault, svc.name, err.Error())
	s.faults.Append(event.Event{ID: svc.name, Type: event.CodeServiceFault, Source: svc.name, Timestamp: time.Now()})
	s.checkCorrelatedFaults()
	if tuneerr.IsFatal(err) {
		s.unregister(svc.handler)
		svc.registered = false
		_ = svc.machine.Trigger(context.Background(), eventRuntimeFatal)
		s.publish(event.SignalDisabled, event.CodeServiceDisabled, svc.name, err.Error())
		return
	}
	s.unregister(svc.handler)
	svc.registered = false
	svc.cooldownUntil = s.clock.Now() + clock.FromDuration(s.cooldown)
	_ = svc.machine.Trigger(context.Background(), eventRuntimeTransient)
	s.publish(event.SignalCooldown, event.CodeServiceCooldown, svc.name, err.Error())
}

// checkCorrelatedFaults looks for a cluster of faults across distinct
// services close together in time, which usually points at one shared
// cause rather than independent bugs in each controller.
func (s *Supervisor) checkCorrelatedFaults() {
	s.faults.Trim(10 * time.Minute)
	bursts := s.faults.DetectBursts(burstWindow, burstMinFaults)
	if len(bursts) == 0 {
		return
	}
	if s.bus == nil {
		return
	}
	latest := bursts[len(bursts)-1]
	msg := fmt.Sprintf("%d services faulted within %s, suspect a shared cause", len(latest.Events), burstWindow)
	evt := event.NewErrorEvent(event.CriticalSeverity, event.CodeServiceFault, "supervisor", msg)
	s.bus.Publish(evt)
}
