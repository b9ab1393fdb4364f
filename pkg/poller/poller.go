// Package poller computes each controller's next wake-up interval from
// observed pressure and its derivative, desynchronising controllers with
// jitter so they don't all sample the kernel on the same tick (spec
// §4.3).
package poller

import (
	"math"
	"time"

	"github.com/BYTE-6D65/tunedaemon/pkg/mathutil"
)

const (
	// MinPollingMS and MaxPollingMS bound every Adaptive poller's output.
	MinPollingMS = 3000
	MaxPollingMS = 10000

	sleepToleranceMS    = 2000
	decayCoeff          = 0.3
	hysteresisThreshold = 200
	quantizationStepMS  = 100
	jitterPercent       = 5
)

// Adaptive computes the next polling interval for one controller.
// Not safe for concurrent use; each controller owns one Adaptive poller.
type Adaptive struct {
	wp, wd float64

	current      float64 // ms, last returned interval
	prevPressure float64
	started      bool
	rng          lcg
}

// New returns an Adaptive poller with the given prediction weights,
// seeded from wall-clock nanoseconds at construction (spec §9 — any
// small-state PRNG is an acceptable substitute for the seed source).
func New(weightPressure, weightDerivative float64) *Adaptive {
	return &Adaptive{
		wp:      weightPressure,
		wd:      weightDerivative,
		current: MinPollingMS,
		rng:     newLCG(uint64(time.Now().UnixNano())),
	}
}

// Next computes the next wake interval in milliseconds. pressure is the
// current pressure reading (0..100), elapsed is the wall-clock time
// since the previous tick. The first call (cold start) returns
// MinPollingMS and only records pressure as the baseline.
func (a *Adaptive) Next(pressure float64, elapsed time.Duration) float64 {
	if !a.started {
		a.started = true
		a.current = MinPollingMS
		a.prevPressure = pressure
		return a.current
	}

	elapsedMS := float64(elapsed.Milliseconds())

	if elapsedMS > a.current+sleepToleranceMS {
		// time discontinuity: suspend/resume.
		a.current = MinPollingMS
		a.prevPressure = pressure
		return a.current
	}

	dt := math.Max(elapsedMS, 500)
	velocity := (pressure - a.prevPressure) / dt
	prediction := pressure + velocity

	urgency := mathutil.Clamp(a.wp*prediction+a.wd*math.Abs(velocity), 0, 100)
	raw := MaxPollingMS - (urgency/100)*(MaxPollingMS-MinPollingMS)

	var target float64
	if raw < a.current {
		target = raw
	} else {
		target = a.current + (raw-a.current)*decayCoeff
	}

	if math.Abs(target-a.current) < hysteresisThreshold {
		target = a.current
	}

	quantized := math.Round(target/quantizationStepMS) * quantizationStepMS
	jitterRange := quantized * jitterPercent / 100
	jitter := a.rng.signedFloat() * jitterRange
	result := mathutil.Clamp(quantized+jitter, MinPollingMS, MaxPollingMS)

	a.current = result
	a.prevPressure = pressure
	return result
}

// lcg is a small linear congruential generator used only to desynchronise
// controller sampling; not suitable for any security purpose (spec §9).
type lcg struct {
	state uint64
}

func newLCG(seed uint64) lcg {
	if seed == 0 {
		seed = 1
	}
	return lcg{state: seed}
}

func (l *lcg) next() uint64 {
	l.state = l.state*6364136223846793005 + 1442695040888963407
	return l.state
}

// signedFloat returns a pseudo-random value in [-1, 1].
func (l *lcg) signedFloat() float64 {
	v := l.next() >> 11 // 53 significant bits
	f := float64(v) / float64(1<<53)
	return f*2 - 1
}
