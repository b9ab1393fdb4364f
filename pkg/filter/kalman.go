// Package filter implements the one-dimensional Kalman-style innovation
// filter used to denoise PSI and probe measurements (spec §4.2). It keeps
// only the 32-bit fixed-ring variant; the vestigial 64-bit dynamic-ring
// filter from the original source is not reproduced (spec §9).
package filter

import (
	"math"

	"github.com/BYTE-6D65/tunedaemon/pkg/mathutil"
)

const (
	ringSize    = 16
	fadingFactor = 1.0
	qBase        = 0.01
	rBase        = 1.0
	gapResetSecs = 5.0
	nisThreshold = 2.0
	nisClamp     = 10.0
)

// Kalman is a scalar innovation filter with adaptive measurement noise.
// Zero value is not ready for use; construct with New.
type Kalman struct {
	x float64 // posterior mean
	p float64 // posterior variance

	nis float64 // last normalized innovation squared

	ring   [ringSize]float64
	filled int
	next   int

	firstRun bool
}

// New returns a filter in its first-run state.
func New() *Kalman {
	return &Kalman{firstRun: true}
}

// State returns the current posterior mean.
func (k *Kalman) State() float64 { return k.x }

// Variance returns the current posterior variance.
func (k *Kalman) Variance() float64 { return k.p }

// NIS returns the last normalized innovation squared.
func (k *Kalman) NIS() float64 { return k.nis }

// FirstRun reports whether the next Update will seed state from the
// measurement rather than filtering it.
func (k *Kalman) FirstRun() bool { return k.firstRun }

// Reset restores the filter to its first-run state, as happens after a
// sampling gap greater than 5s (resume-from-sleep, spec §3).
func (k *Kalman) Reset() {
	*k = Kalman{firstRun: true}
}

// Update processes measurement z observed dtSeconds after the previous
// call and returns the filtered value. Non-finite z is rejected (the
// previous state is returned unchanged). A gap of more than 5s resets the
// filter before processing the measurement as a fresh first run.
func (k *Kalman) Update(z, dtSeconds float64) float64 {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return k.x
	}
	if dtSeconds > gapResetSecs {
		k.Reset()
	}
	if k.firstRun {
		k.x = mathutil.Clamp(z, 0, 100)
		k.p = rBase
		k.firstRun = false
		k.pushInnovation(0)
		return k.x
	}

	qProcess := qBase * dtSeconds
	pPred := fadingFactor*k.p + qProcess

	y := z - k.x
	k.pushInnovation(y)

	rEff := math.Max(k.innovationMeanSquare()-pPred, rBase)

	nis := (y * y) / (pPred + rEff)
	k.nis = nis
	if nis > nisThreshold {
		scale := math.Min(nis, nisClamp)
		qAdaptive := qProcess * scale
		pPred += math.Max(qAdaptive-qProcess, 0)
	}

	gain := pPred / (pPred + rEff)
	k.x = mathutil.Clamp(k.x+gain*y, 0, 100)
	k.p = (1 - gain) * pPred

	return k.x
}

func (k *Kalman) pushInnovation(y float64) {
	k.ring[k.next] = y
	k.next = (k.next + 1) % ringSize
	if k.filled < ringSize {
		k.filled++
	}
}

func (k *Kalman) innovationMeanSquare() float64 {
	if k.filled == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < k.filled; i++ {
		sum += k.ring[i] * k.ring[i]
	}
	return sum / float64(k.filled)
}
