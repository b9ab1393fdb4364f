// Package pid implements a standard PID controller over an error signal,
// used by the thermal regulator's second-order damping model (spec
// §4.7, §3 "PidController").
package pid

// Controller is a textbook PID controller with integral clamping to
// avoid windup across long sustained errors.
type Controller struct {
	Kp, Ki, Kd float64

	integral    float64
	prevError   float64
	haveLast    bool
	integralMax float64
}

// New returns a Controller with the given gains. integralMax bounds the
// accumulated integral term (0 disables clamping).
func New(kp, ki, kd, integralMax float64) *Controller {
	return &Controller{Kp: kp, Ki: ki, Kd: kd, integralMax: integralMax}
}

// Update advances the controller by one sample: err is the current
// process error (measured − target), dt is the elapsed time in seconds.
// Returns the PID output.
func (c *Controller) Update(err, dt float64) float64 {
	if dt <= 0 {
		dt = 1e-3
	}

	c.integral += err * dt
	if c.integralMax > 0 {
		if c.integral > c.integralMax {
			c.integral = c.integralMax
		} else if c.integral < -c.integralMax {
			c.integral = -c.integralMax
		}
	}

	var derivative float64
	if c.haveLast {
		derivative = (err - c.prevError) / dt
	}
	c.prevError = err
	c.haveLast = true

	return c.Kp*err + c.Ki*c.integral + c.Kd*derivative
}

// Reset clears accumulated integral and derivative history.
func (c *Controller) Reset() {
	c.integral = 0
	c.prevError = 0
	c.haveLast = false
}
