package event

import "time"

// Control event types (published to the internal error/control bus)
const (
	EventTypeThermalThrottle = "control.thermal.throttle"
	EventTypeSwapAdjust      = "control.memory.swappiness"
	EventTypeQueueAdjust     = "control.storage.queue_depth"
	EventTypeServiceCooldown = "control.service.cooldown"
	EventTypeServiceDisabled = "control.service.disabled"
	EventTypeTierOverride    = "control.tier.override"
)

// ThermalDampingCommand records a damping-scalar change from the thermal
// regulator.
//
// The CPU handler reads damping as the thermal scale of its targets:
//   - 1.0 = no throttling
//   - 0.2 = hard battery limit reached (spec §4.7)
//   - 0.1 = regulator floor
//
// Example:
//
//	cmd := ThermalDampingCommand{
//	    Damping:   0.2,
//	    CPUTempC:  78.4,
//	    BatTempC:  45.0,
//	    Reason:    "battery at hard limit",
//	    Timestamp: time.Now(),
//	}
//	evt := NewControlEvent(EventTypeThermalThrottle, cmd)
type ThermalDampingCommand struct {
	Damping   float64   `json:"damping"`
	CPUTempC  float64   `json:"cpu_temp_c"`
	BatTempC  float64   `json:"bat_temp_c"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// SwapAdjustCommand records a swappiness target change from the memory
// controller.
//
// Example:
//
//	cmd := SwapAdjustCommand{
//	    Swappiness: 40,
//	    Reason:     "reclaim efficiency dropped below 0.3",
//	    Timestamp:  time.Now(),
//	}
type SwapAdjustCommand struct {
	Swappiness uint64    `json:"swappiness"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// QueueDepthCommand records an nr_requests change from the storage
// controller.
//
// Example:
//
//	cmd := QueueDepthCommand{
//	    NRRequests: 32,
//	    Critical:   true,
//	    Reason:     "io.pressure above critical threshold",
//	    Timestamp:  time.Now(),
//	}
type QueueDepthCommand struct {
	NRRequests uint64    `json:"nr_requests"`
	Critical   bool      `json:"critical"` // forced by congestion, bypassing hysteresis
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// ServiceCooldownCommand records a supervised service entering cooldown
// after a non-fatal init or runtime failure (spec §4.9, §7).
//
// Example:
//
//	cmd := ServiceCooldownCommand{
//	    Service:   "cpu",
//	    Until:     time.Now().Add(5 * time.Second),
//	    Reason:    "psi parse error reading /proc/pressure/cpu",
//	    Timestamp: time.Now(),
//	}
type ServiceCooldownCommand struct {
	Service   string    `json:"service"`
	Until     time.Time `json:"until"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ServiceDisabledCommand records a supervised service being permanently
// disabled after a fatal init failure (not-found, permission-denied, or
// system-check-failed; spec §7).
//
// Example:
//
//	cmd := ServiceDisabledCommand{
//	    Service:   "storage",
//	    Reason:    "sysfs path does not exist on this kernel",
//	    Timestamp: time.Now(),
//	}
type ServiceDisabledCommand struct {
	Service   string    `json:"service"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// TierOverrideCommand records the device tier resolved at startup, whether
// from TUNED_TIER or hardware detection.
//
// Example:
//
//	cmd := TierOverrideCommand{
//	    Tier:      "mid_range",
//	    FromEnv:   false,
//	    Timestamp: time.Now(),
//	}
type TierOverrideCommand struct {
	Tier      string    `json:"tier"`
	FromEnv   bool      `json:"from_env"`
	Timestamp time.Time `json:"timestamp"`
}

// NewControlEvent creates a control event with the given type and payload.
//
// The event is automatically populated with:
//   - Unique ID
//   - Source: "tunedaemon" (can be overridden via SetSource)
//   - Timestamp: Current time
//
// Example:
//
//	evt := NewControlEvent(EventTypeSwapAdjust, SwapAdjustCommand{
//	    Swappiness: 40,
//	    Reason:     "reclaim efficiency dropped",
//	})
//	evt.SetSource("memory-controller") // Override source if needed
func NewControlEvent(eventType string, payload any) *Event {
	evt, err := NewEvent(eventType, "tunedaemon", payload, JSONCodec{})
	if err != nil {
		// Should not happen with valid payloads
		panic(err)
	}
	return evt
}

// SetSource overrides the source of a control event.
func (e *Event) SetSource(source string) {
	e.Source = source
}
