// controllers.go - master/partner V5 controller device model
package devices

import (
	"sync"

	"github.com/intuitionamiga/proswasmhost/internal/posix"
	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

// Controller ids, matching the PROS header exactly (spec.md §6).
const (
	ControllerMaster  = 1
	ControllerPartner = 2
)

// Digital button ids, matching the PROS header's pros::controller_digital_e_t.
const (
	DigitalL1 = iota
	DigitalL2
	DigitalR1
	DigitalR2
	DigitalUp
	DigitalDown
	DigitalLeft
	DigitalRight
	DigitalX
	DigitalB
	DigitalY
	DigitalA
	digitalCount
)

// Analog channel ids, matching pros::controller_analog_e_t.
const (
	AnalogLeftX = iota
	AnalogLeftY
	AnalogRightX
	AnalogRightY
	analogCount
)

type controllerState struct {
	connected  bool
	digital    [digitalCount]bool
	analog     [analogCount]int8
	newPresses [digitalCount]bool
}

func (c *controllerState) update(digital [digitalCount]bool, analog [analogCount]int8) {
	for b := 0; b < digitalCount; b++ {
		if digital[b] && !c.digital[b] {
			c.newPresses[b] = true
		}
	}
	c.digital = digital
	c.analog = analog
	c.connected = true
}

// Controllers models the master and partner V5 controller inputs.
type Controllers struct {
	mu      sync.Mutex
	master  controllerState
	partner controllerState
}

func NewControllers() *Controllers {
	return &Controllers{}
}

func (c *Controllers) stateFor(id int) *controllerState {
	switch id {
	case ControllerMaster:
		return &c.master
	case ControllerPartner:
		return &c.partner
	default:
		return nil
	}
}

// Update merges new digital/analog snapshots into a controller, computing
// rising-edge new-presses (§4.2).
func (c *Controllers) Update(id int, digital [digitalCount]bool, analog [analogCount]int8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.stateFor(id); s != nil {
		s.update(digital, analog)
	}
}

// GetDigital returns (pressed, errno). An absent controller reads as not
// pressed, not an error (§4.2).
func (c *Controllers) GetDigital(id, button int) (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if button < 0 || button >= digitalCount {
		return false, posix.EINVAL
	}
	s := c.stateFor(id)
	if s == nil {
		return false, posix.EINVAL
	}
	if !s.connected {
		return false, 0
	}
	return s.digital[button], 0
}

// GetDigitalNewPress reads and clears the edge bit atomically.
func (c *Controllers) GetDigitalNewPress(id, button int) (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if button < 0 || button >= digitalCount {
		return false, posix.EINVAL
	}
	s := c.stateFor(id)
	if s == nil {
		return false, posix.EINVAL
	}
	pressed := s.newPresses[button]
	s.newPresses[button] = false
	return pressed, 0
}

// GetAnalog returns (value, errno). An absent controller reads as 0, not an
// error.
func (c *Controllers) GetAnalog(id, channel int) (int8, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel < 0 || channel >= analogCount {
		return 0, posix.EINVAL
	}
	s := c.stateFor(id)
	if s == nil {
		return 0, posix.EINVAL
	}
	if !s.connected {
		return 0, 0
	}
	return s.analog[channel], 0
}

// IsConnected reports whether id has ever received an update.
func (c *Controllers) IsConnected(id int) (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stateFor(id)
	if s == nil {
		return false, posix.EINVAL
	}
	return s.connected, 0
}

// digitalFromWire converts a wire-format ControllerDigital into the
// bool-array encoding used internally.
func digitalFromWire(d transport.ControllerDigital) [digitalCount]bool {
	var out [digitalCount]bool
	out[DigitalL1] = d.L1
	out[DigitalL2] = d.L2
	out[DigitalR1] = d.R1
	out[DigitalR2] = d.R2
	out[DigitalUp] = d.Up
	out[DigitalDown] = d.Down
	out[DigitalLeft] = d.Left
	out[DigitalRight] = d.Right
	out[DigitalX] = d.X
	out[DigitalB] = d.B
	out[DigitalY] = d.Y
	out[DigitalA] = d.A
	return out
}

func analogFromWire(a transport.ControllerAnalog) [analogCount]int8 {
	var out [analogCount]int8
	out[AnalogLeftX] = a.LeftX
	out[AnalogLeftY] = a.LeftY
	out[AnalogRightX] = a.RightX
	out[AnalogRightY] = a.RightY
	return out
}

// ApplyWireUpdate applies a transport.ControllerState update, if present,
// for the given controller id. Used by the System Daemon when draining
// ControllerUpdate messages.
func (c *Controllers) ApplyWireUpdate(id int, state *transport.ControllerState) {
	if state == nil {
		return
	}
	c.Update(id, digitalFromWire(state.Digital), analogFromWire(state.Analog))
}
