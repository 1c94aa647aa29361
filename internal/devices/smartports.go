// smartports.go - smart port registry and typed devices (motor)
//
// update_specs/replace-on-type-change mirrors CoprocessorManager.cmdStart's
// stop-existing-then-create-fresh pattern for a worker slot, generalized
// from "one worker per CPU type" to "one device per port".
package devices

import (
	"fmt"
	"sync"

	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

// DeviceKind tags the variant stored at a smart port.
type DeviceKind int

const (
	KindMotor DeviceKind = iota + 1
)

func (k DeviceKind) String() string {
	switch k {
	case KindMotor:
		return "Motor"
	default:
		return "Unknown"
	}
}

func parseDeviceKind(s string) (DeviceKind, bool) {
	if s == "Motor" {
		return KindMotor, true
	}
	return 0, false
}

// Motor encoder units, matching pros::motor_encoder_units_e_t.
const (
	EncoderDegrees = iota
	EncoderRotations
	EncoderCounts
)

// Motor brake modes, matching pros::motor_brake_mode_e_t.
const (
	BrakeCoast = iota
	BrakeBrake
	BrakeHold
)

func encoderUnitsName(u uint32) string {
	switch u {
	case EncoderDegrees:
		return "degrees"
	case EncoderRotations:
		return "rotations"
	case EncoderCounts:
		return "counts"
	default:
		return "unknown"
	}
}

func brakeModeName(m uint32) string {
	switch m {
	case BrakeCoast:
		return "coast"
	case BrakeBrake:
		return "brake"
	case BrakeHold:
		return "hold"
	default:
		return "unknown"
	}
}

// Device is the common interface every smart-port-attached device
// implements; currently only Motor exists (§3, Smart Ports).
type Device interface {
	Kind() DeviceKind
}

// Motor models a V5 smart motor.
type Motor struct {
	port         uint32
	sink         transport.Sink
	brakeMode    uint32
	encoderUnits uint32
	outputVolts  int8
}

func newMotor(port uint32, sink transport.Sink) *Motor {
	return &Motor{port: port, sink: sink, brakeMode: BrakeCoast, encoderUnits: EncoderDegrees}
}

func (*Motor) Kind() DeviceKind { return KindMotor }

func (m *Motor) emitUpdated() {
	m.sink.Emit(transport.OutputEvent{
		Type:         transport.OutputMotorUpdated,
		Port:         m.port,
		Volts:        m.outputVolts,
		EncoderUnits: encoderUnitsName(m.encoderUnits),
		BrakeMode:    brakeModeName(m.brakeMode),
	})
}

// Move clamps voltage to [-127,127], warning first if clamping occurred,
// then emits MotorUpdated (§4.2, Motor clamping testable property).
func (m *Motor) Move(voltage int32) {
	clamped := voltage
	if clamped > 127 {
		clamped = 127
	} else if clamped < -127 {
		clamped = -127
	}
	if clamped != voltage {
		m.sink.Emit(transport.OutputEvent{
			Type:    transport.OutputWarning,
			Message: fmt.Sprintf("motor_move: voltage %d out of range, clamped to %d", voltage, clamped),
		})
	}
	m.outputVolts = int8(clamped)
	m.emitUpdated()
}

// SetBrakeMode validates and stores the numeric ABI brake mode code.
func (m *Motor) SetBrakeMode(mode uint32) bool {
	if mode != BrakeCoast && mode != BrakeBrake && mode != BrakeHold {
		return false
	}
	m.brakeMode = mode
	m.emitUpdated()
	return true
}

// SetEncoderUnits validates and stores the numeric ABI encoder units code.
func (m *Motor) SetEncoderUnits(units uint32) bool {
	if units != EncoderDegrees && units != EncoderRotations && units != EncoderCounts {
		return false
	}
	m.encoderUnits = units
	m.emitUpdated()
	return true
}

// ErrPortNotConfigured is returned when a port has no attached device.
type ErrPortNotConfigured struct{ Port uint32 }

func (e ErrPortNotConfigured) Error() string { return fmt.Sprintf("smartports: port %d not configured", e.Port) }

// ErrIncorrectDeviceType is returned when the device at a port does not
// match the type the caller expected.
type ErrIncorrectDeviceType struct {
	Port uint32
	Want DeviceKind
	Have DeviceKind
}

func (e ErrIncorrectDeviceType) Error() string {
	return fmt.Sprintf("smartports: port %d is a %s, not a %s", e.Port, e.Have, e.Want)
}

// SmartPorts is the port -> device registry.
type SmartPorts struct {
	mu      sync.Mutex
	devices map[uint32]Device
	sink    transport.Sink
}

func NewSmartPorts(sink transport.Sink) *SmartPorts {
	return &SmartPorts{devices: make(map[uint32]Device), sink: sink}
}

// UpdateSpecs replaces the device at each named port with a fresh instance
// whenever the specced kind differs from (or there is no) current device.
// Ports named in raw that parse to an unrecognized kind are skipped with a
// Warning event rather than failing the whole update.
func (s *SmartPorts) UpdateSpecs(raw map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for portStr, kindStr := range raw {
		port, ok := parsePort(portStr)
		if !ok {
			s.sink.Emit(transport.OutputEvent{Type: transport.OutputWarning, Message: fmt.Sprintf("smartports: invalid port %q", portStr)})
			continue
		}
		kind, ok := parseDeviceKind(kindStr)
		if !ok {
			s.sink.Emit(transport.OutputEvent{Type: transport.OutputWarning, Message: fmt.Sprintf("smartports: unsupported device kind %q for port %d", kindStr, port)})
			continue
		}
		if existing, ok := s.devices[port]; ok && existing.Kind() == kind {
			continue
		}
		switch kind {
		case KindMotor:
			s.devices[port] = newMotor(port, s.sink)
		}
	}
}

func parsePort(s string) (uint32, bool) {
	var n uint32
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint32(c-'0')
	}
	return n, true
}

// Get returns the device at port, or ErrPortNotConfigured.
func (s *SmartPorts) Get(port uint32) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[port]
	if !ok {
		return nil, ErrPortNotConfigured{Port: port}
	}
	return d, nil
}

// Motor returns the Motor at port, or an error if unconfigured or of the
// wrong type.
func (s *SmartPorts) Motor(port uint32) (*Motor, error) {
	d, err := s.Get(port)
	if err != nil {
		return nil, err
	}
	m, ok := d.(*Motor)
	if !ok {
		return nil, ErrIncorrectDeviceType{Port: port, Want: KindMotor, Have: d.Kind()}
	}
	return m, nil
}

// WithMotor runs fn against the motor at port while holding the registry
// lock, so mutation and the ErrPortNotConfigured/ErrIncorrectDeviceType
// checks are atomic with respect to concurrent UpdateSpecs calls.
func (s *SmartPorts) WithMotor(port uint32, fn func(*Motor)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[port]
	if !ok {
		return ErrPortNotConfigured{Port: port}
	}
	m, ok := d.(*Motor)
	if !ok {
		return ErrIncorrectDeviceType{Port: port, Want: KindMotor, Have: d.Kind()}
	}
	fn(m)
	return nil
}
