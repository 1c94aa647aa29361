// motors.go - smart motor host imports (§4.4, Motors)
package hostapi

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/intuitionamiga/proswasmhost/internal/devices"
	"github.com/intuitionamiga/proswasmhost/internal/posix"
)

func (s *Surface) motorMove(ctx context.Context, mod api.Module, port uint32, voltage int32) int32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return -1
	}
	err := s.Ports.WithMotor(port, func(m *devices.Motor) { m.Move(voltage) })
	if err != nil {
		_ = s.RT.SetErrno(bridge, self, errnoForPortErr(err))
		return -1
	}
	return 1
}

func (s *Surface) motorSetBrakeMode(ctx context.Context, mod api.Module, port, mode uint32) int32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return -1
	}
	var accepted bool
	err := s.Ports.WithMotor(port, func(m *devices.Motor) { accepted = m.SetBrakeMode(mode) })
	if err != nil {
		_ = s.RT.SetErrno(bridge, self, errnoForPortErr(err))
		return -1
	}
	if !accepted {
		_ = s.RT.SetErrno(bridge, self, posix.EINVAL)
		return -1
	}
	return 1
}

func (s *Surface) motorSetEncoderUnits(ctx context.Context, mod api.Module, port, units uint32) int32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return -1
	}
	var accepted bool
	err := s.Ports.WithMotor(port, func(m *devices.Motor) { accepted = m.SetEncoderUnits(units) })
	if err != nil {
		_ = s.RT.SetErrno(bridge, self, errnoForPortErr(err))
		return -1
	}
	if !accepted {
		_ = s.RT.SetErrno(bridge, self, posix.EINVAL)
		return -1
	}
	return 1
}
