// misc.go - controller and competition-phase host imports (§4.4, Misc)
package hostapi

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

const batteryLevelConstant = 100

func (s *Surface) controllerGetAnalog(ctx context.Context, mod api.Module, id, channel uint32) int32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	v, errno := s.Controllers.GetAnalog(int(id), int(channel))
	if errno != 0 {
		_ = s.RT.SetErrno(bridge, self, int32(errno))
		return 0
	}
	return int32(v)
}

func (s *Surface) controllerGetDigital(ctx context.Context, mod api.Module, id, btn uint32) int32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	v, errno := s.Controllers.GetDigital(int(id), int(btn))
	if errno != 0 {
		_ = s.RT.SetErrno(bridge, self, int32(errno))
		return 0
	}
	return boolToI32(v)
}

func (s *Surface) controllerGetDigitalNewPress(ctx context.Context, mod api.Module, id, btn uint32) int32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	v, errno := s.Controllers.GetDigitalNewPress(int(id), int(btn))
	if errno != 0 {
		_ = s.RT.SetErrno(bridge, self, int32(errno))
		return 0
	}
	return boolToI32(v)
}

func (s *Surface) controllerIsConnected(ctx context.Context, mod api.Module, id uint32) int32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	v, errno := s.Controllers.IsConnected(int(id))
	if errno != 0 {
		_ = s.RT.SetErrno(bridge, self, int32(errno))
		return 0
	}
	return boolToI32(v)
}

// controllerGetBattery backs both controller_get_battery_capacity and
// controller_get_battery_level: the simulator has no real battery, so both
// report the constant full-charge value (§4.4).
func (s *Surface) controllerGetBattery(ctx context.Context, mod api.Module, id uint32) int32 {
	return batteryLevelConstant
}

func (s *Surface) competitionGetStatus(ctx context.Context, mod api.Module) int32 {
	return int32(s.Phase.AsBits())
}

func (s *Surface) competitionIsAutonomous(ctx context.Context, mod api.Module) int32 {
	autonomous, _, _ := s.Phase.Snapshot()
	return boolToI32(autonomous)
}

func (s *Surface) competitionIsConnected(ctx context.Context, mod api.Module) int32 {
	_, _, isCompetition := s.Phase.Snapshot()
	return boolToI32(isCompetition)
}

func (s *Surface) competitionIsDisabled(ctx context.Context, mod api.Module) int32 {
	_, enabled, _ := s.Phase.Snapshot()
	return boolToI32(!enabled)
}
