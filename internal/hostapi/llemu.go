// llemu.go - LCD emulator host imports (§4.4, LLEMU)
package hostapi

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/intuitionamiga/proswasmhost/internal/posix"
)

func (s *Surface) lcdInitialize(ctx context.Context, mod api.Module) uint32 {
	if _, _, ok := s.bridgeFor(mod.Name()); !ok {
		return 0
	}
	// Double-initialize is not a guest ABI error the spec assigns an
	// errno to (§4.2); treat it as a no-op failure, not a fault.
	if err := s.LCD.Initialize(); err != nil {
		return 0
	}
	return 1
}

func (s *Surface) lcdSetText(ctx context.Context, mod api.Module, line, ptr uint32) uint32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	text, err := bridge.ReadCString(ptr)
	if err != nil {
		_ = s.RT.SetErrno(bridge, self, posix.EINVAL)
		return 0
	}
	if errno := s.LCD.SetLine(int(line), text); errno != 0 {
		_ = s.RT.SetErrno(bridge, self, int32(errno))
		return 0
	}
	return 1
}

func (s *Surface) lcdClearLine(ctx context.Context, mod api.Module, line uint32) uint32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	if errno := s.LCD.ClearLine(int(line)); errno != 0 {
		_ = s.RT.SetErrno(bridge, self, int32(errno))
		return 0
	}
	return 1
}

func (s *Surface) lcdClear(ctx context.Context, mod api.Module) uint32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	if errno := s.LCD.Clear(); errno != 0 {
		_ = s.RT.SetErrno(bridge, self, int32(errno))
		return 0
	}
	return 1
}

// registerButtonCallback implements lcd_register_btn{0,1,2}_cb. The stored
// callback resolves the CURRENTLY RUNNING task's guest instance at dispatch
// time rather than the registering task's, per §4.5: the System Daemon
// invokes button callbacks "using the current task's indirect table".
func (s *Surface) registerButtonCallback(button int) func(ctx context.Context, mod api.Module, cbIndex uint32) uint32 {
	return func(ctx context.Context, mod api.Module, cbIndex uint32) uint32 {
		_, _, ok := s.bridgeFor(mod.Name())
		if !ok {
			return 0
		}
		if errno := s.LCD.SetButtonCallback(button, func() {
			current := s.RT.Current()
			g := s.guestFor(current)
			if g == nil {
				return
			}
			if _, err := g.CallIndirect(ctx, cbIndex); err != nil {
				s.warn("lcd button callback: %v", err)
			}
		}); errno != 0 {
			return 0
		}
		return 1
	}
}
