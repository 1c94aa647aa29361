// rtos.go - RTOS host imports: mutexes, delay, task lifecycle, TLS (§4.4)
package hostapi

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/intuitionamiga/proswasmhost/internal/task"
)

func (s *Surface) mutexCreate(ctx context.Context, mod api.Module) uint32 {
	return s.RT.Mutexes.Create()
}

func (s *Surface) mutexDelete(ctx context.Context, mod api.Module, id uint32) {
	if warning, ok := s.RT.Mutexes.Delete(id); ok && warning != "" {
		s.warn("%s", warning)
	}
}

func (s *Surface) mutexGive(ctx context.Context, mod api.Module, id uint32) uint32 {
	_, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	return boolToU32(s.RT.Mutexes.Give(self, id))
}

func (s *Surface) mutexTake(ctx context.Context, mod api.Module, id, timeoutMs uint32) uint32 {
	_, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	return boolToU32(s.RT.Mutexes.Take(self, id, timeoutMs))
}

func (s *Surface) delay(ctx context.Context, mod api.Module, ms uint32) {
	_, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return
	}
	s.RT.Delay(self, ms)
}

func (s *Surface) taskDelayUntil(ctx context.Context, mod api.Module, prevPtr, deltaMs uint32) {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return
	}
	prevBytes, err := bridge.ReadBytes(prevPtr, 4)
	if err != nil {
		return
	}
	prevMs := uint32(prevBytes[0]) | uint32(prevBytes[1])<<8 | uint32(prevBytes[2])<<16 | uint32(prevBytes[3])<<24
	s.RT.DelayUntil(self, prevMs, deltaMs)
	next := prevMs + deltaMs
	nextBytes := []byte{byte(next), byte(next >> 8), byte(next >> 16), byte(next >> 24)}
	_ = bridge.WriteBytes(prevPtr, nextBytes)
}

// taskCreate implements task_create: spawns a fresh guest instance sharing
// linear memory with the caller, wires its entry to call the guest's
// indirect-callable function at fnIndex, and registers it with the
// scheduler (§4.3, §4.4).
func (s *Surface) taskCreate(ctx context.Context, mod api.Module, fnIndex, argPtr uint32, prio, stack uint32, namePtr uint32) uint32 {
	bridge, _, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	name := ""
	if namePtr != 0 {
		if n, err := bridge.ReadCString(namePtr); err == nil {
			name = n
		}
	}

	id := s.RT.ReserveID()
	guestName := strconvUint(id)
	guest, err := s.Factory.NewInstance(ctx, guestName)
	if err != nil {
		s.warn("task_create: failed to instantiate guest module: %v", err)
		return 0
	}
	s.RegisterGuest(id, guest)

	entry := func(rt *task.Runtime, self uint32) error {
		_, err := guest.CallIndirect(ctx, fnIndex, uint64(argPtr))
		return err
	}

	// PROS priorities are 1-based; the internal scale is 0-based (§4.3).
	internalPrio := int(prio) - 1
	s.RT.SpawnReserved(id, task.Options{Name: name, Priority: internalPrio, Entry: entry})
	return id
}

func (s *Surface) taskDelete(ctx context.Context, mod api.Module, id uint32) {
	if _, _, ok := s.bridgeFor(mod.Name()); !ok {
		return
	}
	s.RT.Delete(id)
}

func (s *Surface) taskGetCurrent(ctx context.Context, mod api.Module) uint32 {
	_, self, _ := s.bridgeFor(mod.Name())
	return self
}

// taskGetName allocates a NUL-terminated copy of the target task's name
// via the calling task's allocator, caching the pointer per (caller,
// target) pair so repeated queries from the same task do not leak guest
// memory on every call (§9 Open Questions: task-name storage lifetime).
func (s *Surface) taskGetName(ctx context.Context, mod api.Module, id uint32) uint32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	t := s.RT.Lookup(id)
	if t == nil {
		return 0
	}

	key := nameCacheKey{requester: self, target: id}
	s.mu.Lock()
	if ptr, cached := s.nameCache[key]; cached {
		s.mu.Unlock()
		return ptr
	}
	s.mu.Unlock()

	ptr, err := bridge.AllocAndWriteCString(t.Name())
	if err != nil {
		fatal("task_get_name: guest allocator failed for task %d: %v", id, err)
	}
	s.mu.Lock()
	s.nameCache[key] = ptr
	s.mu.Unlock()
	return ptr
}

func (s *Surface) millis(ctx context.Context, mod api.Module) uint32 {
	return s.RT.MillisSinceStart()
}

func (s *Surface) getTLS(ctx context.Context, mod api.Module, target, index uint32) uint32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	v, err := s.RT.GetTLS(bridge, self, target, index)
	if err != nil {
		if _, bad := err.(task.ErrTLSIndexOutOfRange); bad {
			fatal("pvTaskGetThreadLocalStoragePointer: %v", err)
		}
		return 0
	}
	return v
}

func (s *Surface) setTLS(ctx context.Context, mod api.Module, target, index, value uint32) {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return
	}
	if err := s.RT.SetTLS(bridge, self, target, index, value); err != nil {
		if _, bad := err.(task.ErrTLSIndexOutOfRange); bad {
			fatal("vTaskSetThreadLocalStoragePointer: %v", err)
		}
	}
}

func (s *Surface) suspendAll(ctx context.Context, mod api.Module) {
	s.RT.SuspendAll()
}

func (s *Surface) resumeAll(ctx context.Context, mod api.Module) uint32 {
	_, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	return boolToU32(s.RT.ResumeAll(self))
}

// strconvUint renders a task id the same way selfFromModuleName parses it
// back, without importing strconv into every call site.
func strconvUint(id uint32) string {
	if id == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	v := id
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
