// surface.go - links the Host API Surface (§4.4) against the task runtime
// and device models, and tracks per-task guest instances.
//
// Every host function re-derives its state from a per-call context (the
// calling task's id, recovered from the wazero module's instance name)
// rather than closing over anything at link time, per §9's "stateless call
// surface" design note.
package hostapi

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/intuitionamiga/proswasmhost/internal/devices"
	"github.com/intuitionamiga/proswasmhost/internal/membridge"
	"github.com/intuitionamiga/proswasmhost/internal/posix"
	"github.com/intuitionamiga/proswasmhost/internal/task"
	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

// Surface wires every §4.4 host function against live state. It is the one
// piece of the system every "env" import resolves through.
type Surface struct {
	RT          *task.Runtime
	LCD         *devices.LCD
	Controllers *devices.Controllers
	Phase       *devices.CompetitionPhase
	Ports       *devices.SmartPorts
	Sink        transport.Sink
	Factory     Factory

	mu         sync.Mutex
	guests     map[uint32]Guest
	nameCache  map[nameCacheKey]uint32
}

type nameCacheKey struct {
	requester uint32
	target    uint32
}

func NewSurface(rt *task.Runtime, lcd *devices.LCD, ctrl *devices.Controllers, phase *devices.CompetitionPhase, ports *devices.SmartPorts, sink transport.Sink, factory Factory) *Surface {
	return &Surface{
		RT: rt, LCD: lcd, Controllers: ctrl, Phase: phase, Ports: ports, Sink: sink, Factory: factory,
		guests:    make(map[uint32]Guest),
		nameCache: make(map[nameCacheKey]uint32),
	}
}

// RegisterGuest records which Guest instance belongs to a task id, so later
// host calls originating from that task (identified via its module's name)
// can recover the right bridge and instance.
func (s *Surface) RegisterGuest(id uint32, g Guest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guests[id] = g
}

func (s *Surface) guestFor(id uint32) Guest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guests[id]
}

// selfFromModuleName recovers the calling task's id from the instance name
// assigned at InstantiateModule time (taskCreate and the daemon's
// spawnEntrypoint name every guest instance after its task id).
func selfFromModuleName(name string) (uint32, bool) {
	n, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// bridgeFor returns the Guest Memory Bridge for the task currently making a
// host call, identified by the wazero module instance name.
func (s *Surface) bridgeFor(moduleName string) (*membridge.Bridge, uint32, bool) {
	self, ok := selfFromModuleName(moduleName)
	if !ok {
		return nil, 0, false
	}
	g := s.guestFor(self)
	if g == nil {
		return nil, self, false
	}
	return g.Bridge(), self, true
}

// fatal reports a host programming error (§7, taxonomy item 3) and aborts
// the host process. These indicate a bug in the host's own bookkeeping, not
// guest misbehavior, so there is nothing to recover into.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// warn emits a Warning event, the host's general-purpose "something is
// wrong but recoverable" channel.
func (s *Surface) warn(format string, args ...any) {
	s.Sink.Emit(transport.OutputEvent{Type: transport.OutputWarning, Message: fmt.Sprintf(format, args...)})
}

// errnoForPortErr maps a smart-ports error to the POSIX code §7 assigns
// guest ABI precondition violations: an unconfigured port has "no such
// device", a misconfigured one has "invalid argument".
func errnoForPortErr(err error) int32 {
	switch err.(type) {
	case devices.ErrPortNotConfigured:
		return posix.ENXIO
	case devices.ErrIncorrectDeviceType:
		return posix.EINVAL
	default:
		return posix.EINVAL
	}
}
