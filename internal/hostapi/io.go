// io.go - generic I/O host imports: errno, abort, backtrace, puts, write,
// exit (§4.4, Generic I/O). Grounded on terminal_output.go's
// write-then-emit-event shape and debug_backtrace.go's capture-on-fault
// pattern, adapted from a CPU interpreter's fault path to a single WASM
// call stack.
package hostapi

import (
	"context"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero/api"

	"github.com/intuitionamiga/proswasmhost/internal/posix"
	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

func (s *Surface) errnoPtr(ctx context.Context, mod api.Module) uint32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	ptr, err := s.RT.ErrnoCell(bridge, self)
	if err != nil {
		fatal("__errno: guest allocator failed for task %d: %v", self, err)
	}
	return ptr
}

// backtraceFor builds a minimal synthetic call stack: the simulator has no
// native unwinder for guest WASM frames, so the backtrace records the
// scheduling context instead (task id, name) rather than fabricating frame
// addresses that would not correspond to anything a developer could use.
func (s *Surface) backtraceFor(self uint32) []string {
	t := s.RT.Lookup(self)
	if t == nil {
		return []string{fmt.Sprintf("task %d (unknown)", self)}
	}
	return []string{fmt.Sprintf("task %d (%s)", t.ID(), t.Name())}
}

func (s *Surface) simAbort(ctx context.Context, mod api.Module, msgPtr uint32) {
	bridge, self, ok := s.bridgeFor(mod.Name())
	msg := "sim_abort"
	if ok {
		if text, err := bridge.ReadCString(msgPtr); err == nil {
			msg = text
		}
	}
	s.Sink.Emit(transport.OutputEvent{
		Type:      transport.OutputRobotCodeError,
		Message:   msg,
		Backtrace: s.backtraceFor(self),
	})
	os.Exit(1)
}

func (s *Surface) simLogBacktrace(ctx context.Context, mod api.Module) {
	_, self, _ := s.bridgeFor(mod.Name())
	s.Sink.Emit(transport.OutputEvent{
		Type:    transport.OutputConsoleMessage,
		Message: fmt.Sprintf("backtrace: %v", s.backtraceFor(self)),
	})
}

func (s *Surface) puts(ctx context.Context, mod api.Module, ptr uint32) uint32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return 0
	}
	text, err := bridge.ReadCString(ptr)
	if err != nil {
		_ = s.RT.SetErrno(bridge, self, posix.EINVAL)
		return 0
	}
	s.Sink.Emit(transport.OutputEvent{Type: transport.OutputConsoleMessage, Message: text + "\n"})
	return 1
}

func (s *Surface) write(ctx context.Context, mod api.Module, fd, ptr, count uint32) int32 {
	bridge, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return -1
	}
	if fd != 1 && fd != 2 {
		_ = s.RT.SetErrno(bridge, self, posix.EBADF)
		return -1
	}
	data, err := bridge.ReadBytes(ptr, count)
	if err != nil {
		_ = s.RT.SetErrno(bridge, self, posix.EINVAL)
		return -1
	}
	s.Sink.Emit(transport.OutputEvent{Type: transport.OutputConsoleMessage, Message: string(data)})
	return int32(count)
}

// exit implements the exit() import: it requests shutdown and yields,
// relying on the driver loop's shutdown check (checked before a task is
// ever resumed again) to keep this task parked forever, matching §4.4's
// "never returns".
func (s *Surface) exit(ctx context.Context, mod api.Module, code int32) {
	_, self, ok := s.bridgeFor(mod.Name())
	if !ok {
		return
	}
	if code != 0 {
		s.Sink.Emit(transport.OutputEvent{
			Type:    transport.OutputConsoleMessage,
			Message: fmt.Sprintf("exit(%d)", code),
		})
	}
	s.RT.RequestShutdown()
	s.RT.Yield(self)
}
