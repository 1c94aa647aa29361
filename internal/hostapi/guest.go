// guest.go - per-task guest module instance abstraction
//
// Each task gets its own store/instance (data model §3), but all instances
// share one host-owned linear memory, since the guest module declares
// memory as an import rather than an export. Guest wraps one such instance;
// Factory is how Surface asks for a new one when task_create spawns a task.
// Grounded on wazerolift's engine.go pattern of caching a module's exported
// functions (_allocate/_deallocate/compile_function) by name at
// instantiation time, generalized to hold every host-needed accessor.
package hostapi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/sync/semaphore"

	"github.com/intuitionamiga/proswasmhost/internal/membridge"
)

// Guest is one task's wasm module instance plus the guest-exported
// allocator trampoline and indirect-call access it offers the host.
type Guest interface {
	// Bridge returns the Guest Memory Bridge bound to this instance's
	// memory and allocator.
	Bridge() *membridge.Bridge

	// CallIndirect invokes the guest function conventionally addressed by
	// the given indirect-table index (§4.4, task_create/lcd_register_*).
	// wazero's public api.Table does not expose calling a table element by
	// reference, so the indirect table is modeled as the set of guest
	// exports named by their decimal index; the guest toolchain is
	// expected to export each indirectly-callable function under that
	// name in addition to any human-readable export name it also carries.
	CallIndirect(ctx context.Context, index uint32, args ...uint64) ([]uint64, error)

	// HasExport reports whether the guest exports a function under name,
	// without calling it.
	HasExport(name string) bool

	// CallExport invokes a guest function by its human-readable export
	// name (initialize, opcontrol, autonomous, disabled,
	// competition_initialize). Calling a name the guest does not export is
	// a programming error in the caller, which should check HasExport
	// first.
	CallExport(ctx context.Context, name string, args ...uint64) ([]uint64, error)

	Close(ctx context.Context) error
}

// Factory instantiates fresh guest module instances sharing the same
// compiled module and linear memory, one per task.
type Factory interface {
	NewInstance(ctx context.Context, name string) (Guest, error)
}

// wazeroGuest is the Factory-produced Guest backed by a wazero api.Module.
type wazeroGuest struct {
	mod     api.Module
	bridge  *membridge.Bridge
	release func()
}

func newWazeroGuest(mod api.Module, release func()) *wazeroGuest {
	g := &wazeroGuest{mod: mod, release: release}
	g.bridge = membridge.New(mod.Memory(), (*wazeroAllocator)(g))
	return g
}

func (g *wazeroGuest) Bridge() *membridge.Bridge { return g.bridge }

func (g *wazeroGuest) CallIndirect(ctx context.Context, index uint32, args ...uint64) ([]uint64, error) {
	fn := g.mod.ExportedFunction(strconv.FormatUint(uint64(index), 10))
	if fn == nil {
		return nil, fmt.Errorf("hostapi: no indirect-callable export for index %d", index)
	}
	return fn.Call(ctx, args...)
}

func (g *wazeroGuest) HasExport(name string) bool {
	return g.mod.ExportedFunction(name) != nil
}

func (g *wazeroGuest) CallExport(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := g.mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("hostapi: guest does not export %q", name)
	}
	return fn.Call(ctx, args...)
}

func (g *wazeroGuest) Close(ctx context.Context) error {
	if g.release != nil {
		defer g.release()
	}
	return g.mod.Close(ctx)
}

// wazeroAllocator adapts a wazeroGuest's module exports to
// membridge.Allocator by calling the guest-exported wasm_memalign/wasm_free
// trampolines (§4.1, Guest Allocator Handle).
type wazeroAllocator wazeroGuest

func (a *wazeroAllocator) Memalign(align, size uint32) (uint32, error) {
	fn := a.mod.ExportedFunction("wasm_memalign")
	if fn == nil {
		return 0, fmt.Errorf("hostapi: guest does not export wasm_memalign")
	}
	res, err := fn.Call(context.Background(), uint64(align), uint64(size))
	if err != nil {
		return 0, err
	}
	return uint32(res[0]), nil
}

func (a *wazeroAllocator) Free(ptr uint32) error {
	fn := a.mod.ExportedFunction("wasm_free")
	if fn == nil {
		return fmt.Errorf("hostapi: guest does not export wasm_free")
	}
	_, err := fn.Call(context.Background(), uint64(ptr))
	return err
}

// defaultMaxLiveInstances bounds how many guest module instances may be
// simultaneously alive, the way a real VEX brain bounds how many execution
// contexts it keeps resident at once; each instance carries its own globals
// and allocator bookkeeping (§3), so an unbounded number of never-closed
// instances would grow without limit across a long-running simulation.
const defaultMaxLiveInstances = 256

// WazeroFactory instantiates fresh copies of one compiled guest module
// against one wazero Runtime, giving every task its own store/instance
// while they all share the memory exported by the "env" host module
// (§3, per-task store/instance over one Shared Linear Memory).
type WazeroFactory struct {
	Runtime  wazero.Runtime
	Compiled wazero.CompiledModule

	sem *semaphore.Weighted
}

// NewWazeroFactory builds a factory that bounds concurrently-alive guest
// instances to maxLive via a weighted semaphore, releasing a slot when a
// Guest's Close is called.
func NewWazeroFactory(rt wazero.Runtime, compiled wazero.CompiledModule, maxLive int64) *WazeroFactory {
	if maxLive <= 0 {
		maxLive = defaultMaxLiveInstances
	}
	return &WazeroFactory{Runtime: rt, Compiled: compiled, sem: semaphore.NewWeighted(maxLive)}
}

func (f *WazeroFactory) NewInstance(ctx context.Context, name string) (Guest, error) {
	if f.sem == nil {
		f.sem = semaphore.NewWeighted(defaultMaxLiveInstances)
	}
	if !f.sem.TryAcquire(1) {
		return nil, fmt.Errorf("hostapi: too many live guest instances")
	}
	mod, err := f.Runtime.InstantiateModule(ctx, f.Compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		f.sem.Release(1)
		return nil, err
	}
	released := false
	release := func() {
		if !released {
			released = true
			f.sem.Release(1)
		}
	}
	return newWazeroGuest(mod, release), nil
}
