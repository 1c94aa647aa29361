// errno.go - per-task errno cell and the Result<T,i32> ABI helper
//
// §4.4 Errno: "Per-task lazily allocated guest cell. Host-side set_errno(code)
// writes the code; __errno() returns the cell address. A Result<T, i32>
// helper converts Err(code) into a write to errno and returns a configured
// fallback (false, 0, ...) so guest ABI signatures stay stable." Grounded on
// the same lazy-allocate-on-first-use shape as TLS (tls.go) and file_io.go's
// host-writes-guest-buffer pattern for the actual little-endian store.
package task

import "github.com/intuitionamiga/proswasmhost/internal/membridge"

// ErrnoCell returns the guest address of self's errno cell, allocating it
// on first use via bridge's guest allocator trampoline.
func (rt *Runtime) ErrnoCell(bridge *membridge.Bridge, self uint32) (uint32, error) {
	t := rt.Lookup(self)
	if t == nil {
		return 0, nil
	}
	if ptr, ok := t.ErrnoPtr(); ok {
		return ptr, nil
	}
	ptr, err := bridge.Alloc(4, 4)
	if err != nil {
		return 0, err
	}
	t.SetErrnoPtr(ptr)
	return ptr, nil
}

// SetErrno writes code into self's errno cell (allocating it if needed),
// little-endian, per the Errno Cell data model (§3).
func (rt *Runtime) SetErrno(bridge *membridge.Bridge, self uint32, code int32) error {
	ptr, err := rt.ErrnoCell(bridge, self)
	if err != nil {
		return err
	}
	if ptr == 0 {
		return nil
	}
	buf := []byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)}
	return bridge.WriteBytes(ptr, buf)
}

// ResultU32 implements the §4.4 Result<T,i32> ABI helper for the common case
// of a u32-returning host call: on success it returns value unchanged; on
// failure it writes errCode to self's errno cell and returns fallback.
func ResultU32(rt *Runtime, bridge *membridge.Bridge, self uint32, value uint32, errCode int32, ok bool, fallback uint32) uint32 {
	if ok {
		return value
	}
	_ = rt.SetErrno(bridge, self, errCode)
	return fallback
}

// ResultI32 is ResultU32's signed-return counterpart, for calls shaped like
// write() that return -1 on failure.
func ResultI32(rt *Runtime, bridge *membridge.Bridge, self uint32, value int32, errCode int32, ok bool, fallback int32) int32 {
	if ok {
		return value
	}
	_ = rt.SetErrno(bridge, self, errCode)
	return fallback
}
