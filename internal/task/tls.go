// tls.go - per-task thread-local storage block
//
// §4.4 TLS: "the TLS block for the target task is lazily created on first
// access (5×u32 region allocated via the current task's guest allocator).
// Index must be in 0..5 or the host aborts with a clear message (programming
// error, not a guest-visible errno)." Grounded on errno.go's identical
// lazy-allocate-on-first-use shape.
package task

import (
	"fmt"

	"github.com/intuitionamiga/proswasmhost/internal/membridge"
)

// TLSSlots is the fixed size of each task's thread-local storage block.
const TLSSlots = 5

// ErrTLSIndexOutOfRange is a host programming error per §6's error
// taxonomy: it indicates a bug in guest-facing glue, not a guest mistake,
// so callers should treat it as fatal rather than routing it through
// errno.
type ErrTLSIndexOutOfRange struct{ Index uint32 }

func (e ErrTLSIndexOutOfRange) Error() string {
	return fmt.Sprintf("tls: index %d out of range [0,%d)", e.Index, TLSSlots)
}

// tlsBlock allocates target's TLS block on first use, via the current
// task's guest allocator (callerID), as the spec directs.
func (rt *Runtime) tlsBlock(bridge *membridge.Bridge, callerID, target uint32) (uint32, error) {
	t := rt.Lookup(target)
	if t == nil {
		return 0, fmt.Errorf("tls: unknown task %d", target)
	}
	if base, ok := t.TLSBase(); ok {
		return base, nil
	}
	base, err := bridge.Alloc(4, TLSSlots*4)
	if err != nil {
		return 0, err
	}
	zero := make([]byte, TLSSlots*4)
	if err := bridge.WriteBytes(base, zero); err != nil {
		return 0, err
	}
	t.SetTLSBase(base)
	return base, nil
}

// GetTLS implements pvTaskGetThreadLocalStoragePointer (§4.4).
func (rt *Runtime) GetTLS(bridge *membridge.Bridge, callerID, target, index uint32) (uint32, error) {
	if index >= TLSSlots {
		return 0, ErrTLSIndexOutOfRange{Index: index}
	}
	base, err := rt.tlsBlock(bridge, callerID, target)
	if err != nil {
		return 0, err
	}
	word, err := bridge.ReadBytes(base+index*4, 4)
	if err != nil {
		return 0, err
	}
	return uint32(word[0]) | uint32(word[1])<<8 | uint32(word[2])<<16 | uint32(word[3])<<24, nil
}

// SetTLS implements vTaskSetThreadLocalStoragePointer (§4.4).
func (rt *Runtime) SetTLS(bridge *membridge.Bridge, callerID, target, index, value uint32) error {
	if index >= TLSSlots {
		return ErrTLSIndexOutOfRange{Index: index}
	}
	base, err := rt.tlsBlock(bridge, callerID, target)
	if err != nil {
		return err
	}
	buf := []byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
	return bridge.WriteBytes(base+index*4, buf)
}
