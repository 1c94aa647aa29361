// bridge.go - Guest Memory Bridge
//
// All host<->guest pointer traffic flows through this package so bounds
// policy and UTF-8 policy are enforced in exactly one place, the way
// memory_bus.go centralises bounds-checked 32-bit access for the teacher's
// CPU cores. Unlike memory_bus.go's SystemBus, which guards every access
// with a sync.RWMutex, access here is relaxed: the spec's Shared Linear
// Memory invariant (data model §3) requires byte-level reads and writes to
// be unsynchronized, since the underlying buffer is wazero's own shared
// wasm memory and guest code already serializes access with its own
// mutexes where it cares to.
package membridge

import (
	"errors"
	"unicode/utf8"
)

// ErrOutOfBounds is returned when an offset/length pair falls outside the
// guest's linear memory.
var ErrOutOfBounds = errors.New("membridge: access out of bounds")

// ErrNoNulTerminator is returned when ReadCString runs off the end of
// memory without finding a NUL byte.
var ErrNoNulTerminator = errors.New("membridge: no NUL terminator before end of memory")

// ErrNotUTF8 is returned when the bytes read are not valid UTF-8.
var ErrNotUTF8 = errors.New("membridge: guest string is not valid UTF-8")

// Memory is the subset of wazero's api.Memory this package needs. Bridge
// takes the interface rather than the concrete type so it can be exercised
// against a fake buffer in tests without instantiating a wasm runtime.
type Memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// Allocator calls the guest-exported memalign/free trampolines so the host
// can carve out guest-owned regions (errno cells, TLS blocks, name copies)
// without colliding with the guest's own heap allocations.
type Allocator interface {
	// Memalign calls the guest's wasm_memalign(align, size) export. A
	// zero return is a host programming error: the guest allocator has
	// failed and the host has nowhere safe to write.
	Memalign(align, size uint32) (uint32, error)
	Free(ptr uint32) error
}

// Bridge centralises bounds-checked guest memory access for one wasm
// module instance.
type Bridge struct {
	mem   Memory
	alloc Allocator
}

func New(mem Memory, alloc Allocator) *Bridge {
	return &Bridge{mem: mem, alloc: alloc}
}

// ReadCString reads bytes starting at ptr until a NUL byte, validating
// UTF-8 before returning.
func (b *Bridge) ReadCString(ptr uint32) (string, error) {
	size := b.mem.Size()
	if ptr > size {
		return "", ErrOutOfBounds
	}
	// Scan byte by byte rather than guessing a length up front: the guest
	// gives us no length for a C string, only a NUL-terminated run.
	var buf []byte
	for addr := ptr; addr < size; addr++ {
		chunk, ok := b.mem.Read(addr, 1)
		if !ok || len(chunk) != 1 {
			return "", ErrOutOfBounds
		}
		if chunk[0] == 0 {
			if !utf8.Valid(buf) {
				return "", ErrNotUTF8
			}
			return string(buf), nil
		}
		buf = append(buf, chunk[0])
	}
	return "", ErrNoNulTerminator
}

// ReadBytes returns a bounds-checked copy of length bytes starting at
// offset.
func (b *Bridge) ReadBytes(offset, length uint32) ([]byte, error) {
	data, ok := b.mem.Read(offset, length)
	if !ok {
		return nil, ErrOutOfBounds
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteBytes writes data starting at offset, bounds-checked.
func (b *Bridge) WriteBytes(offset uint32, data []byte) error {
	if !b.mem.Write(offset, data) {
		return ErrOutOfBounds
	}
	return nil
}

// WriteCString writes s followed by a NUL terminator starting at offset.
func (b *Bridge) WriteCString(offset uint32, s string) error {
	return b.WriteBytes(offset, append([]byte(s), 0))
}

// AllocAndWriteCString allocates align-1 space for s plus its NUL
// terminator via the guest allocator and writes it there, returning the
// pointer. A zero guest allocator return is fatal per the Guest Allocator
// Handle invariant (data model §3): the caller should treat the returned
// error as a host programming error, not a recoverable guest ABI error.
func (b *Bridge) AllocAndWriteCString(s string) (uint32, error) {
	size := uint32(len(s) + 1)
	ptr, err := b.alloc.Memalign(1, size)
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return 0, errors.New("membridge: guest allocator returned 0")
	}
	if err := b.WriteCString(ptr, s); err != nil {
		return 0, err
	}
	return ptr, nil
}

// Alloc reserves size bytes aligned to align via the guest allocator.
func (b *Bridge) Alloc(align, size uint32) (uint32, error) {
	ptr, err := b.alloc.Memalign(align, size)
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return 0, errors.New("membridge: guest allocator returned 0")
	}
	return ptr, nil
}

// Free releases a region previously returned by Alloc or
// AllocAndWriteCString.
func (b *Bridge) Free(ptr uint32) error {
	return b.alloc.Free(ptr)
}
