package membridge

import "testing"

// fakeMemory is a plain byte slice standing in for wazero's api.Memory, the
// way the package's own doc comment says it should be testable without a
// real wasm runtime.
type fakeMemory struct {
	buf []byte
}

func newFakeMemory(size int) *fakeMemory {
	return &fakeMemory{buf: make([]byte, size)}
}

func (m *fakeMemory) Size() uint32 { return uint32(len(m.buf)) }

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if uint64(offset)+uint64(byteCount) > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset : offset+byteCount], true
}

func (m *fakeMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

// fakeAllocator is a bump allocator standing in for the guest's
// wasm_memalign/wasm_free exports.
type fakeAllocator struct {
	next     uint32
	failNext bool
}

func (a *fakeAllocator) Memalign(align, size uint32) (uint32, error) {
	if a.failNext {
		return 0, nil
	}
	ptr := a.next
	a.next += size
	return ptr, nil
}

func (a *fakeAllocator) Free(ptr uint32) error { return nil }

func TestReadCStringRoundTrip(t *testing.T) {
	mem := newFakeMemory(64)
	b := New(mem, &fakeAllocator{})

	if err := b.WriteCString(10, "hello"); err != nil {
		t.Fatalf("WriteCString: %v", err)
	}
	got, err := b.ReadCString(10)
	if err != nil {
		t.Fatalf("ReadCString: %v", err)
	}
	if got != "hello" {
		t.Fatalf("ReadCString = %q, want %q", got, "hello")
	}
}

func TestReadCStringNoTerminator(t *testing.T) {
	mem := newFakeMemory(4)
	b := New(mem, &fakeAllocator{})
	mem.buf[0], mem.buf[1], mem.buf[2], mem.buf[3] = 'a', 'b', 'c', 'd'

	if _, err := b.ReadCString(0); err != ErrNoNulTerminator {
		t.Fatalf("ReadCString = %v, want ErrNoNulTerminator", err)
	}
}

func TestReadCStringOutOfBounds(t *testing.T) {
	mem := newFakeMemory(4)
	b := New(mem, &fakeAllocator{})

	if _, err := b.ReadCString(100); err != ErrOutOfBounds {
		t.Fatalf("ReadCString = %v, want ErrOutOfBounds", err)
	}
}

func TestReadCStringInvalidUTF8(t *testing.T) {
	mem := newFakeMemory(8)
	b := New(mem, &fakeAllocator{})
	mem.buf[0] = 0xFF
	mem.buf[1] = 0x00

	if _, err := b.ReadCString(0); err != ErrNotUTF8 {
		t.Fatalf("ReadCString = %v, want ErrNotUTF8", err)
	}
}

func TestReadWriteBytesBounds(t *testing.T) {
	mem := newFakeMemory(16)
	b := New(mem, &fakeAllocator{})

	if err := b.WriteBytes(8, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	got, err := b.ReadBytes(8, 4)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(got) != "\x01\x02\x03\x04" {
		t.Fatalf("ReadBytes = %v, want [1 2 3 4]", got)
	}

	if err := b.WriteBytes(14, []byte{1, 2, 3, 4}); err != ErrOutOfBounds {
		t.Fatalf("WriteBytes past end = %v, want ErrOutOfBounds", err)
	}
}

func TestAllocAndWriteCString(t *testing.T) {
	mem := newFakeMemory(64)
	b := New(mem, &fakeAllocator{next: 4})

	ptr, err := b.AllocAndWriteCString("vex")
	if err != nil {
		t.Fatalf("AllocAndWriteCString: %v", err)
	}
	if ptr != 4 {
		t.Fatalf("ptr = %d, want 4", ptr)
	}
	got, err := b.ReadCString(ptr)
	if err != nil || got != "vex" {
		t.Fatalf("ReadCString(%d) = %q, %v, want %q, nil", ptr, got, err, "vex")
	}
}

func TestAllocFailureIsReported(t *testing.T) {
	mem := newFakeMemory(16)
	b := New(mem, &fakeAllocator{failNext: true})

	if _, err := b.Alloc(1, 4); err == nil {
		t.Fatal("Alloc with failing allocator returned nil error, want a zero-pointer error")
	}
}
