package task

import (
	"testing"

	"github.com/intuitionamiga/proswasmhost/internal/membridge"
	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

type fakeMemory struct{ buf []byte }

func newFakeMemory(size int) *fakeMemory { return &fakeMemory{buf: make([]byte, size)} }

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

type fakeAllocator struct{ next uint32 }

func (a *fakeAllocator) Memalign(align, size uint32) (uint32, error) {
	// 0 is the allocator's failure value (membridge.Allocator), so the bump
	// pointer starts past it.
	if a.next == 0 {
		a.next = 16
	}
	ptr := a.next
	a.next += size
	return ptr, nil
}

func (a *fakeAllocator) Free(uint32) error { return nil }

func TestTLSGetSetRoundTrip(t *testing.T) {
	rt := NewRuntime(transport.DiscardSink)
	bridge := membridge.New(newFakeMemory(4096), &fakeAllocator{})

	done := make(chan struct{})
	rt.Spawn(Options{Name: "a", Priority: DefaultPriority, Entry: func(rt *Runtime, self uint32) error {
		if err := rt.SetTLS(bridge, self, self, 2, 0xdeadbeef); err != nil {
			t.Errorf("SetTLS: %v", err)
		}
		got, err := rt.GetTLS(bridge, self, self, 2)
		if err != nil {
			t.Errorf("GetTLS: %v", err)
		}
		if got != 0xdeadbeef {
			t.Errorf("GetTLS = 0x%x, want 0xdeadbeef", got)
		}
		close(done)
		return nil
	}})
	rt.Run()
	<-done
}

func TestTLSIndexOutOfRange(t *testing.T) {
	rt := NewRuntime(transport.DiscardSink)
	bridge := membridge.New(newFakeMemory(4096), &fakeAllocator{})

	rt.Spawn(Options{Name: "a", Priority: DefaultPriority, Entry: func(rt *Runtime, self uint32) error {
		if _, err := rt.GetTLS(bridge, self, self, TLSSlots); err == nil {
			t.Error("GetTLS at index TLSSlots returned nil error")
		} else if _, ok := err.(ErrTLSIndexOutOfRange); !ok {
			t.Errorf("error type = %T, want ErrTLSIndexOutOfRange", err)
		}
		if err := rt.SetTLS(bridge, self, self, TLSSlots, 1); err == nil {
			t.Error("SetTLS at index TLSSlots returned nil error")
		}
		return nil
	}})
	rt.Run()
}

func TestTLSBlockAllocatedLazilyOnce(t *testing.T) {
	rt := NewRuntime(transport.DiscardSink)
	alloc := &fakeAllocator{}
	bridge := membridge.New(newFakeMemory(4096), alloc)

	rt.Spawn(Options{Name: "a", Priority: DefaultPriority, Entry: func(rt *Runtime, self uint32) error {
		if _, ok := rt.Lookup(self).TLSBase(); ok {
			t.Fatal("TLSBase already set before any access")
		}
		if _, err := rt.GetTLS(bridge, self, self, 0); err != nil {
			t.Fatalf("GetTLS: %v", err)
		}
		base1, ok := rt.Lookup(self).TLSBase()
		if !ok {
			t.Fatal("TLSBase not set after first access")
		}
		if _, err := rt.GetTLS(bridge, self, self, 1); err != nil {
			t.Fatalf("GetTLS: %v", err)
		}
		base2, _ := rt.Lookup(self).TLSBase()
		if base1 != base2 {
			t.Fatalf("TLS block reallocated: %d then %d", base1, base2)
		}
		return nil
	}})
	rt.Run()
}
