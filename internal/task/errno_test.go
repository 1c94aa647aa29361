package task

import (
	"testing"

	"github.com/intuitionamiga/proswasmhost/internal/membridge"
	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

func TestErrnoCellLazilyAllocatedOnce(t *testing.T) {
	rt := NewRuntime(transport.DiscardSink)
	bridge := membridge.New(newFakeMemory(4096), &fakeAllocator{})

	rt.Spawn(Options{Name: "a", Priority: DefaultPriority, Entry: func(rt *Runtime, self uint32) error {
		if _, ok := rt.Lookup(self).ErrnoPtr(); ok {
			t.Fatal("ErrnoPtr already set before any access")
		}
		ptr1, err := rt.ErrnoCell(bridge, self)
		if err != nil {
			t.Fatalf("ErrnoCell: %v", err)
		}
		ptr2, err := rt.ErrnoCell(bridge, self)
		if err != nil {
			t.Fatalf("ErrnoCell: %v", err)
		}
		if ptr1 != ptr2 {
			t.Fatalf("errno cell reallocated: %d then %d", ptr1, ptr2)
		}
		return nil
	}})
	rt.Run()
}

func TestSetErrnoWritesCellValue(t *testing.T) {
	rt := NewRuntime(transport.DiscardSink)
	bridge := membridge.New(newFakeMemory(4096), &fakeAllocator{})

	rt.Spawn(Options{Name: "a", Priority: DefaultPriority, Entry: func(rt *Runtime, self uint32) error {
		if err := rt.SetErrno(bridge, self, 22); err != nil {
			t.Fatalf("SetErrno: %v", err)
		}
		ptr, err := rt.ErrnoCell(bridge, self)
		if err != nil {
			t.Fatalf("ErrnoCell: %v", err)
		}
		raw, err := bridge.ReadBytes(ptr, 4)
		if err != nil {
			t.Fatalf("ReadBytes: %v", err)
		}
		got := int32(uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24)
		if got != 22 {
			t.Fatalf("errno cell = %d, want 22", got)
		}
		return nil
	}})
	rt.Run()
}

func TestErrnoCellsAreTaskLocal(t *testing.T) {
	rt := NewRuntime(transport.DiscardSink)
	bridge := membridge.New(newFakeMemory(4096), &fakeAllocator{})

	var ptrA, ptrB uint32
	done := make(chan struct{}, 2)

	rt.Spawn(Options{Name: "a", Priority: DefaultPriority, Entry: func(rt *Runtime, self uint32) error {
		rt.SetErrno(bridge, self, 1)
		ptrA, _ = rt.ErrnoCell(bridge, self)
		done <- struct{}{}
		return nil
	}})
	rt.Spawn(Options{Name: "b", Priority: DefaultPriority, Entry: func(rt *Runtime, self uint32) error {
		rt.SetErrno(bridge, self, 2)
		ptrB, _ = rt.ErrnoCell(bridge, self)
		done <- struct{}{}
		return nil
	}})
	rt.Run()
	<-done
	<-done

	if ptrA == ptrB {
		t.Fatalf("tasks share an errno cell address: %d", ptrA)
	}
}

func TestResultU32AndResultI32(t *testing.T) {
	rt := NewRuntime(transport.DiscardSink)
	bridge := membridge.New(newFakeMemory(4096), &fakeAllocator{})

	rt.Spawn(Options{Name: "a", Priority: DefaultPriority, Entry: func(rt *Runtime, self uint32) error {
		if got := ResultU32(rt, bridge, self, 7, 5, true, 0); got != 7 {
			t.Errorf("ResultU32(ok) = %d, want 7", got)
		}
		if got := ResultU32(rt, bridge, self, 7, 5, false, 99); got != 99 {
			t.Errorf("ResultU32(err) = %d, want fallback 99", got)
		}
		if got := ResultI32(rt, bridge, self, 7, 5, true, -1); got != 7 {
			t.Errorf("ResultI32(ok) = %d, want 7", got)
		}
		if got := ResultI32(rt, bridge, self, 7, 5, false, -1); got != -1 {
			t.Errorf("ResultI32(err) = %d, want fallback -1", got)
		}
		ptr, _ := rt.ErrnoCell(bridge, self)
		raw, _ := bridge.ReadBytes(ptr, 4)
		code := int32(uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24)
		if code != 5 {
			t.Errorf("errno after failed Result call = %d, want 5", code)
		}
		return nil
	}})
	rt.Run()
}
