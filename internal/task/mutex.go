// mutex.go - guest mutex pool
//
// A slotted map with stable indices, the same shape as
// coprocessor_manager.go's workers array (stable slot id -> live resource)
// but sized dynamically and covering generic guest mutexes instead of one
// worker per CPU type. Debug-mode holder tracking follows §9's guidance:
// the guest ABI does not require it for correctness, but recording it lets
// the host detect misuse.
package task

import (
	"sync"
	"time"
)

type guestMutex struct {
	mu     sync.Mutex
	held   bool
	holder uint32 // task id that currently holds it, for misuse detection only
}

// MutexPool is the Runtime-owned store of guest mutexes (§3, Mutex Pool).
type MutexPool struct {
	rt *Runtime

	mu      sync.Mutex
	slots   map[uint32]*guestMutex
	nextID  uint32
}

func NewMutexPool(rt *Runtime) *MutexPool {
	return &MutexPool{rt: rt, slots: make(map[uint32]*guestMutex), nextID: 1}
}

// Create allocates a new mutex slot and returns its id.
func (p *MutexPool) Create() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.slots[id] = &guestMutex{}
	return id
}

// Delete frees a mutex slot. Deleting a held mutex is undefined behavior
// per PROS semantics (§3); the host detects and warns rather than
// crashing.
func (p *MutexPool) Delete(id uint32) (warning string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, exists := p.slots[id]
	if !exists {
		return "", false
	}
	if m.held {
		warning = "mutex_delete: mutex is currently held"
	}
	delete(p.slots, id)
	return warning, true
}

func (p *MutexPool) get(id uint32) *guestMutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[id]
}

// Take attempts to acquire mutex id, polling via Runtime.Yield (so other
// tasks run while this one waits) until acquired or deadlineMs elapses.
// TimeoutMax means wait forever. Returns true iff acquired before the
// deadline; on timeout it returns false without holding the mutex.
func (p *MutexPool) Take(self, id, timeoutMs uint32) bool {
	m := p.get(id)
	if m == nil {
		return false
	}

	var deadline time.Time
	hasDeadline := timeoutMs != TimeoutMax
	if hasDeadline {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}

	for {
		p.mu.Lock()
		if !m.held {
			m.held = true
			m.holder = self
			p.mu.Unlock()
			return true
		}
		p.mu.Unlock()

		if hasDeadline && !time.Now().Before(deadline) {
			return false
		}
		p.rt.Yield(self)
	}
}

// Give releases mutex id. Unlocking a mutex not held by the caller is
// undefined per PROS semantics; the host permits it silently (§4.3).
func (p *MutexPool) Give(self, id uint32) bool {
	m := p.get(id)
	if m == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !m.held {
		return true
	}
	m.held = false
	m.holder = 0
	return true
}

// HolderDebug returns the task id currently holding mutex id, and whether
// it is held at all. Debug/introspection only (§9).
func (p *MutexPool) HolderDebug(id uint32) (holder uint32, held bool) {
	m := p.get(id)
	if m == nil {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return m.holder, m.held
}
