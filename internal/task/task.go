// task.go - Task object: per-task state, identity and lifecycle.
//
// Grounded on coprocessor_manager.go's CoprocWorker: a stop func plus a
// done channel tracking one running unit of guest-adjacent work, generalized
// from "one worker per CPU type" to "one task per scheduler slot", and with
// the addition of a resume channel so the scheduler can hand control back
// and forth cooperatively instead of the worker running to completion
// unattended.
package task

import "sync"

// State is a task's scheduling state (data model §3).
type State int

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateFinished
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateBlocked:
		return "Blocked"
	case StateFinished:
		return "Finished"
	case StateDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

const (
	// MinPriority and MaxPriority bound the 0..16 internal priority scale
	// (data model §3). The guest-facing PROS scale is 1..17; task_create
	// decrements the guest-supplied priority by one (§4.3).
	MinPriority = 0
	MaxPriority = 16
	// DefaultPriority is the priority the daemon and its guest entrypoints
	// are spawned at. newTask does not substitute it for an unset
	// Options.Priority: a zero Priority means priority 0.
	DefaultPriority = 7
)

// Entry is a task's body. It receives the Runtime and its own id so it can
// call back into host API implementations, which in turn call Runtime.Yield
// at every suspension point (§5). Entry must return when the task's work is
// done; a non-nil error is reported as a RobotCodeError by the caller.
type Entry func(rt *Runtime, self uint32) error

// Options configures a new task (§4.3, TaskOptions).
type Options struct {
	Name     string
	Priority int
	Entry    Entry
}

// Task is one guest-visible unit of cooperative concurrency.
type Task struct {
	id       uint32
	name     string
	priority int
	entry    Entry

	mu              sync.Mutex
	state           State
	markedForDelete bool

	errnoPtr uint32
	hasErrno bool

	tlsBase uint32
	hasTLS  bool

	// resume is closed (not sent to) when the task must terminate without
	// being scheduled again; it is sent to (never closed) to hand it
	// control for its next turn. Exactly one of those happens per
	// lifetime transition, so a single channel can serve both purposes
	// provided the scheduler never sends after it has closed.
	resume  chan struct{}
	started bool
}

func newTask(id uint32, opts Options) *Task {
	name := opts.Name
	if name == "" {
		name = defaultName(id)
	}
	prio := opts.Priority
	if prio < MinPriority {
		prio = MinPriority
	}
	if prio > MaxPriority {
		prio = MaxPriority
	}
	return &Task{
		id:       id,
		name:     name,
		priority: prio,
		state:    StateReady,
		resume:   make(chan struct{}),
	}
}

func defaultName(id uint32) string {
	return "task " + itoa(id)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// ID returns the task's unique handle.
func (t *Task) ID() uint32 { return t.id }

// Name returns the task's human label.
func (t *Task) Name() string { return t.name }

// Priority returns the task's internal 0..16 priority.
func (t *Task) Priority() int { return t.priority }

// State returns the task's current scheduling state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// MarkForDelete flags the task as pending deletion; it is finalized the
// next time the task yields (§4.3, task_delete).
func (t *Task) MarkForDelete() {
	t.mu.Lock()
	t.markedForDelete = true
	t.mu.Unlock()
}

func (t *Task) isMarkedForDelete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.markedForDelete
}

// ErrnoPtr returns the task's lazily-allocated errno cell address, and
// whether it has been allocated yet.
func (t *Task) ErrnoPtr() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errnoPtr, t.hasErrno
}

// SetErrnoPtr records the guest address of this task's errno cell.
func (t *Task) SetErrnoPtr(ptr uint32) {
	t.mu.Lock()
	t.errnoPtr = ptr
	t.hasErrno = true
	t.mu.Unlock()
}

// TLSBase returns the task's lazily-allocated TLS block address, and
// whether it has been allocated yet.
func (t *Task) TLSBase() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tlsBase, t.hasTLS
}

// SetTLSBase records the guest address of this task's 5-slot TLS block.
func (t *Task) SetTLSBase(ptr uint32) {
	t.mu.Lock()
	t.tlsBase = ptr
	t.hasTLS = true
	t.mu.Unlock()
}
