// scheduler.go - cooperative round-robin Runtime ("run_to_completion" driver loop)
//
// The spec models a single-threaded poll-based scheduler that advances one
// task's future per driver iteration (§4.3). Go has no stackful futures, so
// this is expressed the way a Go program gets single-threaded cooperative
// scheduling from OS threads: exactly one task goroutine is ever runnable at
// a time, handed control over a per-task channel; every other task goroutine
// is parked on a receive. The driver loop plays dispatcher, which is the
// same shape as coprocessor_manager.go's worker lifecycle (a stop signal and
// a done channel per unit of work) generalized to hand control back and
// forth instead of running a worker to completion unattended.
package task

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

// TimeoutMax means "wait forever" for mutex_take (§6).
const TimeoutMax = 0xFFFFFFFF

type eventKind int

const (
	evYielded eventKind = iota
	evFinished
	evError
)

type schedEvent struct {
	id  uint32
	kind eventKind
	err  error
}

// Runtime owns every task, the mutex pool, and the scheduling cursor.
type Runtime struct {
	sink transport.Sink

	mu        sync.Mutex
	tasks     map[uint32]*Task
	nextID    uint32
	currentID uint32
	schedCh   chan schedEvent

	suspendCount int
	yieldPending bool
	shutdown     bool

	startTime time.Time

	Mutexes *MutexPool
}

// NewRuntime creates an empty Runtime. Call Spawn to add tasks before Run.
func NewRuntime(sink transport.Sink) *Runtime {
	rt := &Runtime{
		sink:      sink,
		tasks:     make(map[uint32]*Task),
		nextID:    1,
		schedCh:   make(chan schedEvent),
		startTime: time.Now(),
	}
	rt.Mutexes = NewMutexPool(rt)
	return rt
}

// Spawn creates a new task in the Ready state and returns it. The task's
// goroutine is not started until the scheduler first picks it.
func (rt *Runtime) Spawn(opts Options) *Task {
	rt.mu.Lock()
	id := rt.nextID
	rt.nextID++
	rt.mu.Unlock()
	return rt.SpawnReserved(id, opts)
}

// ReserveID allocates a task id without creating the task, so a caller
// that must name a resource (a guest module instance, in hostapi's
// task_create) after the id before the task exists can do so.
func (rt *Runtime) ReserveID() uint32 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := rt.nextID
	rt.nextID++
	return id
}

// SpawnReserved creates a task under an id previously returned by
// ReserveID (or Spawn's own internal counter read).
func (rt *Runtime) SpawnReserved(id uint32, opts Options) *Task {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	t := newTask(id, opts)
	t.entry = opts.Entry
	rt.tasks[id] = t
	return t
}

// Lookup returns the task with the given id, or nil.
func (rt *Runtime) Lookup(id uint32) *Task {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.tasks[id]
}

// Current returns the id of the task presently running, or 0 if none.
func (rt *Runtime) Current() uint32 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.currentID
}

// MillisSinceStart returns elapsed wall-clock milliseconds since the
// Runtime was created (§4.4, millis).
func (rt *Runtime) MillisSinceStart() uint32 {
	return uint32(time.Since(rt.startTime).Milliseconds())
}

// cycleTasksLocked implements §4.3's scheduling rule. rt.mu must be held.
func (rt *Runtime) cycleTasksLocked() *Task {
	if rt.suspendCount > 0 && rt.currentID != 0 {
		if cur, ok := rt.tasks[rt.currentID]; ok && cur.State() == StateReady {
			rt.yieldPending = true
			return cur
		}
	}

	maxPrio := -1
	for _, t := range rt.tasks {
		if t.State() == StateReady && t.Priority() > maxPrio {
			maxPrio = t.Priority()
		}
	}
	if maxPrio < 0 {
		return nil
	}

	var ids []uint32
	for id, t := range rt.tasks {
		if t.State() == StateReady && t.Priority() == maxPrio {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	chosen := ids[0]
	for _, id := range ids {
		if id > rt.currentID {
			chosen = id
			break
		}
	}
	return rt.tasks[chosen]
}

// Run is the driver loop ("run_to_completion", §4.3). It returns when no
// task remains Ready or shutdown has been requested.
func (rt *Runtime) Run() {
	for {
		rt.mu.Lock()
		if rt.shutdown {
			rt.mu.Unlock()
			return
		}
		next := rt.cycleTasksLocked()
		if next == nil {
			rt.mu.Unlock()
			return
		}
		rt.currentID = next.id
		next.setState(StateRunning)
		first := !next.started
		next.started = true
		rt.mu.Unlock()

		if first {
			go rt.launch(next)
		} else {
			next.resume <- struct{}{}
		}

		ev := <-rt.schedCh

		rt.mu.Lock()
		t := rt.tasks[ev.id]
		switch ev.kind {
		case evYielded:
			if t.isMarkedForDelete() {
				t.setState(StateDeleted)
				close(t.resume)
			} else {
				t.setState(StateReady)
			}
		case evFinished:
			t.setState(StateFinished)
			if rt.suspendCount != 0 {
				rt.suspendCount = 0
				rt.mu.Unlock()
				rt.sink.Emit(transport.OutputEvent{
					Type:    transport.OutputWarning,
					Message: fmt.Sprintf("task %d finished with rtos_suspend_all still outstanding; resetting suspension", ev.id),
				})
				rt.mu.Lock()
			}
		case evError:
			t.setState(StateFinished)
			rt.mu.Unlock()
			rt.sink.Emit(transport.OutputEvent{
				Type:      transport.OutputRobotCodeError,
				Message:   ev.err.Error(),
				Backtrace: []string{fmt.Sprintf("task %d (%s)", t.ID(), t.Name())},
			})
			rt.mu.Lock()
		}
		rt.mu.Unlock()
	}
}

// launch runs a task's entry to completion, reporting yields/finish/error
// back to the driver loop via schedCh. It is the goroutine body started the
// first time a task is scheduled.
func (rt *Runtime) launch(t *Task) {
	err := t.entry(rt, t.id)
	if err != nil {
		rt.schedCh <- schedEvent{id: t.id, kind: evError, err: err}
		return
	}
	rt.schedCh <- schedEvent{id: t.id, kind: evFinished}
}

// Yield is the single suspension primitive every blocking host call routes
// through (§5). It reports the calling task as yielded and parks its
// goroutine until the scheduler hands it another turn, or terminates the
// goroutine immediately if the task was deleted while parked.
func (rt *Runtime) Yield(self uint32) {
	t := rt.Lookup(self)
	if t == nil {
		return
	}
	rt.schedCh <- schedEvent{id: self, kind: evYielded}
	if _, ok := <-t.resume; !ok {
		runtime.Goexit()
	}
}

// Delay yields until at least ms milliseconds of wall-clock time have
// passed, yielding at least once even when ms==0 (§4.3, delay/task_delay).
func (rt *Runtime) Delay(self uint32, ms uint32) {
	deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)
	for {
		rt.Yield(self)
		if time.Now().After(deadline) || time.Now().Equal(deadline) {
			return
		}
		if ms == 0 {
			return
		}
	}
}

// DelayUntil yields until epoch+prevMs+deltaMs is reached, where epoch is
// the Runtime's start time (§4.3, task_delay_until; §9 Open Questions
// resolves the epoch ambiguity in favor of simulator start time).
func (rt *Runtime) DelayUntil(self uint32, prevMs, deltaMs uint32) {
	deadline := rt.startTime.Add(time.Duration(prevMs+deltaMs) * time.Millisecond)
	for {
		rt.Yield(self)
		if !time.Now().Before(deadline) {
			return
		}
	}
}

// Delete implements task_delete (§4.3). targetID == 0 means "the current
// task asking to delete itself", matching the ABI's current-task sentinel
// (data model §3, Task.id).
func (rt *Runtime) Delete(targetID uint32) {
	rt.mu.Lock()
	if targetID == 0 {
		targetID = rt.currentID
	}
	t, ok := rt.tasks[targetID]
	if !ok {
		rt.mu.Unlock()
		return
	}
	selfDelete := targetID == rt.currentID
	rt.mu.Unlock()

	if selfDelete {
		t.MarkForDelete()
		rt.Yield(targetID)
		return
	}

	// Deleting a task other than the current one: remove immediately. If
	// it is parked between turns, wake it so its goroutine can exit
	// instead of leaking blocked on resume forever.
	rt.mu.Lock()
	started := t.started
	rt.mu.Unlock()
	t.setState(StateDeleted)
	if started {
		closeResumeOnce(t)
	}
}

func closeResumeOnce(t *Task) {
	defer func() { recover() }() // closing an already-closed channel is a no-op error we can ignore
	close(t.resume)
}

// SuspendAll increments the suspension counter (rtos_suspend_all, §4.3).
func (rt *Runtime) SuspendAll() {
	rt.mu.Lock()
	rt.suspendCount++
	rt.mu.Unlock()
}

// ResumeAll decrements the suspension counter. If it reaches zero and a
// yield was requested while suspended, it performs that yield immediately
// before returning, matching §4.3's "resuming to zero with pending yield
// performs the yield immediately and returns true".
func (rt *Runtime) ResumeAll(self uint32) bool {
	rt.mu.Lock()
	if rt.suspendCount > 0 {
		rt.suspendCount--
	}
	reachedZero := rt.suspendCount == 0
	pending := rt.yieldPending
	if reachedZero {
		rt.yieldPending = false
	}
	rt.mu.Unlock()

	if reachedZero && pending {
		rt.Yield(self)
		return true
	}
	return reachedZero
}

// RequestShutdown stops the driver loop after the current task's next
// yield point (§4.4, exit; §4.3 step 5). Pending futures are dropped: their
// goroutines are left parked and never resumed again.
func (rt *Runtime) RequestShutdown() {
	rt.mu.Lock()
	rt.shutdown = true
	rt.mu.Unlock()
}

// AllTasks returns a snapshot of every task ever created, including
// Finished and Deleted ones (data model §3: "Deleted ids remain
// queryable").
func (rt *Runtime) AllTasks() []*Task {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*Task, 0, len(rt.tasks))
	for _, t := range rt.tasks {
		out = append(out, t)
	}
	return out
}
