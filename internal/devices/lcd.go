// lcd.go - LLEMU LCD emulator device model
//
// State-machine shape follows terminal_output.go's enabled/buffer device:
// a small struct guarded by a single mutex, mutating methods that validate
// first and emit an event on every state change they actually make.
package devices

import (
	"sync"

	"github.com/intuitionamiga/proswasmhost/internal/posix"
	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

const (
	LcdHeight = 8
	LcdWidth  = 40
	lcdButtons = 3
)

// ErrAlreadyInitialized is returned by Initialize on a second call.
type ErrAlreadyInitialized struct{}

func (ErrAlreadyInitialized) Error() string { return "lcd: already initialized" }

// ButtonCallback is a guest indirect-table function reference, invoked when
// a button transitions from not-pressed to pressed. Calling it suspends the
// calling task (§4.2), so it is async from the LCD's point of view; LCD
// only knows how to ask the runtime to make the call.
type ButtonCallback = func()

// LCD models the 8x40 LLEMU display.
type LCD struct {
	mu          sync.Mutex
	initialized bool
	lines       [LcdHeight]string
	callbacks   [lcdButtons]ButtonCallback
	prevPress   [lcdButtons]bool

	sink transport.Sink
}

func NewLCD(sink transport.Sink) *LCD {
	return &LCD{sink: sink}
}

// Initialize transitions Uninitialized -> Initialized. A second call
// returns ErrAlreadyInitialized.
func (l *LCD) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		return ErrAlreadyInitialized{}
	}
	l.initialized = true
	l.sink.Emit(transport.OutputEvent{Type: transport.OutputLcdInitialized})
	return nil
}

func (l *LCD) snapshotLocked() [LcdHeight]string {
	return l.lines
}

func (l *LCD) emitUpdateLocked() {
	lines := l.snapshotLocked()
	l.sink.Emit(transport.OutputEvent{Type: transport.OutputLcdUpdated, Lines: &lines})
}

// SetLine sets line i to text, subject to the width-40 and height-8 bounds.
// Returns a POSIX errno (0 for success).
func (l *LCD) SetLine(i int, text string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return posix.ENXIO
	}
	if i < 0 || i >= LcdHeight {
		return posix.EINVAL
	}
	if len(text) > LcdWidth {
		return posix.EINVAL
	}
	l.lines[i] = text
	l.emitUpdateLocked()
	return 0
}

// ClearLine blanks a single line.
func (l *LCD) ClearLine(i int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return posix.ENXIO
	}
	if i < 0 || i >= LcdHeight {
		return posix.EINVAL
	}
	l.lines[i] = ""
	l.emitUpdateLocked()
	return 0
}

// Clear blanks every line.
func (l *LCD) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return posix.ENXIO
	}
	l.lines = [LcdHeight]string{}
	l.emitUpdateLocked()
	return 0
}

// SetButtonCallback registers cb to be invoked on the next rising edge of
// button b (0, 1 or 2).
func (l *LCD) SetButtonCallback(b int, cb ButtonCallback) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b < 0 || b >= lcdButtons {
		return posix.EINVAL
	}
	l.callbacks[b] = cb
	return 0
}

// Press reports the current raw state of all three LCD buttons. For each
// rising edge (false -> true) with a registered callback, the callback is
// invoked. Invoking a callback suspends the caller, so this must be called
// from a task context able to yield (the System Daemon, per §4.5).
func (l *LCD) Press(buttons [lcdButtons]bool) {
	l.mu.Lock()
	var toCall []ButtonCallback
	for b := 0; b < lcdButtons; b++ {
		rising := buttons[b] && !l.prevPress[b]
		l.prevPress[b] = buttons[b]
		if rising && l.callbacks[b] != nil {
			toCall = append(toCall, l.callbacks[b])
		}
	}
	l.mu.Unlock()

	for _, cb := range toCall {
		cb()
	}
}
