// messages.go - line-delimited JSON input/output message framing
//
// Mirrors runtime_ipc.go's request/response JSON framing, but carried over
// stdin/stdout rather than a Unix socket, and shaped as flat tagged structs
// rather than request/response pairs: one JSON object per line, a "type"
// field selects the variant, the rest of the object is that variant's
// payload.
package transport

// ControllerDigital carries the 12 PROS-named digital buttons for one
// controller snapshot.
type ControllerDigital struct {
	L1    bool `json:"l1"`
	L2    bool `json:"l2"`
	R1    bool `json:"r1"`
	R2    bool `json:"r2"`
	Up    bool `json:"up"`
	Down  bool `json:"down"`
	Left  bool `json:"left"`
	Right bool `json:"right"`
	X     bool `json:"x"`
	B     bool `json:"b"`
	Y     bool `json:"y"`
	A     bool `json:"a"`
}

// ControllerAnalog carries the 4 signed joystick axes, -127..127.
type ControllerAnalog struct {
	LeftX  int8 `json:"left_x"`
	LeftY  int8 `json:"left_y"`
	RightX int8 `json:"right_x"`
	RightY int8 `json:"right_y"`
}

// ControllerState is one controller's full input snapshot.
type ControllerState struct {
	Digital ControllerDigital `json:"digital"`
	Analog  ControllerAnalog  `json:"analog"`
}

// InputMessage is the tagged union of messages read from stdin, one per
// line. Only the fields relevant to Type are populated.
type InputMessage struct {
	Type string `json:"type"`

	// ControllerUpdate
	Master  *ControllerState `json:"master,omitempty"`
	Partner *ControllerState `json:"partner,omitempty"`

	// LcdButtonsUpdate
	Buttons *[3]bool `json:"buttons,omitempty"`

	// PhaseChange
	Autonomous    bool `json:"autonomous,omitempty"`
	Enabled       bool `json:"enabled,omitempty"`
	IsCompetition bool `json:"is_competition,omitempty"`

	// PortsUpdate: port number (as string key) -> device type name
	Ports map[string]string `json:"ports,omitempty"`
}

const (
	InputControllerUpdate  = "ControllerUpdate"
	InputLcdButtonsUpdate  = "LcdButtonsUpdate"
	InputPhaseChange       = "PhaseChange"
	InputPortsUpdate       = "PortsUpdate"
	InputBeginSimulation   = "BeginSimulation"
)

// OutputEvent is the tagged union of events written to stdout, one per
// line. Only the fields relevant to Type are populated.
type OutputEvent struct {
	Type string `json:"type"`

	Message string `json:"message,omitempty"`

	// RobotCodeError
	Backtrace []string `json:"backtrace,omitempty"`

	// LcdUpdated
	Lines *[8]string `json:"lines,omitempty"`

	// LcdColorsUpdated
	Foreground uint32 `json:"foreground,omitempty"`
	Background uint32 `json:"background,omitempty"`

	// MotorUpdated
	Port          uint32 `json:"port,omitempty"`
	Volts         int8   `json:"volts,omitempty"`
	EncoderUnits  string `json:"encoder_units,omitempty"`
	BrakeMode     string `json:"brake_mode,omitempty"`
}

const (
	OutputWarning           = "Warning"
	OutputConsoleMessage    = "ConsoleMessage"
	OutputLoading           = "Loading"
	OutputResourcesRequired = "ResourcesRequired"
	OutputRobotCodeRunning  = "RobotCodeRunning"
	OutputAllTasksFinished  = "AllTasksFinished"
	OutputRobotCodeError    = "RobotCodeError"
	OutputLcdInitialized    = "LcdInitialized"
	OutputLcdUpdated        = "LcdUpdated"
	OutputLcdColorsUpdated  = "LcdColorsUpdated"
	OutputLcdShutdown       = "LcdShutdown" // lcd_shutdown is unimplemented (§4.4); kept for wire-vocabulary completeness
	OutputMotorUpdated      = "MotorUpdated"
)

// Sink is the destination observable events are published to. Devices and
// the task runtime hold a Sink rather than a concrete transport so they
// never depend on how events reach the boundary collaborator.
type Sink interface {
	Emit(OutputEvent)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(OutputEvent)

func (f SinkFunc) Emit(e OutputEvent) { f(e) }

// DiscardSink drops every event; used by tests that don't care about the
// event stream.
var DiscardSink Sink = SinkFunc(func(OutputEvent) {})
