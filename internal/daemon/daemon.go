// daemon.go - System Daemon (§4.5): drains the input stream and drives the
// competition-phase lifecycle.
//
// Grounded on coprocessor_manager.go's run loop shape (poll a channel,
// dispatch by message kind, manage one active worker per slot) generalized
// from "one worker per CPU type" to "one guest entrypoint task per
// competition phase", plus program_executor.go's pattern of spawning a
// fresh execution context per phase and tearing down the previous one.
package daemon

import (
	"context"
	"fmt"

	"github.com/intuitionamiga/proswasmhost/internal/devices"
	"github.com/intuitionamiga/proswasmhost/internal/hostapi"
	"github.com/intuitionamiga/proswasmhost/internal/task"
	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

// drainIntervalMs is the daemon's polling cadence (§4.5, "wait ~2ms and
// continue").
const drainIntervalMs = 2

// Daemon is the single privileged task spawned before user code (§4.5).
type Daemon struct {
	rt          *task.Runtime
	surface     *hostapi.Surface
	controllers *devices.Controllers
	lcd         *devices.LCD
	phase       *devices.CompetitionPhase
	ports       *devices.SmartPorts
	sink        transport.Sink
	factory     hostapi.Factory
	in          <-chan transport.InputMessage

	lastPhase       phaseSnapshot
	havePhase       bool
	activeCompTask  uint32
	haveActiveComp  bool
}

type phaseSnapshot struct {
	autonomous, enabled, isCompetition bool
}

func New(rt *task.Runtime, surface *hostapi.Surface, controllers *devices.Controllers, lcd *devices.LCD, phase *devices.CompetitionPhase, ports *devices.SmartPorts, sink transport.Sink, factory hostapi.Factory, in <-chan transport.InputMessage) *Daemon {
	return &Daemon{
		rt: rt, surface: surface, controllers: controllers, lcd: lcd, phase: phase, ports: ports,
		sink: sink, factory: factory, in: in,
	}
}

// Run is the daemon's task entry, spawned before any user code (§4.5) at
// task.DefaultPriority, the same priority spawnEntrypoint gives guest
// entrypoints.
func (d *Daemon) Run(rt *task.Runtime, self uint32) error {
	ctx := context.Background()
	d.sink.Emit(transport.OutputEvent{Type: transport.OutputLoading})

	readyToInit := false
	for !readyToInit {
		readyToInit = d.drain()
		rt.Delay(self, drainIntervalMs)
	}

	d.sink.Emit(transport.OutputEvent{Type: transport.OutputRobotCodeRunning})
	initID, spawned := d.spawnEntrypoint(ctx, "initialize")
	if spawned {
		d.waitForFinish(self, initID)
	}

	for {
		d.drain()

		autonomous, enabled, isCompetition := d.phase.Snapshot()
		current := phaseSnapshot{autonomous: autonomous, enabled: enabled, isCompetition: isCompetition}
		if d.phaseTransitioned(current) {
			d.handlePhaseChange(ctx, current)
		}
		d.lastPhase = current
		d.havePhase = true

		rt.Delay(self, drainIntervalMs)
	}
}

// phaseTransitioned reports whether current differs from the last observed
// phase in a way that matters: a disabled->disabled transition is not a
// change (§4.5 step 4).
func (d *Daemon) phaseTransitioned(current phaseSnapshot) bool {
	if !d.havePhase {
		return true
	}
	if current == d.lastPhase {
		return false
	}
	if !d.lastPhase.enabled && !current.enabled {
		return false
	}
	return true
}

func (d *Daemon) handlePhaseChange(ctx context.Context, current phaseSnapshot) {
	var entry string
	switch {
	case !d.lastPhase.isCompetition && current.isCompetition && !current.enabled:
		entry = "competition_initialize"
	case !current.enabled:
		entry = "disabled"
	case current.autonomous:
		entry = "autonomous"
	default:
		entry = "opcontrol"
	}

	if d.haveActiveComp {
		if t := d.rt.Lookup(d.activeCompTask); t != nil && t.State() == task.StateReady {
			d.rt.Delete(d.activeCompTask)
		}
	}

	id, spawned := d.spawnEntrypoint(ctx, entry)
	d.activeCompTask = id
	d.haveActiveComp = spawned
}

// spawnEntrypoint instantiates a fresh guest module, calling its named
// export if present, and registers it as a task. Entrypoints the guest does
// not export are simply skipped (§4.5, §6: "optional, called if present").
func (d *Daemon) spawnEntrypoint(ctx context.Context, name string) (uint32, bool) {
	id := d.rt.ReserveID()
	guestName := fmt.Sprintf("%d", id)
	guest, err := d.factory.NewInstance(ctx, guestName)
	if err != nil {
		d.sink.Emit(transport.OutputEvent{Type: transport.OutputWarning, Message: fmt.Sprintf("spawning %s: %v", name, err)})
		return 0, false
	}

	if !guest.HasExport(name) {
		_ = guest.Close(ctx)
		return 0, false
	}

	d.surface.RegisterGuest(id, guest)
	entry := func(rt *task.Runtime, self uint32) error {
		_, err := guest.CallExport(ctx, name)
		return err
	}
	d.rt.SpawnReserved(id, task.Options{Name: name, Priority: task.DefaultPriority, Entry: entry})
	return id, true
}

func (d *Daemon) waitForFinish(self, id uint32) {
	for {
		t := d.rt.Lookup(id)
		if t == nil || t.State() == task.StateFinished || t.State() == task.StateDeleted {
			return
		}
		d.drain()
		d.rt.Delay(self, drainIntervalMs)
	}
}

// drain processes every message currently queued on the input channel
// without blocking, returning true once a BeginSimulation message has been
// observed (§4.5 step 1).
func (d *Daemon) drain() bool {
	readyToInit := false
	for {
		select {
		case msg, ok := <-d.in:
			if !ok {
				return readyToInit
			}
			d.apply(msg, &readyToInit)
		default:
			return readyToInit
		}
	}
}

func (d *Daemon) apply(msg transport.InputMessage, readyToInit *bool) {
	switch msg.Type {
	case transport.InputControllerUpdate:
		d.controllers.ApplyWireUpdate(devices.ControllerMaster, msg.Master)
		d.controllers.ApplyWireUpdate(devices.ControllerPartner, msg.Partner)
	case transport.InputLcdButtonsUpdate:
		if msg.Buttons != nil {
			d.lcd.Press(*msg.Buttons)
		}
	case transport.InputPhaseChange:
		d.phase.Set(msg.Autonomous, msg.Enabled, msg.IsCompetition)
	case transport.InputPortsUpdate:
		d.ports.UpdateSpecs(msg.Ports)
	case transport.InputBeginSimulation:
		*readyToInit = true
	}
}
