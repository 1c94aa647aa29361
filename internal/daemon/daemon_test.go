package daemon

import (
	"context"
	"testing"

	"github.com/intuitionamiga/proswasmhost/internal/devices"
	"github.com/intuitionamiga/proswasmhost/internal/hostapi"
	"github.com/intuitionamiga/proswasmhost/internal/membridge"
	"github.com/intuitionamiga/proswasmhost/internal/task"
	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

type fakeGuest struct {
	name    string
	exports map[string]bool
	onCall  func(guestName, export string)
	closed  bool
}

func (g *fakeGuest) Bridge() *membridge.Bridge { return nil }

func (g *fakeGuest) CallIndirect(ctx context.Context, index uint32, args ...uint64) ([]uint64, error) {
	return nil, nil
}

func (g *fakeGuest) HasExport(name string) bool { return g.exports[name] }

func (g *fakeGuest) CallExport(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if g.onCall != nil {
		g.onCall(g.name, name)
	}
	return nil, nil
}

func (g *fakeGuest) Close(ctx context.Context) error {
	g.closed = true
	return nil
}

type fakeFactory struct {
	exports   map[string]bool
	onCall    func(guestName, export string)
	instances []*fakeGuest
}

func (f *fakeFactory) NewInstance(ctx context.Context, name string) (hostapi.Guest, error) {
	g := &fakeGuest{name: name, exports: f.exports, onCall: f.onCall}
	f.instances = append(f.instances, g)
	return g, nil
}

func newTestDaemon(factory *fakeFactory, in chan transport.InputMessage) (*Daemon, *task.Runtime, *devices.CompetitionPhase) {
	rt := task.NewRuntime(transport.DiscardSink)
	lcd := devices.NewLCD(transport.DiscardSink)
	controllers := devices.NewControllers()
	phase := devices.NewCompetitionPhase()
	ports := devices.NewSmartPorts(transport.DiscardSink)
	surface := hostapi.NewSurface(rt, lcd, controllers, phase, ports, transport.DiscardSink, factory)
	d := New(rt, surface, controllers, lcd, phase, ports, transport.DiscardSink, factory, in)
	return d, rt, phase
}

func TestDaemonPhaseTransitionedDisabledToDisabledIsNotAChange(t *testing.T) {
	d, _, _ := newTestDaemon(&fakeFactory{}, nil)
	d.havePhase = true
	d.lastPhase = phaseSnapshot{autonomous: false, enabled: false, isCompetition: false}

	if d.phaseTransitioned(phaseSnapshot{autonomous: false, enabled: false, isCompetition: true}) {
		t.Fatal("disabled->disabled across an isCompetition flip reported a transition")
	}
}

func TestDaemonPhaseTransitionedFirstObservationIsAChange(t *testing.T) {
	d, _, _ := newTestDaemon(&fakeFactory{}, nil)
	if !d.phaseTransitioned(phaseSnapshot{}) {
		t.Fatal("first phase observation did not report a transition")
	}
}

func TestDaemonPhaseTransitionedEnabledFlipIsAChange(t *testing.T) {
	d, _, _ := newTestDaemon(&fakeFactory{}, nil)
	d.havePhase = true
	d.lastPhase = phaseSnapshot{enabled: false}
	if !d.phaseTransitioned(phaseSnapshot{enabled: true}) {
		t.Fatal("disabled->enabled did not report a transition")
	}
}

func TestDaemonApplyDispatchesBeginSimulation(t *testing.T) {
	d, _, _ := newTestDaemon(&fakeFactory{}, nil)
	ready := false
	d.apply(transport.InputMessage{Type: transport.InputBeginSimulation}, &ready)
	if !ready {
		t.Fatal("BeginSimulation did not set readyToInit")
	}
}

func TestDaemonApplyDispatchesPhaseChange(t *testing.T) {
	d, _, phase := newTestDaemon(&fakeFactory{}, nil)
	ready := false
	d.apply(transport.InputMessage{Type: transport.InputPhaseChange, Autonomous: true, Enabled: true, IsCompetition: true}, &ready)

	autonomous, enabled, competition := phase.Snapshot()
	if !autonomous || !enabled || !competition {
		t.Fatalf("phase after apply = (%v,%v,%v), want (true,true,true)", autonomous, enabled, competition)
	}
}

func TestDaemonDrainStopsAtEmptyChannel(t *testing.T) {
	in := make(chan transport.InputMessage, 4)
	in <- transport.InputMessage{Type: transport.InputBeginSimulation}
	d, _, _ := newTestDaemon(&fakeFactory{}, in)

	if !d.drain() {
		t.Fatal("drain() did not observe the queued BeginSimulation message")
	}
	if d.drain() {
		t.Fatal("drain() on an empty channel reported readyToInit true")
	}
}

func TestDaemonSpawnEntrypointSkipsMissingExport(t *testing.T) {
	factory := &fakeFactory{exports: map[string]bool{}}
	in := make(chan transport.InputMessage, 1)
	d, rt, _ := newTestDaemon(factory, in)

	id, spawned := d.spawnEntrypoint(context.Background(), "autonomous")
	if spawned {
		t.Fatal("spawnEntrypoint reported spawned=true for a guest with no matching export")
	}
	if id != 0 {
		t.Fatalf("id = %d, want 0", id)
	}
	if len(rt.AllTasks()) != 0 {
		t.Fatal("a task was registered despite the guest lacking the export")
	}
	if len(factory.instances) != 1 || !factory.instances[0].closed {
		t.Fatal("guest with no matching export was not closed")
	}
}

func TestDaemonSpawnEntrypointSpawnsTaskWhenExportPresent(t *testing.T) {
	called := false
	factory := &fakeFactory{
		exports: map[string]bool{"autonomous": true},
		onCall:  func(guestName, export string) { called = true },
	}
	d, rt, _ := newTestDaemon(factory, nil)

	id, spawned := d.spawnEntrypoint(context.Background(), "autonomous")
	if !spawned || id == 0 {
		t.Fatalf("spawnEntrypoint = (%d, %v), want a nonzero id and spawned=true", id, spawned)
	}
	tsk := rt.Lookup(id)
	if tsk == nil {
		t.Fatal("spawned task not registered with the runtime")
	}
	rt.Run()
	if !called {
		t.Fatal("the guest's autonomous export was never called")
	}
}

func TestDaemonRunDrivesFullLifecycle(t *testing.T) {
	var calls []string
	factory := &fakeFactory{
		exports: map[string]bool{"initialize": true, "opcontrol": true},
	}
	in := make(chan transport.InputMessage, 4)
	d, rt, _ := newTestDaemon(factory, in)
	factory.onCall = func(guestName, export string) {
		calls = append(calls, export)
		if export == "opcontrol" {
			rt.RequestShutdown()
		}
	}

	in <- transport.InputMessage{Type: transport.InputBeginSimulation}
	in <- transport.InputMessage{Type: transport.InputPhaseChange, Enabled: true, IsCompetition: true}

	rt.Spawn(task.Options{Name: "daemon", Priority: task.DefaultPriority, Entry: d.Run})
	rt.Run()

	if len(calls) != 2 || calls[0] != "initialize" || calls[1] != "opcontrol" {
		t.Fatalf("calls = %v, want [initialize opcontrol]", calls)
	}
}
