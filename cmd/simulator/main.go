// main.go - simulator: loads a robot wasm binary and drives it through the
// competition lifecycle, exchanging JSON events over stdin/stdout.
//
// Grounded on the root module's main.go argument-parsing/exit-code
// conventions and cmd/ie32to64/main.go's flag.Usage style, stripped of the
// GUI/audio/video wiring those commands need and replaced with the wasm
// host loop this spec actually calls for.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"golang.org/x/sync/errgroup"

	"github.com/intuitionamiga/proswasmhost/internal/daemon"
	"github.com/intuitionamiga/proswasmhost/internal/devices"
	"github.com/intuitionamiga/proswasmhost/internal/hostapi"
	"github.com/intuitionamiga/proswasmhost/internal/task"
	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

func main() {
	stdio := flag.Bool("stdio", false, "speak line-delimited JSON over stdin/stdout (required)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: simulator --stdio robot.wasm\n\nLoads a PROS/VEX V5 robot wasm binary and drives it through the\ncompetition lifecycle, exchanging JSON events over stdin/stdout.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if !*stdio || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	wasmPath := flag.Arg(0)

	if err := run(wasmPath); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

// stdoutSink emits one JSON object per line to stdout (§6: the boundary
// collaborator's event framing).
type stdoutSink struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func newStdoutSink() *stdoutSink {
	w := bufio.NewWriter(os.Stdout)
	return &stdoutSink{w: w, enc: json.NewEncoder(w)}
}

func (s *stdoutSink) Emit(e transport.OutputEvent) {
	_ = s.enc.Encode(e)
	_ = s.w.Flush()
}

func run(wasmPath string) error {
	bin, err := os.ReadFile(wasmPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", wasmPath, err)
	}

	ctx := context.Background()

	// MemoryLimitPages bounds the guest's linear memory at the data
	// model's declared maximum (§3); hostapi.MemoryInitialPages seeds the
	// "env" module's exported memory at instantiation.
	rtCfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(hostapi.MemoryMaxPages)
	wzRuntime := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	defer wzRuntime.Close(ctx)

	compiled, err := wzRuntime.CompileModule(ctx, bin)
	if err != nil {
		return fmt.Errorf("compiling %s: %w", wasmPath, err)
	}

	sink := newStdoutSink()

	lcd := devices.NewLCD(sink)
	controllers := devices.NewControllers()
	phase := devices.NewCompetitionPhase()
	ports := devices.NewSmartPorts(sink)

	rt := task.NewRuntime(sink)
	factory := hostapi.NewWazeroFactory(wzRuntime, compiled, 0)
	surface := hostapi.NewSurface(rt, lcd, controllers, phase, ports, sink, factory)

	if _, err := surface.BuildEnvModule(ctx, wzRuntime, compiled); err != nil {
		return fmt.Errorf("linking env module: %w", err)
	}

	in := make(chan transport.InputMessage, 64)

	d := daemon.New(rt, surface, controllers, lcd, phase, ports, sink, factory, in)
	// The daemon shares the default user-task priority (§4.3): a daemon
	// spawned strictly above it would never yield the CPU back to user
	// code under this runtime's busy-poll delay model, since the
	// scheduler only ever runs the single highest-priority ready set.
	rt.Spawn(task.Options{Name: "daemon", Priority: task.DefaultPriority, Entry: d.Run})

	// The stdin reader and the task driver loop are two independent
	// pumps feeding and draining the same process; errgroup supervises
	// them together the way runtime_ipc.go's request loop and its
	// dispatch worker are supervised as one unit.
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		readStdin(in)
		return nil
	})
	g.Go(func() error {
		rt.Run()
		// Unblock a reader still parked in Decode on a pipe that never
		// sends EOF of its own accord, so both pumps can join.
		_ = os.Stdin.Close()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	sink.Emit(transport.OutputEvent{Type: transport.OutputAllTasksFinished})
	return nil
}

// readStdin decodes one JSON InputMessage per line and forwards it to in,
// closing in once stdin is exhausted so the daemon's drain loop sees a
// closed channel rather than blocking forever on a dead pipe.
func readStdin(in chan<- transport.InputMessage) {
	defer close(in)
	dec := json.NewDecoder(bufio.NewReader(os.Stdin))
	for {
		var msg transport.InputMessage
		if err := dec.Decode(&msg); err != nil {
			return
		}
		in <- msg
	}
}
