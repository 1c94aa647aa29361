// link.go - builds the "env" host module (§4.4) and stubs any import the
// guest references that is not part of the documented surface, each with a
// single Warning event at link time (§4.4, final paragraph; Non-goals:
// "only the documented subset is implemented; unimplemented imports become
// trapping stubs with a warning").
package hostapi

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// MemoryInitialPages and MemoryMaxPages match the Shared Linear Memory data
// model (§3): initial 18 pages x 64 KiB, max 16384 pages.
const (
	MemoryInitialPages = 18
	MemoryMaxPages     = 16384
)

// knownImports is every name §4.4 documents, used to decide which of the
// guest's referenced "env" imports need a trap stub instead of a real
// implementation.
var knownImports = map[string]bool{
	"lcd_initialize": true, "lcd_set_text": true, "lcd_clear_line": true, "lcd_clear": true,
	"lcd_register_btn0_cb": true, "lcd_register_btn1_cb": true, "lcd_register_btn2_cb": true,
	"mutex_create": true, "mutex_delete": true, "mutex_give": true, "mutex_take": true,
	"delay": true, "task_delay": true, "task_delay_until": true, "task_create": true,
	"task_delete": true, "task_get_current": true, "task_get_name": true, "millis": true,
	"pvTaskGetThreadLocalStoragePointer": true, "vTaskSetThreadLocalStoragePointer": true,
	"rtos_suspend_all": true, "rtos_resume_all": true,
	"controller_get_analog": true, "controller_get_digital": true, "controller_get_digital_new_press": true,
	"controller_is_connected": true, "controller_get_battery_capacity": true, "controller_get_battery_level": true,
	"competition_get_status": true, "competition_is_autonomous": true, "competition_is_connected": true, "competition_is_disabled": true,
	"motor_move": true, "motor_set_brake_mode": true, "motor_set_encoder_units": true,
	"__errno": true, "sim_abort": true, "sim_log_backtrace": true, "puts": true, "write": true, "exit": true,
}

// BuildEnvModule instantiates the "env" host module against rt, exporting
// every §4.4 function plus the shared linear memory, then adds a trap stub
// for each name compiled references under "env" that is not in
// knownImports, warning once per unknown import (§4.4).
func (s *Surface) BuildEnvModule(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule) (api.Module, error) {
	b := rt.NewHostModuleBuilder("env")
	b = b.ExportMemory("memory", MemoryInitialPages)

	b.NewFunctionBuilder().WithFunc(s.lcdInitialize).Export("lcd_initialize")
	b.NewFunctionBuilder().WithFunc(s.lcdSetText).Export("lcd_set_text")
	b.NewFunctionBuilder().WithFunc(s.lcdClearLine).Export("lcd_clear_line")
	b.NewFunctionBuilder().WithFunc(s.lcdClear).Export("lcd_clear")
	b.NewFunctionBuilder().WithFunc(s.registerButtonCallback(0)).Export("lcd_register_btn0_cb")
	b.NewFunctionBuilder().WithFunc(s.registerButtonCallback(1)).Export("lcd_register_btn1_cb")
	b.NewFunctionBuilder().WithFunc(s.registerButtonCallback(2)).Export("lcd_register_btn2_cb")

	b.NewFunctionBuilder().WithFunc(s.mutexCreate).Export("mutex_create")
	b.NewFunctionBuilder().WithFunc(s.mutexDelete).Export("mutex_delete")
	b.NewFunctionBuilder().WithFunc(s.mutexGive).Export("mutex_give")
	b.NewFunctionBuilder().WithFunc(s.mutexTake).Export("mutex_take")
	b.NewFunctionBuilder().WithFunc(s.delay).Export("delay")
	b.NewFunctionBuilder().WithFunc(s.delay).Export("task_delay")
	b.NewFunctionBuilder().WithFunc(s.taskDelayUntil).Export("task_delay_until")
	b.NewFunctionBuilder().WithFunc(s.taskCreate).Export("task_create")
	b.NewFunctionBuilder().WithFunc(s.taskDelete).Export("task_delete")
	b.NewFunctionBuilder().WithFunc(s.taskGetCurrent).Export("task_get_current")
	b.NewFunctionBuilder().WithFunc(s.taskGetName).Export("task_get_name")
	b.NewFunctionBuilder().WithFunc(s.millis).Export("millis")
	b.NewFunctionBuilder().WithFunc(s.getTLS).Export("pvTaskGetThreadLocalStoragePointer")
	b.NewFunctionBuilder().WithFunc(s.setTLS).Export("vTaskSetThreadLocalStoragePointer")
	b.NewFunctionBuilder().WithFunc(s.suspendAll).Export("rtos_suspend_all")
	b.NewFunctionBuilder().WithFunc(s.resumeAll).Export("rtos_resume_all")

	b.NewFunctionBuilder().WithFunc(s.controllerGetAnalog).Export("controller_get_analog")
	b.NewFunctionBuilder().WithFunc(s.controllerGetDigital).Export("controller_get_digital")
	b.NewFunctionBuilder().WithFunc(s.controllerGetDigitalNewPress).Export("controller_get_digital_new_press")
	b.NewFunctionBuilder().WithFunc(s.controllerIsConnected).Export("controller_is_connected")
	b.NewFunctionBuilder().WithFunc(s.controllerGetBattery).Export("controller_get_battery_capacity")
	b.NewFunctionBuilder().WithFunc(s.controllerGetBattery).Export("controller_get_battery_level")
	b.NewFunctionBuilder().WithFunc(s.competitionGetStatus).Export("competition_get_status")
	b.NewFunctionBuilder().WithFunc(s.competitionIsAutonomous).Export("competition_is_autonomous")
	b.NewFunctionBuilder().WithFunc(s.competitionIsConnected).Export("competition_is_connected")
	b.NewFunctionBuilder().WithFunc(s.competitionIsDisabled).Export("competition_is_disabled")

	b.NewFunctionBuilder().WithFunc(s.motorMove).Export("motor_move")
	b.NewFunctionBuilder().WithFunc(s.motorSetBrakeMode).Export("motor_set_brake_mode")
	b.NewFunctionBuilder().WithFunc(s.motorSetEncoderUnits).Export("motor_set_encoder_units")

	b.NewFunctionBuilder().WithFunc(s.errnoPtr).Export("__errno")
	b.NewFunctionBuilder().WithFunc(s.simAbort).Export("sim_abort")
	b.NewFunctionBuilder().WithFunc(s.simLogBacktrace).Export("sim_log_backtrace")
	b.NewFunctionBuilder().WithFunc(s.puts).Export("puts")
	b.NewFunctionBuilder().WithFunc(s.write).Export("write")
	b.NewFunctionBuilder().WithFunc(s.exit).Export("exit")

	for _, fn := range compiled.ImportedFunctions() {
		moduleName, name, isImport := fn.Import()
		if !isImport || moduleName != "env" || knownImports[name] {
			continue
		}
		stubName := name
		s.warn("unresolved import env.%s stubbed to trap", stubName)
		b.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				panic(fmt.Sprintf("hostapi: call to unimplemented import env.%s", stubName))
			}), fn.ParamTypes(), fn.ResultTypes()).
			Export(stubName)
	}

	return b.Instantiate(ctx)
}
