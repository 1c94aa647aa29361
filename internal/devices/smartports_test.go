package devices

import (
	"testing"

	"github.com/intuitionamiga/proswasmhost/internal/transport"
)

func TestSmartPortsUnconfiguredPort(t *testing.T) {
	s := NewSmartPorts(transport.DiscardSink)
	if _, err := s.Motor(1); err == nil {
		t.Fatal("Motor on unconfigured port returned nil error")
	} else if _, ok := err.(ErrPortNotConfigured); !ok {
		t.Fatalf("error type = %T, want ErrPortNotConfigured", err)
	}
}

func TestSmartPortsUpdateSpecsConfiguresMotor(t *testing.T) {
	s := NewSmartPorts(transport.DiscardSink)
	s.UpdateSpecs(map[string]string{"1": "Motor"})

	m, err := s.Motor(1)
	if err != nil {
		t.Fatalf("Motor(1): %v", err)
	}
	if m.Kind() != KindMotor {
		t.Fatalf("Kind() = %v, want KindMotor", m.Kind())
	}
}

func TestSmartPortsUpdateSpecsPreservesInstanceOnSameKind(t *testing.T) {
	s := NewSmartPorts(transport.DiscardSink)
	s.UpdateSpecs(map[string]string{"1": "Motor"})
	first, _ := s.Motor(1)
	first.Move(50)

	s.UpdateSpecs(map[string]string{"1": "Motor"})
	second, _ := s.Motor(1)
	if first != second {
		t.Fatal("UpdateSpecs replaced the motor instance on an unchanged kind")
	}
}

func TestSmartPortsUpdateSpecsSkipsInvalidEntries(t *testing.T) {
	var warnings []string
	sink := transport.SinkFunc(func(e transport.OutputEvent) {
		if e.Type == transport.OutputWarning {
			warnings = append(warnings, e.Message)
		}
	})
	s := NewSmartPorts(sink)
	s.UpdateSpecs(map[string]string{"not-a-port": "Motor", "2": "Flux Capacitor"})

	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2 entries", warnings)
	}
	if _, err := s.Get(2); err == nil {
		t.Fatal("port 2 configured despite an unsupported device kind")
	}
}

func TestMotorMoveClampsAndWarns(t *testing.T) {
	var events []transport.OutputEvent
	sink := transport.SinkFunc(func(e transport.OutputEvent) { events = append(events, e) })
	s := NewSmartPorts(sink)
	s.UpdateSpecs(map[string]string{"1": "Motor"})

	if err := s.WithMotor(1, func(m *Motor) { m.Move(200) }); err != nil {
		t.Fatalf("WithMotor: %v", err)
	}

	var sawWarning, sawUpdate bool
	var volts int8
	for _, e := range events {
		switch e.Type {
		case transport.OutputWarning:
			sawWarning = true
		case transport.OutputMotorUpdated:
			sawUpdate = true
			volts = e.Volts
		}
	}
	if !sawWarning {
		t.Fatal("Move(200) did not emit a Warning before clamping")
	}
	if !sawUpdate || volts != 127 {
		t.Fatalf("MotorUpdated volts = %d, want 127", volts)
	}
}

func TestMotorSetBrakeModeRejectsUnknownValue(t *testing.T) {
	s := NewSmartPorts(transport.DiscardSink)
	s.UpdateSpecs(map[string]string{"1": "Motor"})

	var accepted bool
	_ = s.WithMotor(1, func(m *Motor) { accepted = m.SetBrakeMode(99) })
	if accepted {
		t.Fatal("SetBrakeMode(99) accepted, want rejected")
	}
}

func TestSmartPortsGetReturnsConfiguredDevice(t *testing.T) {
	s := NewSmartPorts(transport.DiscardSink)
	s.UpdateSpecs(map[string]string{"1": "Motor"})
	d, err := s.Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if d.Kind() != KindMotor {
		t.Fatalf("Kind() = %v, want KindMotor", d.Kind())
	}
}
