package devices

import "testing"

func TestCompetitionPhaseAsBits(t *testing.T) {
	tests := []struct {
		name                             string
		autonomous, enabled, competition bool
		want                             uint32
	}{
		{"disabled not competing", false, false, false, PhaseBitDisabled},
		{"enabled opcontrol", false, true, true, PhaseBitConnected},
		{"enabled autonomous", true, true, true, PhaseBitAutonomous | PhaseBitConnected},
		{"disabled competing", false, false, true, PhaseBitDisabled | PhaseBitConnected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewCompetitionPhase()
			p.Set(tc.autonomous, tc.enabled, tc.competition)
			if got := p.AsBits(); got != tc.want {
				t.Fatalf("AsBits() = 0x%02x, want 0x%02x", got, tc.want)
			}
		})
	}
}

func TestCompetitionPhaseSnapshot(t *testing.T) {
	p := NewCompetitionPhase()
	p.Set(true, false, true)
	autonomous, enabled, competition := p.Snapshot()
	if !autonomous || enabled || !competition {
		t.Fatalf("Snapshot() = (%v, %v, %v), want (true, false, true)", autonomous, enabled, competition)
	}
}
