package engine

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/lua-runtime/errors"
)

func TestMeterBudget(t *testing.T) {
	m := NewMemoryMeter(100)

	if err := m.Charge(60); err != nil {
		t.Fatalf("first charge: %v", err)
	}
	if err := m.Charge(50); err == nil {
		t.Fatal("expected out-of-memory")
	} else if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindOutOfMemory}) {
		t.Fatalf("wrong kind: %v", err)
	}
	// Refused charge must not change usage.
	if m.Used() != 60 {
		t.Fatalf("used = %d, want 60", m.Used())
	}
	if err := m.Charge(40); err != nil {
		t.Fatalf("charge to exact ceiling: %v", err)
	}
}

func TestMeterUnlimited(t *testing.T) {
	m := NewMemoryMeter(0)
	if err := m.Charge(1 << 40); err != nil {
		t.Fatalf("unlimited meter refused charge: %v", err)
	}
}

func TestMeterLowerBelowUsage(t *testing.T) {
	m := NewMemoryMeter(0)
	if err := m.Charge(1000); err != nil {
		t.Fatal(err)
	}

	// Lowering below current usage must not retroactively fail...
	m.SetMax(500)
	if m.Used() != 1000 {
		t.Fatalf("usage changed on SetMax: %d", m.Used())
	}
	// ...but the next charge is refused.
	if err := m.Charge(1); err == nil {
		t.Fatal("expected refusal after lowering budget")
	}

	m.Credit(800)
	if err := m.Charge(100); err != nil {
		t.Fatalf("charge after credit: %v", err)
	}
}

func TestMeterCreditFloor(t *testing.T) {
	m := NewMemoryMeter(100)
	m.Credit(50)
	if m.Used() != 0 {
		t.Fatalf("used went negative: %d", m.Used())
	}
}
