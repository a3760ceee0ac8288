package transcoder

import (
	"strings"
	"testing"

	"github.com/wippyai/lua-runtime/engine"
)

func TestEncodeChargesMeter(t *testing.T) {
	tc, _ := newTestTranscoder(t)
	meter := engine.NewMemoryMeter(0)
	tc.Meter = meter

	if _, err := tc.Encode(strings.Repeat("x", 1000), Reference); err != nil {
		t.Fatal(err)
	}
	if meter.Used() < 1000 {
		t.Fatalf("string not charged: used = %d", meter.Used())
	}

	before := meter.Used()
	if _, err := tc.Encode(map[string]any{"a": 1, "b": 2}, Deep); err != nil {
		t.Fatal(err)
	}
	if meter.Used() <= before {
		t.Fatal("table copy not charged")
	}
}

func TestEncodeRefusedOverBudget(t *testing.T) {
	tc, _ := newTestTranscoder(t)
	tc.Meter = engine.NewMemoryMeter(64)

	if _, err := tc.Encode(strings.Repeat("x", 1000), Reference); err == nil {
		t.Fatal("expected out-of-memory refusal")
	}
	// Small values still fit.
	if _, err := tc.Encode("ok", Reference); err != nil {
		t.Fatal(err)
	}
}
