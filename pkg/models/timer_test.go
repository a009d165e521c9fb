package models

import "testing"

func TestTimerRoundTrip(t *testing.T) {
	t.Parallel()

	for _, seconds := range []uint32{0, 1, 30, 60, 3600, 86400, 4294967295} {
		timer := TimerFromSeconds(seconds)
		if timer.Seconds() != seconds {
			t.Errorf("seconds round trip failed for %d: got %d", seconds, timer.Seconds())
		}

		parsed, err := ParseTimer(timer.String())
		if err != nil {
			t.Fatalf("failed to parse %q: %v", timer.String(), err)
		}
		if parsed != timer {
			t.Errorf("string round trip failed for %d: got %v", seconds, parsed)
		}
	}
}

func TestTimerEnabled(t *testing.T) {
	t.Parallel()

	if TimerDisabled.IsEnabled() {
		t.Error("disabled timer reports enabled")
	}
	if !TimerFromSeconds(1).IsEnabled() {
		t.Error("one second timer reports disabled")
	}
	if TimerDisabled.String() != "0" {
		t.Errorf("unexpected disabled representation: %q", TimerDisabled.String())
	}
}

func TestTimerParseInvalid(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "x", "-1", "4294967296"} {
		if _, err := ParseTimer(input); err == nil {
			t.Errorf("expected parse error for %q", input)
		}
	}
}

func TestTimerScan(t *testing.T) {
	t.Parallel()

	var timer Timer
	if err := timer.Scan(int64(60)); err != nil {
		t.Fatalf("failed to scan valid value: %v", err)
	}
	if timer != TimerFromSeconds(60) {
		t.Errorf("unexpected scanned timer: %v", timer)
	}

	if err := timer.Scan(int64(-1)); err == nil {
		t.Error("expected out of range error for -1")
	}
	if err := timer.Scan(int64(1) << 32); err == nil {
		t.Error("expected out of range error for 2^32")
	}
	if err := timer.Scan(int64(4294967295)); err != nil {
		t.Errorf("u32 max should be in range: %v", err)
	}

	if err := timer.Scan(nil); err != nil {
		t.Fatalf("failed to scan NULL: %v", err)
	}
	if timer != TimerDisabled {
		t.Errorf("NULL should scan to disabled, got %v", timer)
	}
}
