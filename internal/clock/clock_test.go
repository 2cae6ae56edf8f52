package clock

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestRemainingMillis(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		elapsed  time.Duration
		want     int64
	}{
		{name: "just started", duration: 30, elapsed: 0, want: 30 * 60_000},
		{name: "one second in", duration: 30, elapsed: time.Second, want: 30*60_000 - 1000},
		{name: "halfway", duration: 30, elapsed: 15 * time.Minute, want: 15 * 60_000},
		{name: "exactly expired", duration: 30, elapsed: 30 * time.Minute, want: 0},
		{name: "past expiry floors at zero", duration: 30, elapsed: 31 * time.Minute, want: 0},
		{name: "far past expiry never negative", duration: 1, elapsed: 24 * time.Hour, want: 0},
		{name: "sub-second precision", duration: 1, elapsed: 500 * time.Millisecond, want: 59_500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RemainingMillis(tc.duration, base, base.Add(tc.elapsed))
			if got != tc.want {
				t.Fatalf("RemainingMillis = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRemainingMillis_ExactDifference(t *testing.T) {
	// For all E < D the result must be exactly D−E, not an approximation.
	for _, elapsedMs := range []int64{0, 1, 999, 1000, 60_000, 1_799_999} {
		got := RemainingMillis(30, base, base.Add(time.Duration(elapsedMs)*time.Millisecond))
		want := 30*60_000 - elapsedMs
		if got != want {
			t.Fatalf("elapsed=%dms: got %d, want %d", elapsedMs, got, want)
		}
	}
}

func TestCheck_GraceWindow(t *testing.T) {
	const grace = time.Second

	tests := []struct {
		name     string
		duration int
		elapsed  time.Duration
		wantLate bool
	}{
		{name: "well within duration", duration: 30, elapsed: 29*time.Minute + 59*time.Second, wantLate: false},
		{name: "exactly at duration", duration: 30, elapsed: 30 * time.Minute, wantLate: false},
		{name: "inside grace window", duration: 30, elapsed: 30*time.Minute + 999*time.Millisecond, wantLate: false},
		{name: "at grace boundary", duration: 30, elapsed: 30*time.Minute + time.Second, wantLate: false},
		{name: "past grace window", duration: 30, elapsed: 30*time.Minute + 5*time.Second, wantLate: true},
		{name: "one ms past grace", duration: 30, elapsed: 30*time.Minute + 1001*time.Millisecond, wantLate: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.duration, grace, base, base.Add(tc.elapsed))
			if v.Late != tc.wantLate {
				t.Fatalf("Late = %v, want %v", v.Late, tc.wantLate)
			}
			if v.ElapsedMs != tc.elapsed.Milliseconds() {
				t.Fatalf("ElapsedMs = %d, want %d", v.ElapsedMs, tc.elapsed.Milliseconds())
			}
		})
	}
}

func TestCheck_ThirtyMinuteScenarios(t *testing.T) {
	// duration=30min, start at T: finalize at T+29:59 is accepted on time
	// with elapsed 29:59; finalize at T+30:05 is accepted but flagged late.
	onTime := Check(30, time.Second, base, base.Add(29*time.Minute+59*time.Second))
	if onTime.Late {
		t.Fatal("finalize at 29:59 must not be late")
	}
	if onTime.ElapsedMs != (29*60+59)*1000 {
		t.Fatalf("elapsed = %dms, want %dms", onTime.ElapsedMs, (29*60+59)*1000)
	}

	late := Check(30, time.Second, base, base.Add(30*time.Minute+5*time.Second))
	if !late.Late {
		t.Fatal("finalize at 30:05 must be flagged late")
	}
	if late.RemainingMs != 0 {
		t.Fatalf("remaining = %dms, want 0", late.RemainingMs)
	}
}

func TestCheck_ClockSkewBeforeStart(t *testing.T) {
	// A now earlier than startedAt clamps elapsed to zero rather than
	// producing a negative duration.
	v := Check(30, time.Second, base, base.Add(-5*time.Second))
	if v.ElapsedMs != 0 {
		t.Fatalf("ElapsedMs = %d, want 0", v.ElapsedMs)
	}
	if v.Late {
		t.Fatal("skewed clock must not flag late")
	}
}
