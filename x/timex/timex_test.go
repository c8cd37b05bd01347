package timex

import (
	"context"
	"testing"
	"time"
)

func TestPeriodFromHz(t *testing.T) {
	if PeriodFromHz(100) != 10_000_000 {
		t.Fatalf("100 Hz should be a 10 ms period, got %d", PeriodFromHz(100))
	}
	if PeriodFromHz(0) != 1_000_000_000 {
		t.Fatal("0 Hz should be coerced to 1 Hz")
	}
}

func TestRealSleeperCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if (RealSleeper{}).Sleep(ctx, time.Hour) {
		t.Fatal("expected false on cancelled context")
	}
	if !(RealSleeper{}).Sleep(context.Background(), time.Millisecond) {
		t.Fatal("expected true after a short sleep")
	}
}

func TestVirtualSleeperAccumulates(t *testing.T) {
	var v VirtualSleeper
	ctx := context.Background()
	v.Sleep(ctx, 10*time.Millisecond)
	v.Sleep(ctx, 5*time.Millisecond)
	v.Sleep(ctx, -time.Second)
	if v.Elapsed != 15*time.Millisecond {
		t.Fatalf("elapsed = %v", v.Elapsed)
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if v.Sleep(cctx, time.Second) || v.Elapsed != 15*time.Millisecond {
		t.Fatal("cancelled sleep must not advance the clock")
	}
}

func TestResetAndDrainTimer(t *testing.T) {
	tm := time.NewTimer(time.Hour)
	// Reset to near-zero and ensure it fires quickly.
	ResetTimer(tm, 1*time.Millisecond)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after ResetTimer")
	}
	// Negative reset clamps to zero and should fire immediately.
	ResetTimer(tm, -1)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after negative ResetTimer")
	}
}
