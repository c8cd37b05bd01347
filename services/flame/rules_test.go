package flame

import (
	"testing"

	"flamering-go/types"
)

var (
	power  = types.ButtonPressed(types.ButtonPower)
	weak   = types.ButtonPressed(types.ButtonWeak)
	strong = types.ButtonPressed(types.ButtonStrong)
	nikomi = types.ButtonPressed(types.ButtonNikomi)
	none   = types.Event{}
)

func changed(p uint16) types.Event { return types.ProximityChanged(p) }
func current(p uint16) types.Event { return types.ProximityCurrent(p) }

func TestTransitionTable(t *testing.T) {
	r := DefaultRules()
	const L = types.DefaultLevel
	cases := []struct {
		name  string
		mode  types.Mode
		level types.Level
		ev    types.Event
		want  types.Mode
		wantL types.Level
	}{
		{"off/power", types.ModePowerOff, L, power, types.ModeStandby, L},
		{"off/other", types.ModePowerOff, L, changed(0), types.ModePowerOff, L},
		{"off/none", types.ModePowerOff, L, none, types.ModePowerOff, L},

		{"standby/power", types.ModeStandby, L, power, types.ModePowerOff, L},
		{"standby/near changed", types.ModeStandby, L, changed(1499), types.ModePowerOn, L},
		{"standby/near current", types.ModeStandby, L, current(1499), types.ModePowerOn, L},
		{"standby/boundary", types.ModeStandby, L, changed(1500), types.ModeStandby, L},
		{"standby/boundary current", types.ModeStandby, L, current(1500), types.ModeStandby, L},
		{"standby/weak", types.ModeStandby, L, weak, types.ModeStandby, L},

		{"on/power", types.ModePowerOn, L, power, types.ModePowerOff, L},
		{"on/weak", types.ModePowerOn, L, weak, types.ModeLevelDown, L - 1},
		{"on/strong", types.ModePowerOn, L, strong, types.ModeLevelUp, L + 1},
		{"on/weak at min", types.ModePowerOn, types.MinLevel, weak, types.ModePowerOn, types.MinLevel},
		{"on/strong at max", types.ModePowerOn, types.MaxLevel, strong, types.ModePowerOn, types.MaxLevel},
		{"on/nikomi", types.ModePowerOn, 2, nikomi, types.ModeNikomi, 2},
		{"on/far", types.ModePowerOn, L, changed(3501), types.ModeStandby, L},
		{"on/boundary", types.ModePowerOn, L, changed(3500), types.ModePanShake, L},
		{"on/current ignored", types.ModePowerOn, L, current(4000), types.ModePowerOn, L},

		{"pan/power", types.ModePanShake, L, power, types.ModePowerOff, L},
		{"pan/far", types.ModePanShake, L, changed(3501), types.ModeStandby, L},
		{"pan/near", types.ModePanShake, L, changed(3500), types.ModePowerOn, L},
		{"pan/none", types.ModePanShake, L, none, types.ModePowerOn, L},
		{"pan/strong", types.ModePanShake, L, strong, types.ModePowerOn, L},

		{"nikomi/power", types.ModeNikomi, L, power, types.ModePowerOff, L},
		{"nikomi/weak", types.ModeNikomi, L, weak, types.ModeLevelDown, L - 1},
		{"nikomi/strong", types.ModeNikomi, L, strong, types.ModeLevelUp, L + 1},
		{"nikomi/weak at min", types.ModeNikomi, types.MinLevel, weak, types.ModePowerOn, types.MinLevel},
		{"nikomi/strong at max", types.ModeNikomi, types.MaxLevel, strong, types.ModePowerOn, types.MaxLevel},
		{"nikomi/near", types.ModeNikomi, L, changed(3500), types.ModePanShake, L},
		{"nikomi/far", types.ModeNikomi, L, changed(3501), types.ModeNikomi, L},
		{"nikomi/nikomi", types.ModeNikomi, L, nikomi, types.ModeNikomi, L},
		{"nikomi/none", types.ModeNikomi, L, none, types.ModeNikomi, L},

		{"up/any", types.ModeLevelUp, 6, power, types.ModePowerOn, 6},
		{"down/none", types.ModeLevelDown, 4, none, types.ModePowerOn, 4},
	}
	for _, c := range cases {
		m, l := Transition(r, c.mode, c.level, c.ev)
		if m != c.want || l != c.wantL {
			t.Fatalf("%s: got %s/%d, want %s/%d", c.name, m, l, c.want, c.wantL)
		}
	}
}

func TestLevelStaysInRange(t *testing.T) {
	r := DefaultRules()
	for _, start := range []types.Mode{types.ModePowerOn, types.ModeNikomi} {
		for l := types.MinLevel; l <= types.MaxLevel; l++ {
			for _, ev := range []types.Event{weak, strong} {
				_, got := Transition(r, start, l, ev)
				if got > types.MaxLevel {
					t.Fatalf("%s level %d %s -> %d", start, l, ev, got)
				}
			}
		}
	}
}

func TestHysteresisBand(t *testing.T) {
	r := DefaultRules()
	band := []uint16{1500, 1501, 2500, 3499, 3500}

	// Standby never wakes on in-band readings.
	for _, p := range band {
		for _, ev := range []types.Event{changed(p), current(p)} {
			if m, _ := Transition(r, types.ModeStandby, 5, ev); m != types.ModeStandby {
				t.Fatalf("standby woke on %s", ev)
			}
		}
	}

	// A lit ring bounces between PowerOn and PanShake but never goes dark.
	mode := types.ModePanShake
	for i := 0; i < 50; i++ {
		mode, _ = Transition(r, mode, 5, changed(band[i%len(band)]))
		if mode != types.ModePowerOn && mode != types.ModePanShake {
			t.Fatalf("step %d: in-band reading moved to %s", i, mode)
		}
	}
}

func TestOptionalNikomiRules(t *testing.T) {
	r := DefaultRules()
	r.NikomiResetsLevel = true
	r.NikomiExitsOnFar = true

	if m, l := Transition(r, types.ModePowerOn, 8, nikomi); m != types.ModeNikomi || l != types.DefaultLevel {
		t.Fatalf("reset: got %s/%d", m, l)
	}
	if m, _ := Transition(r, types.ModeNikomi, 5, changed(3501)); m != types.ModeStandby {
		t.Fatalf("far exit: got %s", m)
	}
	if m, _ := Transition(r, types.ModeNikomi, 5, changed(3500)); m != types.ModePanShake {
		t.Fatalf("near: got %s", m)
	}
}

func TestRulesFromConfig(t *testing.T) {
	cfg := types.DefaultFlameConfig()
	cfg.PanOnTh, cfg.PanOffTh = 100, 200
	r := RulesFrom(cfg)
	if m, _ := Transition(r, types.ModeStandby, 5, changed(99)); m != types.ModePowerOn {
		t.Fatalf("custom pan_on_th ignored: %s", m)
	}
	if m, _ := Transition(r, types.ModePowerOn, 5, changed(201)); m != types.ModeStandby {
		t.Fatalf("custom pan_off_th ignored: %s", m)
	}
}
