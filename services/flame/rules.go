package flame

import (
	"flamering-go/types"
)

// Rules parameterise the transition table.
type Rules struct {
	PanOnTh  uint16 // Standby -> PowerOn when any reading drops below this
	PanOffTh uint16 // PowerOn/PanShake -> Standby when a Changed reading rises above this

	// Entering Nikomi resets the level to the default.
	NikomiResetsLevel bool
	// A far Changed reading while simmering goes to Standby.
	NikomiExitsOnFar bool
	DefaultLevel     types.Level
}

func DefaultRules() Rules {
	return RulesFrom(types.DefaultFlameConfig())
}

func RulesFrom(cfg types.FlameConfig) Rules {
	return Rules{
		PanOnTh:           cfg.PanOnTh,
		PanOffTh:          cfg.PanOffTh,
		NikomiResetsLevel: cfg.NikomiResetsLevel,
		NikomiExitsOnFar:  cfg.NikomiExitsOnFar,
		DefaultLevel:      types.Level(cfg.DefaultLevel),
	}
}

// Transition returns the next mode and level. It is pure: the caller applies
// the result and drives the animations. Rows are evaluated in order and the
// first match wins; anything unmatched keeps mode and level.
func Transition(r Rules, mode types.Mode, level types.Level, ev types.Event) (types.Mode, types.Level) {
	switch mode {
	case types.ModePowerOff:
		if ev.IsButton(types.ButtonPower) {
			return types.ModeStandby, level
		}

	case types.ModeStandby:
		switch {
		case ev.IsButton(types.ButtonPower):
			return types.ModePowerOff, level
		case isProximity(ev) && ev.Proximity < r.PanOnTh:
			return types.ModePowerOn, level
		}

	case types.ModePowerOn:
		switch {
		case ev.IsButton(types.ButtonPower):
			return types.ModePowerOff, level
		case ev.IsButton(types.ButtonNikomi):
			return enterNikomi(r, level)
		case ev.IsButton(types.ButtonWeak), ev.IsButton(types.ButtonStrong):
			return adjust(mode, level, ev.Button)
		case ev.Kind == types.EventProximityChanged && ev.Proximity > r.PanOffTh:
			return types.ModeStandby, level
		case ev.Kind == types.EventProximityChanged:
			return types.ModePanShake, level
		}

	case types.ModePanShake:
		switch {
		case ev.IsButton(types.ButtonPower):
			return types.ModePowerOff, level
		case ev.Kind == types.EventProximityChanged && ev.Proximity > r.PanOffTh:
			return types.ModeStandby, level
		default:
			return types.ModePowerOn, level
		}

	case types.ModeNikomi:
		switch {
		case ev.IsButton(types.ButtonPower):
			return types.ModePowerOff, level
		case ev.IsButton(types.ButtonWeak), ev.IsButton(types.ButtonStrong):
			next, l := adjust(mode, level, ev.Button)
			if next == mode {
				// Already at the bound; leave simmer anyway.
				return types.ModePowerOn, l
			}
			return next, l
		case ev.Kind == types.EventProximityChanged && ev.Proximity <= r.PanOffTh:
			return types.ModePanShake, level
		case ev.Kind == types.EventProximityChanged && r.NikomiExitsOnFar:
			return types.ModeStandby, level
		}

	case types.ModeLevelUp, types.ModeLevelDown:
		return types.ModePowerOn, level
	}
	return mode, level
}

func isProximity(ev types.Event) bool {
	return ev.Kind == types.EventProximityChanged || ev.Kind == types.EventProximityCurrent
}

func enterNikomi(r Rules, level types.Level) (types.Mode, types.Level) {
	if r.NikomiResetsLevel {
		return types.ModeNikomi, r.DefaultLevel
	}
	return types.ModeNikomi, level
}

// adjust applies Weak/Strong. At a bound the mode is kept.
func adjust(mode types.Mode, level types.Level, b types.ButtonKind) (types.Mode, types.Level) {
	if b == types.ButtonWeak {
		if l, ok := level.Down(); ok {
			return types.ModeLevelDown, l
		}
		return mode, level
	}
	if l, ok := level.Up(); ok {
		return types.ModeLevelUp, l
	}
	return mode, level
}
