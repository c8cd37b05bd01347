package types

// ------------------------
// Modes
// ------------------------

// Mode is the operating state of the ring controller.
type Mode uint8

const (
	ModePowerOff Mode = iota
	ModeStandby
	ModePowerOn
	ModePanShake
	ModeNikomi
	ModeLevelUp
	ModeLevelDown
)

func (m Mode) String() string {
	switch m {
	case ModePowerOff:
		return "power_off"
	case ModeStandby:
		return "standby"
	case ModePowerOn:
		return "power_on"
	case ModePanShake:
		return "pan_shake"
	case ModeNikomi:
		return "nikomi"
	case ModeLevelUp:
		return "level_up"
	case ModeLevelDown:
		return "level_down"
	default:
		return "unknown"
	}
}

// Transient reports whether the mode is a one-tick level pulse.
func (m Mode) Transient() bool { return m == ModeLevelUp || m == ModeLevelDown }

// ------------------------
// Buttons
// ------------------------

type ButtonKind uint8

const (
	ButtonPower ButtonKind = iota
	ButtonWeak
	ButtonStrong
	ButtonNikomi
)

// Buttons lists every physical button, in wiring order.
var Buttons = [...]ButtonKind{ButtonPower, ButtonWeak, ButtonStrong, ButtonNikomi}

func (b ButtonKind) String() string {
	switch b {
	case ButtonPower:
		return "power"
	case ButtonWeak:
		return "weak"
	case ButtonStrong:
		return "strong"
	case ButtonNikomi:
		return "nikomi"
	default:
		return "unknown"
	}
}

// ParseButtonKind is the inverse of ButtonKind.String.
func ParseButtonKind(s string) (ButtonKind, bool) {
	for _, b := range Buttons {
		if b.String() == s {
			return b, true
		}
	}
	return 0, false
}

// ------------------------
// Events
// ------------------------

type EventKind uint8

const (
	EventNone EventKind = iota
	EventButtonPressed
	EventProximityChanged
	EventProximityCurrent
)

// Event is the tagged union carried by the event mailbox. Only the field that
// matches Kind is meaningful; the zero value means "no event".
type Event struct {
	Kind      EventKind
	Button    ButtonKind
	Proximity uint16
}

func ButtonPressed(b ButtonKind) Event {
	return Event{Kind: EventButtonPressed, Button: b}
}

func ProximityChanged(p uint16) Event {
	return Event{Kind: EventProximityChanged, Proximity: p}
}

func ProximityCurrent(p uint16) Event {
	return Event{Kind: EventProximityCurrent, Proximity: p}
}

// IsButton reports whether e is ButtonPressed(b).
func (e Event) IsButton(b ButtonKind) bool {
	return e.Kind == EventButtonPressed && e.Button == b
}

func (e Event) String() string {
	switch e.Kind {
	case EventButtonPressed:
		return "button_pressed(" + e.Button.String() + ")"
	case EventProximityChanged:
		return "proximity_changed(" + utoa(uint32(e.Proximity)) + ")"
	case EventProximityCurrent:
		return "proximity_current(" + utoa(uint32(e.Proximity)) + ")"
	default:
		return "none"
	}
}

func utoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// ------------------------
// Brightness
// ------------------------

// Level is a brightness tier in [MinLevel, MaxLevel].
type Level uint8

const (
	MinLevel     Level = 0
	MaxLevel     Level = 9
	DefaultLevel Level = 5
)

// Percent maps a level onto the 10%-per-level duty scale, [10, 100].
func (l Level) Percent() uint8 { return (uint8(l) + 1) * 10 }

// Up returns the next level and true, or l and false at MaxLevel.
func (l Level) Up() (Level, bool) {
	if l >= MaxLevel {
		return l, false
	}
	return l + 1, true
}

// Down returns the previous level and true, or l and false at MinLevel.
func (l Level) Down() (Level, bool) {
	if l <= MinLevel {
		return l, false
	}
	return l - 1, true
}
