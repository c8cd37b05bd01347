package types

import (
	"encoding/json"
	"time"

	"flamering-go/errcode"
)

// Flame configuration supplied on topic "config/flame".

type FlameConfig struct {
	PanOnTh         uint16 `json:"pan_on_th"`        // Standby -> PowerOn when closer than this
	PanOffTh        uint16 `json:"pan_off_th"`       // PowerOn/PanShake -> Standby when farther than this
	ChangeThreshold uint16 `json:"change_threshold"` // ProximityChanged hysteresis
	DefaultLevel    uint8  `json:"default_level"`
	TickMs          uint32 `json:"tick_ms"`
	PollMs          uint32 `json:"poll_ms"`
	QueueLen        int    `json:"queue_len"`
	DebounceMs      uint16 `json:"debounce_ms"`

	// Legacy nikomi behaviour, off by default.
	NikomiResetsLevel bool `json:"nikomi_resets_level"`
	NikomiExitsOnFar  bool `json:"nikomi_exits_on_far"`

	Pins RingPins `json:"pins"`
}

// RingPins is the board wiring (GP numbers on RP2).
type RingPins struct {
	Power  int    `json:"power"`
	Weak   int    `json:"weak"`
	Strong int    `json:"strong"`
	Nikomi int    `json:"nikomi"`
	PWM0   int    `json:"pwm0"`
	PWM1   int    `json:"pwm1"`
	I2C    string `json:"i2c"`
	SDA    int    `json:"sda"`
	SCL    int    `json:"scl"`
}

// Button returns the pin wired to b.
func (p RingPins) Button(b ButtonKind) int {
	switch b {
	case ButtonPower:
		return p.Power
	case ButtonWeak:
		return p.Weak
	case ButtonStrong:
		return p.Strong
	default:
		return p.Nikomi
	}
}

func DefaultFlameConfig() FlameConfig {
	return FlameConfig{
		PanOnTh:         1500,
		PanOffTh:        3500,
		ChangeThreshold: 10,
		DefaultLevel:    uint8(DefaultLevel),
		TickMs:          10,
		PollMs:          50,
		QueueLen:        4,
		Pins: RingPins{
			Power: 9, Weak: 7, Strong: 8, Nikomi: 6,
			PWM0: 4, PWM1: 5,
			I2C: "i2c0", SDA: 12, SCL: 13,
		},
	}
}

func (c FlameConfig) Tick() time.Duration { return time.Duration(c.TickMs) * time.Millisecond }
func (c FlameConfig) Poll() time.Duration { return time.Duration(c.PollMs) * time.Millisecond }

// Validate checks the invariants the state machine relies on.
func (c FlameConfig) Validate() error {
	switch {
	case c.PanOnTh >= c.PanOffTh:
		return &errcode.E{C: errcode.InvalidParams, Op: "flame.config", Msg: "pan_on_th must be below pan_off_th"}
	case Level(c.DefaultLevel) > MaxLevel:
		return &errcode.E{C: errcode.InvalidParams, Op: "flame.config", Msg: "default_level out of range"}
	case c.TickMs == 0 || c.PollMs == 0:
		return &errcode.E{C: errcode.InvalidParams, Op: "flame.config", Msg: "periods must be positive"}
	case c.QueueLen <= 0:
		return &errcode.E{C: errcode.InvalidParams, Op: "flame.config", Msg: "queue_len must be positive"}
	}
	return nil
}

// DecodeFlameConfig overlays src (raw JSON or an already decoded JSON value)
// on the defaults and validates the result.
func DecodeFlameConfig(src any) (FlameConfig, error) {
	cfg := DefaultFlameConfig()
	if src == nil {
		return cfg, nil
	}
	if err := decodeJSON(src, &cfg); err != nil {
		return DefaultFlameConfig(), errcode.Wrap(errcode.InvalidPayload, "flame.config", err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultFlameConfig(), err
	}
	return cfg, nil
}

// Heartbeat configuration supplied on topic "config/heartbeat".

type HeartbeatConfig struct {
	Interval float64 `json:"interval"` // seconds
}

func (c HeartbeatConfig) Period() time.Duration {
	if c.Interval <= 0 {
		return time.Second
	}
	return time.Duration(c.Interval * float64(time.Second))
}

func DecodeHeartbeatConfig(src any) (HeartbeatConfig, error) {
	var cfg HeartbeatConfig
	if err := decodeJSON(src, &cfg); err != nil {
		return HeartbeatConfig{}, errcode.Wrap(errcode.InvalidPayload, "heartbeat.config", err)
	}
	return cfg, nil
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
