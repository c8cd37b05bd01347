package types

// ------------------------
// Flame telemetry (retained, topics flame/...)
// ------------------------

type FlameState struct {
	Mode  string `json:"mode"`
	Level uint8  `json:"level"`
	Duty  uint8  `json:"duty_percent"` // steady-state duty implied by Level
	TS    int64  `json:"ts_ms"`
}

type ProximityValue struct {
	Magnitude uint16 `json:"magnitude"` // larger = farther
	TS        int64  `json:"ts_ms"`
}

// SensorStatus is published when the proximity sensor changes health.
type SensorStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    int64  `json:"ts_ms"`
}
