package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx with WithDevice)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `{
  "flame": {
      "pan_on_th": 1500,
      "pan_off_th": 3500,
      "change_threshold": 10,
      "default_level": 5,
      "tick_ms": 10,
      "poll_ms": 50,
      "queue_len": 4,
      "debounce_ms": 0,
      "pins": {
          "power": 9, "weak": 7, "strong": 8, "nikomi": 6,
          "pwm0": 4, "pwm1": 5,
          "i2c": "i2c0", "sda": 12, "scl": 13
      }
  },
  "heartbeat": {
      "interval": 2
  },
  "bridge": {
      "transport": {
          "type": "uart",
          "uart": {"bus": "uart1", "baud": 115200, "tx_pin": 20, "rx_pin": 21}
      },
      "ping_ms": 5000
  }
}`

// cfgSim drives the host simulator: same wiring, slower heartbeat.
const cfgSim = `{
  "flame": {
      "pan_on_th": 1500,
      "pan_off_th": 3500,
      "queue_len": 4
  },
  "heartbeat": {
      "interval": 5
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"sim":  []byte(cfgSim),
}
