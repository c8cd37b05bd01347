package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"flamering-go/bus"
	"flamering-go/errcode"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
)

type ctxKey string

const ctxDeviceKey ctxKey = "device" // context key used for device ID

// WithDevice stores the device ID whose embedded config should be published.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ctxDeviceKey, device)
}

// Topic returns the retained topic carrying one config section.
func Topic(key string) bus.Topic { return bus.T(configPrefix, key) }

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	log  *slog.Logger
}

func NewConfigService(log *slog.Logger) *ConfigService {
	if log == nil {
		log = slog.Default()
	}
	return &ConfigService{Name: serviceName, log: log.With("svc", serviceName)}
}

// publishConfig reads the device config from embedded data and publishes each
// top-level key as a retained message on config/<key>.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	const op = "config.publish"
	device, _ := ctx.Value(ctxDeviceKey).(string)
	if device == "" {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "missing device ID in context"}
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return &errcode.E{C: errcode.NoConfig, Op: op, Msg: "no embedded config for device: " + device}
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return errcode.Wrap(errcode.InvalidPayload, op, err)
	}

	for k, v := range m {
		conn.Publish(conn.NewMessage(Topic(k), v, true))
		s.log.Debug("published", "key", k)
	}
	s.log.Info("config published", "device", device, "keys", len(m))
	return nil
}

// Start publishes the embedded config for the device held in ctx. Failures
// are logged and returned.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) error {
	if err := s.publishConfig(ctx, conn); err != nil {
		s.log.Error("publish failed", "err", err)
		return err
	}
	return nil
}

// Await returns the payload of config/<key>, waiting up to timeout for it to
// be published. A zero timeout waits until ctx ends.
func Await(ctx context.Context, conn *bus.Connection, key string, timeout time.Duration) (any, error) {
	const op = "config.await"
	sub := conn.Subscribe(Topic(key))
	defer sub.Unsubscribe()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	for {
		select {
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil, &errcode.E{C: errcode.Error, Op: op, Msg: "subscription closed"}
			}
			if msg.Payload == nil {
				continue
			}
			return msg.Payload, nil
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, &errcode.E{C: errcode.Timeout, Op: op, Msg: key, Err: ctx.Err()}
			}
			return nil, ctx.Err()
		}
	}
}
