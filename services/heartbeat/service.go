package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"flamering-go/bus"
	"flamering-go/types"
	"flamering-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicFlameState      = bus.T("flame", "state")
	// TopicBeat carries one Beat per period.
	TopicBeat = bus.T("heartbeat")
)

// Beat summarises liveness and the last known ring state.
type Beat struct {
	Seq      uint32           `json:"seq"`
	UptimeMs int64            `json:"uptime_ms"`
	State    types.FlameState `json:"state"`
}

type Service struct {
	log   *slog.Logger
	start time.Time
	seq   uint32
	state types.FlameState
}

func New(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log.With("svc", "heartbeat")}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	stateSub := conn.Subscribe(topicFlameState)
	defer conn.Unsubscribe(stateSub)

	period := types.HeartbeatConfig{}.Period()
	tick := time.NewTimer(period)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping")
			return
		case <-tick.C:
			s.beat(conn)
			tick.Reset(period)
		case msg := <-cfgSub.Channel():
			cfg, err := types.DecodeHeartbeatConfig(msg.Payload)
			if err != nil {
				s.log.Warn("bad config", "err", err)
				continue
			}
			period = cfg.Period()
			timex.ResetTimer(tick, period)
			s.log.Info("interval set", "period", period.String())
		case msg := <-stateSub.Channel():
			if st, ok := msg.Payload.(types.FlameState); ok {
				s.state = st
			}
		}
	}
}

func (s *Service) beat(conn *bus.Connection) {
	s.seq++
	b := Beat{Seq: s.seq, UptimeMs: time.Since(s.start).Milliseconds(), State: s.state}
	s.log.Info("heartbeat", "seq", b.Seq, "mode", b.State.Mode, "level", b.State.Level)
	conn.Publish(conn.NewMessage(TopicBeat, b, false))
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.start = time.Now()
	go s.serviceLoop(ctx, conn)
	return nil
}
