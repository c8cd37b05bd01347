// Package bridge mirrors selected bus topics over a framed serial link so a
// host can watch the ring and press its buttons remotely.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"flamering-go/bus"
	"flamering-go/errcode"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

var (
	topicConfigBridge = bus.T("config", "bridge")
	// TopicState carries the retained link status.
	TopicState = bus.T("bridge", "state")
)

// Start runs the bridge until ctx is cancelled. It listens for JSON config on
// config/bridge and (re)configures the link on every update.
func Start(ctx context.Context, conn *bus.Connection, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{conn: conn, log: log.With("svc", "bridge")}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on config/bridge.
type Config struct {
	Transport TransportConfig `json:"transport"`
	// Forward lists local topic patterns copied to the peer ("flame/#").
	Forward []string `json:"forward,omitempty"`
	// Accept lists topic patterns the peer may publish locally.
	Accept []string `json:"accept,omitempty"`
	PingMS int      `json:"ping_ms,omitempty"`
}

var (
	defaultForward = []string{"flame/state", "flame/proximity", "flame/sensor", "heartbeat"}
	defaultAccept  = []string{"flame/press"}
)

const defaultPing = 5 * time.Second

func (c Config) ping() time.Duration {
	if c.PingMS <= 0 {
		return defaultPing
	}
	return time.Duration(c.PingMS) * time.Millisecond
}

type TransportConfig struct {
	// "uart" (provided here) or other names registered via RegisterTransport.
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
	// Addr is free-form for registered transports ("127.0.0.1:7000").
	Addr string `json:"addr,omitempty"`
}

// UARTConfig carries enough information for an injected dialler to open the UART.
type UARTConfig struct {
	Bus   string `json:"bus,omitempty"` // "uart0" or "uart1"; empty means uart1
	Baud  int    `json:"baud"`
	RxPin int    `json:"rx_pin"`
	TxPin int    `json:"tx_pin"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn *bus.Connection
	log  *slog.Logger

	mu     sync.Mutex
	curRun context.CancelFunc
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigBridge)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		err = s.handleLink(ctx, rwc, cfg)
		_ = rwc.Close()
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		// Clean close: restart only on new config.
		s.publishState("idle", "link_closed", nil)
		return
	}
}

// pubFrame is the JSON body of a framePub frame.
type pubFrame struct {
	Topic   []string        `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// handleLink owns the active link lifetime. It returns nil when the peer
// closes cleanly or ctx ends.
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser, cfg Config) error {
	rd := newFramedReader(rwc)
	wr := newFramedWriter(rwc)

	forward := patterns(cfg.Forward, defaultForward)
	accept := patterns(cfg.Accept, defaultAccept)

	subs := make([]*bus.Subscription, 0, len(forward))
	out := make(chan *bus.Message, 8)
	for _, p := range forward {
		subs = append(subs, s.conn.Subscribe(bus.T(toAny(p)...)))
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()
	linkCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, sub := range subs {
		go fanIn(linkCtx, sub, out)
	}

	// Reader
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			switch f.Type {
			case framePing:
				if err := wr.WriteFrame(Frame{Type: framePong}); err != nil {
					errCh <- err
					return
				}
			case framePong:
			case framePub:
				s.inbound(f.Payload, accept)
			case frameClose:
				return
			default:
				s.log.Debug("unknown frame", "type", f.Type)
			}
		}
	}()

	tick := time.NewTicker(cfg.ping())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err := <-errCh:
			return err
		case msg := <-out:
			if matchAny(accept, topicStrings(msg.Topic)) {
				// Peer-originated; do not echo.
				continue
			}
			b, err := encodePub(msg)
			if err != nil {
				s.log.Warn("encode failed", "topic", topicStrings(msg.Topic), "err", err)
				continue
			}
			if err := wr.WriteFrame(Frame{Type: framePub, Payload: b}); err != nil {
				return err
			}
		case <-tick.C:
			if err := wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		}
	}
}

func fanIn(ctx context.Context, sub *bus.Subscription, out chan<- *bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// inbound publishes an accepted peer message on the local bus.
func (s *Service) inbound(body []byte, accept [][]string) {
	var pf pubFrame
	if err := json.Unmarshal(body, &pf); err != nil {
		s.log.Warn("bad pub frame", "err", err)
		return
	}
	if !matchAny(accept, pf.Topic) {
		s.log.Warn("rejected pub", "topic", strings.Join(pf.Topic, "/"))
		return
	}
	var payload any
	if len(pf.Payload) > 0 {
		if err := json.Unmarshal(pf.Payload, &payload); err != nil {
			s.log.Warn("bad pub payload", "err", err)
			return
		}
	}
	s.conn.Publish(s.conn.NewMessage(bus.T(toAny(pf.Topic)...), payload, false))
}

func encodePub(msg *bus.Message) ([]byte, error) {
	p, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pubFrame{Topic: topicStrings(msg.Topic), Payload: p})
}

// -----------------------------------------------------------------------------
// Topic patterns
// -----------------------------------------------------------------------------

func patterns(in, def []string) [][]string {
	if len(in) == 0 {
		in = def
	}
	out := make([][]string, 0, len(in))
	for _, p := range in {
		out = append(out, strings.Split(p, "/"))
	}
	return out
}

// match applies the bus wildcard rules: "+" matches one level, "#" the rest.
func match(pattern, topic []string) bool {
	for i, p := range pattern {
		if p == "#" {
			return true
		}
		if i >= len(topic) {
			return false
		}
		if p != "+" && p != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}

func matchAny(ps [][]string, topic []string) bool {
	for _, p := range ps {
		if match(p, topic) {
			return true
		}
	}
	return false
}

func topicStrings(t bus.Topic) []string {
	out := make([]string, t.Len())
	for i := range out {
		out[i] = fmt.Sprint(t.At(i))
	}
	return out
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu    sync.RWMutex
	registry = map[string]transportFactory{}
)

// RegisterTransport allows external packages to add transports (eg. "pipe").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	const op = "bridge.transport"
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	default:
		return nil, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "unknown transport type: " + cfg.Type}
	}
}

// UARTDial is injected by platform code (the firmware main).
// It must open and return an io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct {
	cfg TransportConfig
}

func newUARTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "bridge.uart", Msg: "uart transport requires uart config"}
	}
	return &uartTransport{cfg: cfg}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "bridge.uart", Msg: "no uart dialler on this platform"}
	}
	return UARTDial(ctx, *u.cfg.UART)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Framing: [type][len hi][len lo][payload]
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

// Frame is a length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }

// framedWriter is shared by the reader (pongs) and the link loop.
type framedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return &errcode.E{C: errcode.InvalidPayload, Op: "bridge.write", Msg: fmt.Sprintf("frame too large: %d", len(f.Payload))}
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	const op = "bridge.config"
	var cfg Config
	var raw []byte
	switch v := p.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, errcode.Wrap(errcode.InvalidPayload, op, err)
		}
		raw = b
	default:
		return cfg, &errcode.E{C: errcode.InvalidPayload, Op: op, Msg: fmt.Sprintf("unsupported config payload type: %T", p)}
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, errcode.Wrap(errcode.InvalidPayload, op, err)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	attrs := []any{"level", level, "status", status}
	if err != nil {
		payload["error"] = err.Error()
		attrs = append(attrs, "err", err)
	}
	if level == "error" || level == "degraded" {
		s.log.Warn("link", attrs...)
	} else {
		s.log.Info("link", attrs...)
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
