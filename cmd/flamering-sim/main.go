//go:build !rp2040 && !rp2350

// Command flamering-sim runs the ring controller on emulated hardware. Lines
// on stdin (or in --script) press buttons and move the hand:
//
//	p | w | s | n       press power, weak, strong or nikomi
//	prox <magnitude>    place the hand (0 is touching, 4095 is absent)
//	fault on|off        make sensor reads fail
//	duty                print both output duties
//	sleep <duration>    pause a script
//	q                   quit
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"flamering-go/bus"
	"flamering-go/drivers/rpr0521"
	"flamering-go/errcode"
	"flamering-go/services/app"
	"flamering-go/services/bridge"
	"flamering-go/services/config"
	"flamering-go/types"

	"github.com/google/shlex"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

var (
	device     = "sim"
	scriptPath = ""
	bridgeAddr = ""
	legacy     = false
	verbose    = false
)

func init() {
	pflag.StringVar(&device, "device", device, "embedded config to boot")
	pflag.StringVar(&scriptPath, "script", scriptPath, "read commands from file instead of stdin")
	pflag.StringVar(&bridgeAddr, "bridge", bridgeAddr, "mirror telemetry to a TCP peer (host:port)")
	pflag.BoolVar(&legacy, "legacy-nikomi", legacy, "nikomi resets the level and exits on a far reading")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose logging")
}

func main() {
	log.SetFlags(0)
	pflag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	var in io.Reader = os.Stdin
	if scriptPath != "" {
		f, err := os.Open(scriptPath)
		if err != nil {
			return fmt.Errorf("failed to open script %q: %w", scriptPath, err)
		}
		defer f.Close()
		in = f
	}

	if bridgeAddr != "" {
		bridge.RegisterTransport("tcp", func(c bridge.TransportConfig) (bridge.Transport, error) {
			return tcpTransport{addr: c.Addr}, nil
		})
	}

	a, err := app.Boot(ctx, app.Options{
		Device: device,
		Logger: logger,
		Bridge: bridgeAddr != "",
		Mutate: func(c *types.FlameConfig) {
			c.NikomiResetsLevel = legacy
			c.NikomiExitsOnFar = legacy
		},
	})
	if err != nil {
		return fmt.Errorf("failed to boot: %w", err)
	}
	defer a.Stop()

	conn := a.Bus.NewConnection("sim")
	if bridgeAddr != "" {
		conn.Publish(conn.NewMessage(config.Topic("bridge"), map[string]any{
			"transport": map[string]any{"type": "tcp", "addr": bridgeAddr},
		}, true))
	}
	go watch(ctx, conn, logger)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if scriptPath == "" {
					return nil
				}
				// Keep the ring running after a script until interrupted.
				lines = nil
				continue
			}
			quit, err := exec(ctx, a, line)
			if err != nil {
				logger.Warn("command", "line", line, "err", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// exec runs one command line.
func exec(ctx context.Context, a *app.App, line string) (quit bool, err error) {
	args, err := shlex.Split(line)
	if err != nil || len(args) == 0 {
		return false, err
	}
	switch args[0] {
	case "p", "power":
		a.Board.Press(types.ButtonPower)
	case "w", "weak":
		a.Board.Press(types.ButtonWeak)
	case "s", "strong":
		a.Board.Press(types.ButtonStrong)
	case "n", "nikomi":
		a.Board.Press(types.ButtonNikomi)
	case "prox":
		if len(args) != 2 {
			return false, usage("prox <magnitude>")
		}
		v, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil || v > uint64(rpr0521.MaxRaw) {
			return false, usage("magnitude 0..4095")
		}
		a.Board.SetProximityRaw(rpr0521.MaxRaw - uint16(v))
	case "fault":
		if len(args) == 2 && args[1] == "on" {
			a.Board.SetSensorFault(errcode.Timeout)
		} else {
			a.Board.SetSensorFault(nil)
		}
	case "duty":
		fmt.Printf("duty %v %v\n", a.Board.Duty(0), a.Board.Duty(1))
	case "sleep":
		if len(args) != 2 {
			return false, usage("sleep <duration>")
		}
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return false, err
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	case "q", "quit":
		return true, nil
	default:
		return false, usage("p|w|s|n|prox|fault|duty|sleep|q")
	}
	return false, nil
}

func usage(s string) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "sim", Msg: "usage: " + s}
}

// watch prints ring telemetry as it changes.
func watch(ctx context.Context, conn *bus.Connection, logger *slog.Logger) {
	sub := conn.Subscribe(bus.T("flame", "#"))
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Channel():
			switch v := msg.Payload.(type) {
			case types.FlameState:
				logger.Info("state", "mode", v.Mode, "level", v.Level, "duty", v.Duty)
			case types.ProximityValue:
				logger.Debug("proximity", "magnitude", v.Magnitude)
			case types.SensorStatus:
				logger.Info("sensor", "ok", v.OK, "error", v.Error)
			}
		}
	}
}

type tcpTransport struct{ addr string }

func (t tcpTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", t.addr)
}

func (t tcpTransport) String() string { return "tcp" }
