// Package app wires the services together in boot order: config, hardware,
// ring controller, heartbeat and the telemetry bridge.
package app

import (
	"context"
	"log/slog"
	"time"

	"flamering-go/bus"
	"flamering-go/errcode"
	"flamering-go/services/bridge"
	"flamering-go/services/config"
	"flamering-go/services/flame"
	"flamering-go/services/hal"
	"flamering-go/services/heartbeat"
	"flamering-go/types"
	"flamering-go/x/timex"
)

const configWait = 2 * time.Second

type App struct {
	Bus   *bus.Bus
	Board *hal.Board
	Flame *flame.Service

	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// Options tune Boot. Device selects the embedded config.
type Options struct {
	Device string
	Logger *slog.Logger
	// Bridge starts the telemetry bridge.
	Bridge bool
	// Sleeper paces the ring controller; nil means wall clock.
	Sleeper timex.Sleeper
	// Mutate runs on the decoded flame config before the board is opened.
	Mutate func(*types.FlameConfig)
}

// Boot publishes the device config, opens the board and starts every
// service. Cancelling ctx or calling Stop shuts them down.
func Boot(ctx context.Context, opts Options) (*App, error) {
	const op = "app.boot"
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &App{Bus: bus.NewBus(8), log: log, cancel: cancel, done: make(chan struct{})}

	cfgConn := a.Bus.NewConnection("config")
	if err := config.NewConfigService(log).Start(config.WithDevice(ctx, opts.Device), cfgConn); err != nil {
		cancel()
		return nil, err
	}

	raw, err := config.Await(ctx, cfgConn, "flame", configWait)
	if err != nil {
		cancel()
		return nil, errcode.Wrap(errcode.NoConfig, op, err)
	}
	cfg, err := types.DecodeFlameConfig(raw)
	if err != nil {
		cancel()
		return nil, err
	}
	if opts.Mutate != nil {
		opts.Mutate(&cfg)
	}

	board, err := hal.Open(ctx, cfg, log)
	if err != nil {
		cancel()
		return nil, err
	}
	a.Board = board

	deps := board.Deps()
	deps.Logger = log
	deps.Sleeper = opts.Sleeper
	svc, err := flame.New(cfg, deps)
	if err != nil {
		board.Close()
		cancel()
		return nil, err
	}
	a.Flame = svc
	if err := svc.Start(ctx, a.Bus.NewConnection("flame")); err != nil {
		board.Close()
		cancel()
		return nil, err
	}

	_ = heartbeat.New(log).Start(ctx, a.Bus.NewConnection("heartbeat"))
	if opts.Bridge {
		go bridge.Start(ctx, a.Bus.NewConnection("bridge"), log)
	}

	go func() {
		defer close(a.done)
		if err := svc.Wait(); err != nil {
			log.Error("flame stopped", "err", err)
		}
		board.Close()
	}()
	log.Info("booted", "device", opts.Device)
	return a, nil
}

// Stop cancels every service and waits for the outputs to go dark.
func (a *App) Stop() {
	a.cancel()
	<-a.done
}

// Done is closed once the ring controller has stopped and the board is released.
func (a *App) Done() <-chan struct{} { return a.done }
