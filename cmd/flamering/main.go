//go:build rp2040 || rp2350

package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"flamering-go/services/app"
	"flamering-go/services/bridge"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

func main() {
	// Give a serial terminal time to attach before the first log line.
	time.Sleep(2 * time.Second)

	console := uartx.UART0
	_ = console.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	log := slog.New(slog.NewTextHandler(console, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	bridge.UARTDial = dialUART

	a, err := app.Boot(context.Background(), app.Options{Device: "pico", Logger: log, Bridge: true})
	if err != nil {
		log.Error("boot failed", "err", err)
		for {
			time.Sleep(time.Hour)
		}
	}
	<-a.Done()
	log.Error("controller stopped")
	for {
		time.Sleep(time.Hour)
	}
}
