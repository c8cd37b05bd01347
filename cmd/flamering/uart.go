//go:build rp2040 || rp2350

package main

import (
	"context"
	"io"
	"machine"

	"flamering-go/errcode"
	"flamering-go/services/bridge"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// uartLink adapts a uartx port to the bridge's io.ReadWriteCloser. Close
// unblocks a pending read; the port itself stays configured.
type uartLink struct {
	u      *uartx.UART
	ctx    context.Context
	cancel context.CancelFunc
}

func (l *uartLink) Read(p []byte) (int, error) {
	n, err := l.u.RecvSomeContext(l.ctx, p)
	if err != nil && l.ctx.Err() != nil {
		return n, io.EOF
	}
	return n, err
}

func (l *uartLink) Write(p []byte) (int, error) { return l.u.Write(p) }

func (l *uartLink) Close() error {
	l.cancel()
	return nil
}

func dialUART(ctx context.Context, c bridge.UARTConfig) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch c.Bus {
	case "uart0":
		hw = uartx.UART0
	case "", "uart1":
		hw = uartx.UART1
	default:
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "bridge.dial", Msg: c.Bus}
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(c.Baud),
		TX:       machine.Pin(c.TxPin),
		RX:       machine.Pin(c.RxPin),
	}); err != nil {
		return nil, errcode.Wrap(errcode.Error, "bridge.dial", err)
	}
	lctx, cancel := context.WithCancel(ctx)
	return &uartLink{u: hw, ctx: lctx, cancel: cancel}, nil
}
