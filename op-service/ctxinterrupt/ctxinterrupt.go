// Package ctxinterrupt lets long-running code wait for process interrupts through a context.
//
// The interrupt source is attached to the context once, in main, with WithSignalWaiterMain.
// Each interrupt is delivered to exactly one waiter, so a second interrupt can be used to
// force a shutdown that the first one started.
package ctxinterrupt

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// ErrInterrupted is the cause used when an interrupt is received.
var ErrInterrupted = errors.New("interrupted")

var defaultSignals = []os.Signal{
	os.Interrupt,
	os.Kill,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

type waiterKey struct{}

type waiter struct {
	incoming <-chan os.Signal
}

// WithSignalWaiterMain attaches an interrupt source that catches the default termination signals.
// It is meant to be called once, from main.
func WithSignalWaiterMain(ctx context.Context) context.Context {
	ch := make(chan os.Signal, 10)
	signal.Notify(ch, defaultSignals...)
	return WithSignalChannel(ctx, ch)
}

// WithSignalChannel attaches ch as interrupt source. Every value received on ch is one interrupt.
func WithSignalChannel(ctx context.Context, ch <-chan os.Signal) context.Context {
	return context.WithValue(ctx, waiterKey{}, &waiter{incoming: ch})
}

// Wait blocks until an interrupt is received, returning ErrInterrupted,
// or until ctx is done, returning the context error.
// Without an attached interrupt source it only waits for ctx.
func Wait(ctx context.Context) error {
	w, ok := ctx.Value(waiterKey{}).(*waiter)
	if !ok {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-w.incoming:
		return ErrInterrupted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithCancelOnInterrupt returns a context that is cancelled, with ErrInterrupted as cause,
// on the next interrupt.
func WithCancelOnInterrupt(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	go func() {
		if err := Wait(ctx); errors.Is(err, ErrInterrupted) {
			cancel(err)
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}
