package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// SignalContext is cancelled by the first SIGINT or SIGTERM and remembers
// which signal it was. A second signal exits the process with status 130,
// for when graceful shutdown hangs.
type SignalContext struct {
	context.Context
	Cancel context.CancelFunc

	sig  atomic.Value // os.Signal
	exit func(int)
}

// NewSignalContext installs the signal handler. Cancel releases it.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{Context: ctx, exit: os.Exit}

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	var once sync.Once
	sc.Cancel = func() {
		cancel()
		once.Do(func() { close(done) })
	}

	go func() {
		defer signal.Stop(ch)
		select {
		case s := <-ch:
			sc.sig.Store(s)
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-ch:
			sc.exit(130)
		case <-done:
		}
	}()
	return sc
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	s, _ := sc.sig.Load().(os.Signal)
	return s
}
