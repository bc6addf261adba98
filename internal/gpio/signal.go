package gpio

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// SignalPin treats delivery of an OS signal (SIGUSR1 by default in the CLI)
// as an activation of the stop input.
type SignalPin struct {
	sig    os.Signal
	active atomic.Bool
}

var _ Pin = (*SignalPin)(nil)

func NewSignalPin(sig os.Signal) *SignalPin { return &SignalPin{sig: sig} }

func (p *SignalPin) Name() string          { return "signal:" + p.sig.String() }
func (p *SignalPin) Ready() bool           { return p.sig != nil }
func (p *SignalPin) ConfigureInput() error { return nil }

// Read reports whether the signal has been seen at least once.
func (p *SignalPin) Read() (bool, error) { return p.active.Load(), nil }

// Register subscribes to the signal; edge is ignored since a signal has no level.
func (p *SignalPin) Register(_ Edge, h Handler) (Registration, error) {
	if p.sig == nil {
		return nil, ErrNotReady
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, p.sig)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ch:
				p.active.Store(true)
				h()
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return regFunc(func() {
		once.Do(func() {
			signal.Stop(ch)
			close(stop)
			<-done
		})
	}), nil
}
