package hog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/gpio"
	"github.com/kstaniek/go-can-hog/internal/transport"
)

// fakeTransport records submissions. In auto mode a single worker completes
// frames in order; otherwise the test completes them with finish.
type fakeTransport struct {
	mu          sync.Mutex
	ready       bool
	rejectAt    int
	calls       int
	frames      []can.Frame
	pending     []transport.Completion
	inflight    int
	maxInflight int

	auto chan transport.Completion
	wg   sync.WaitGroup
}

func newManualTransport() *fakeTransport { return &fakeTransport{ready: true} }

func newAutoTransport() *fakeTransport {
	f := &fakeTransport{ready: true, auto: make(chan transport.Completion, 64)}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for done := range f.auto {
			f.mu.Lock()
			f.inflight--
			f.mu.Unlock()
			done(nil)
		}
	}()
	return f
}

func (f *fakeTransport) Submit(fr can.Frame, done transport.Completion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == f.rejectAt {
		return fmt.Errorf("%w: queue full", transport.ErrSubmissionRejected)
	}
	f.frames = append(f.frames, fr)
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	if f.auto != nil {
		f.auto <- done
		return nil
	}
	f.pending = append(f.pending, done)
	return nil
}

// finish completes the n oldest pending submissions with err.
func (f *fakeTransport) finish(n int, err error) {
	f.mu.Lock()
	if n > len(f.pending) {
		n = len(f.pending)
	}
	batch := append([]transport.Completion(nil), f.pending[:n]...)
	f.pending = f.pending[n:]
	f.inflight -= n
	f.mu.Unlock()
	for _, done := range batch {
		done(err)
	}
}

func (f *fakeTransport) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeTransport) Close() {
	if f.auto != nil {
		close(f.auto)
		f.wg.Wait()
	}
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) MaxInflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

func (f *fakeTransport) Frames() []can.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]can.Frame(nil), f.frames...)
}

// brokenPin accepts configuration but cannot deliver interrupts.
type brokenPin struct{ *gpio.SoftPin }

func (brokenPin) Register(gpio.Edge, gpio.Handler) (gpio.Registration, error) {
	return nil, errors.New("edge not supported")
}
