package gpio

import (
	"sync"
	"sync/atomic"
)

// SoftPin is a software-driven input. Trigger emulates one activation edge;
// handlers run on their own goroutine, as they would from a real pin.
type SoftPin struct {
	name   string
	level  atomic.Bool
	ready  atomic.Bool
	mu     sync.Mutex
	nextID int
	subs   map[int]Handler
}

var _ Pin = (*SoftPin)(nil)

// NewSoftPin returns a ready pin with the given name.
func NewSoftPin(name string) *SoftPin {
	p := &SoftPin{name: name, subs: make(map[int]Handler)}
	p.ready.Store(true)
	return p
}

func (p *SoftPin) Name() string          { return p.name }
func (p *SoftPin) Ready() bool           { return p.ready.Load() }
func (p *SoftPin) SetReady(ok bool)      { p.ready.Store(ok) }
func (p *SoftPin) ConfigureInput() error { return nil }
func (p *SoftPin) Read() (bool, error)   { return p.level.Load(), nil }

// Register attaches h. Every Trigger invokes it regardless of edge.
func (p *SoftPin) Register(_ Edge, h Handler) (Registration, error) {
	if !p.Ready() {
		return nil, ErrNotReady
	}
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = h
	p.mu.Unlock()
	var once sync.Once
	return regFunc(func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}), nil
}

// Trigger delivers one activation to every registered handler and waits
// until they have returned.
func (p *SoftPin) Trigger() {
	p.level.Store(true)
	defer p.level.Store(false)
	p.mu.Lock()
	hs := make([]Handler, 0, len(p.subs))
	for _, h := range p.subs {
		hs = append(hs, h)
	}
	p.mu.Unlock()
	var wg sync.WaitGroup
	for _, h := range hs {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h()
		}(h)
	}
	wg.Wait()
}
