package busy

import "sync"

// Gauge aggregates in-flight request counts into a single boolean, the
// backing signal for a blocking overlay. Subscribers are notified only on
// transitions between busy and idle, not on every count change.
type Gauge struct {
	mu    sync.Mutex
	count int
	subs  []chan bool
}

func NewGauge() *Gauge {
	return &Gauge{}
}

func (g *Gauge) Add() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.count++
	if g.count == 1 {
		g.notify(true)
	}
}

func (g *Gauge) Done() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.count == 0 {
		// Unbalanced Done; clamp rather than go negative.
		return
	}
	g.count--
	if g.count == 0 {
		g.notify(false)
	}
}

func (g *Gauge) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count > 0
}

// Subscribe returns a channel that receives the busy boolean on every
// transition. The channel is buffered; a slow subscriber drops updates
// instead of blocking the gauge.
func (g *Gauge) Subscribe() <-chan bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch := make(chan bool, 4)
	g.subs = append(g.subs, ch)
	return ch
}

func (g *Gauge) notify(busy bool) {
	for _, ch := range g.subs {
		select {
		case ch <- busy:
		default:
		}
	}
}
