package timerdev

import "sync"

// Fake is a deterministic, test-driven Device: nothing fires until the
// test calls Fire, so scheduler tests can feed exact tick sequences instead
// of racing a real clock.
type Fake struct {
	ch       chan uint64
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewFake returns a Fake with room to buffer ticks ahead of the consumer.
func NewFake() *Fake {
	return &Fake{ch: make(chan uint64, 256), stopCh: make(chan struct{})}
}

func (f *Fake) Start(uint64) error { return nil }

func (f *Fake) Stop() error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	return nil
}

func (f *Fake) Wait() (uint64, bool) {
	select {
	case v := <-f.ch:
		return v, true
	case <-f.stopCh:
		return 0, false
	}
}

// Fire enqueues one tick of elapsedNS for the next Wait to receive. It
// blocks if the buffer is full, same as a real device backpressuring a
// slow consumer.
func (f *Fake) Fire(elapsedNS uint64) {
	select {
	case f.ch <- elapsedNS:
	case <-f.stopCh:
	}
}
