package srpc

import "sync"

// broadcaster is a condvar-equivalent: any number of goroutines may wait on
// the channel returned by C, and a single call to Notify wakes all of them.
//
// Unlike sync.Cond, waiters can select over the wait channel alongside a
// context's Done channel, so a wait is always cancellation-aware.
type broadcaster struct {
	mtx sync.Mutex
	ch  chan struct{}
}

// newBroadcaster constructs a ready-to-use broadcaster.
func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan struct{})}
}

// C returns the current wait channel. It is closed the next time Notify is
// called; callers should re-fetch C after waking to observe future
// notifications.
func (b *broadcaster) C() <-chan struct{} {
	b.mtx.Lock()
	ch := b.ch
	b.mtx.Unlock()
	return ch
}

// Notify wakes all current waiters.
func (b *broadcaster) Notify() {
	b.mtx.Lock()
	close(b.ch)
	b.ch = make(chan struct{})
	b.mtx.Unlock()
}
