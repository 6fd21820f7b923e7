package store

import "sync"

// feed is a minimal in-memory change-signal fanout.
//
// Contract:
//   - pulse MUST be non-blocking.
//   - Subscribers use buffered channels; a full buffer drops the pulse,
//     which is fine because pulses carry no data (coalescing signal).
type feed struct {
	mu   sync.Mutex
	subs map[uint64]chan struct{}
	seq  uint64
}

func newFeed() *feed {
	return &feed{subs: map[uint64]chan struct{}{}}
}

func (f *feed) pulse() {
	f.mu.Lock()
	chs := make([]chan struct{}, 0, len(f.subs))
	for _, ch := range f.subs {
		chs = append(chs, ch)
	}
	f.mu.Unlock()

	for _, ch := range chs {
		// If a subscriber unsubscribes concurrently and the channel
		// closes, recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- struct{}{}:
			default:
			}
		}()
	}
}

func (f *feed) subscribe(buffer int) (<-chan struct{}, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan struct{}, buffer)

	f.mu.Lock()
	f.seq++
	id := f.seq
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			// Closing is safe because pulse recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
