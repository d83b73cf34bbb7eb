package session

import "sync"

// subscribers fans change signals out to UI readers.
//
// Each subscriber owns a channel with a buffer of one. notify never blocks:
// if a signal is already pending the new one is dropped, which is all a
// reader that re-reads state on wake needs.
type subscribers struct {
	mu     sync.Mutex
	chans  map[int]chan struct{}
	nextID int
	closed bool
}

func newSubscribers() *subscribers {
	return &subscribers{chans: make(map[int]chan struct{})}
}

func (s *subscribers) add() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.chans[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.chans[id]; ok {
				delete(s.chans, id)
				close(c)
			}
		})
	}
}

func (s *subscribers) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.chans {
		close(ch)
		delete(s.chans, id)
	}
	s.closed = true
}
