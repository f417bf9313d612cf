package services

import (
	"context"
	"sync"
)

// KeyedSerializer hands out exclusive, FIFO-ordered turns per key. It is the
// single-writer discipline behind the posting engine (one lane per domain
// key) and the approval engine (one lane per request id): all work sharing a
// key is totally ordered, while different keys run fully in parallel.
//
// Lanes are created on first use and removed once their queue drains, so an
// idle process holds no per-key state.
type KeyedSerializer struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	// queue head is the current holder; everyone behind it waits on its channel.
	queue []chan struct{}
}

// NewKeyedSerializer creates an empty serializer.
func NewKeyedSerializer() *KeyedSerializer {
	return &KeyedSerializer{lanes: make(map[string]*lane)}
}

// Acquire blocks until the caller holds the lane for key, in arrival order.
// The returned release function must be called exactly once. A context
// cancellation while waiting abandons the queue slot and returns ctx.Err();
// callers treat that as "unknown outcome — retry with the same idempotency key".
func (s *KeyedSerializer) Acquire(ctx context.Context, key string) (release func(), err error) {
	turn := make(chan struct{})

	s.mu.Lock()
	l, ok := s.lanes[key]
	if !ok {
		l = &lane{}
		s.lanes[key] = l
	}
	l.queue = append(l.queue, turn)
	if len(l.queue) == 1 {
		close(turn)
	}
	s.mu.Unlock()

	select {
	case <-turn:
		return func() { s.release(key) }, nil
	case <-ctx.Done():
		s.abandon(key, turn)
		return nil, ctx.Err()
	}
}

// Do runs fn while holding the lane for key.
func (s *KeyedSerializer) Do(ctx context.Context, key string, fn func() error) error {
	release, err := s.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (s *KeyedSerializer) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.lanes[key]
	if l == nil || len(l.queue) == 0 {
		return
	}
	l.queue = l.queue[1:]
	if len(l.queue) == 0 {
		delete(s.lanes, key)
		return
	}
	close(l.queue[0])
}

// abandon removes a cancelled waiter. If the grant raced the cancellation and
// the waiter already became the holder, its turn is passed on instead.
func (s *KeyedSerializer) abandon(key string, turn chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.lanes[key]
	if l == nil {
		return
	}
	for i, w := range l.queue {
		if w != turn {
			continue
		}
		if i == 0 {
			l.queue = l.queue[1:]
			if len(l.queue) == 0 {
				delete(s.lanes, key)
			} else {
				close(l.queue[0])
			}
		} else {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
		}
		return
	}
}
