package engine

import (
	"sync"
	"time"
)

// refreshTimer is the cancellable handle behind a scheduled confirmation
// poll. Injectable so tests fire timers deterministically.
type refreshTimer interface {
	Stop() bool
}

// refreshScheduler debounces per-device confirmation polls after writes.
// Scheduling while a trigger is pending cancels and reschedules it, so a
// burst of commands yields one confirmation poll, not a stack of them.
type refreshScheduler struct {
	delay    time.Duration
	fire     func(deviceID string)
	newTimer func(d time.Duration, f func()) refreshTimer

	mu      sync.Mutex
	pending map[string]refreshTimer
	closed  bool
	wg      sync.WaitGroup
}

func newRefreshScheduler(delay time.Duration, fire func(string)) *refreshScheduler {
	return &refreshScheduler{
		delay:   delay,
		fire:    fire,
		pending: make(map[string]refreshTimer),
		newTimer: func(d time.Duration, f func()) refreshTimer {
			return time.AfterFunc(d, f)
		},
	}
}

// schedule arms (or re-arms) the device's confirmation poll.
func (s *refreshScheduler) schedule(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.pending[deviceID]; ok {
		if old.Stop() {
			// Old callback will never run; settle its wait slot.
			s.wg.Done()
		}
	}
	s.wg.Add(1)
	var t refreshTimer
	t = s.newTimer(s.delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.closed || s.pending[deviceID] != t {
			s.mu.Unlock()
			return
		}
		delete(s.pending, deviceID)
		s.mu.Unlock()
		s.fire(deviceID)
	})
	s.pending[deviceID] = t
}

// stop cancels every pending trigger and waits for in-flight callbacks.
func (s *refreshScheduler) stop() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.pending {
		if t.Stop() {
			// Callback will never run; settle its wait slot.
			s.wg.Done()
		}
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
