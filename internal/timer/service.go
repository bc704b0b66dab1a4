// Package timer implements the per-session wake-up primitive: at most one
// armed wall-clock timer per key, fired exactly at the requested instant.
// There is no polling loop; arming replaces any earlier timer for the key.
package timer

import (
	"log"
	"sync"
	"time"
)

type Service struct {
	mu     sync.Mutex
	timers map[string]*entry
	closed bool

	// OnFire is invoked in its own goroutine when a key's timer elapses.
	// Set before the first Arm call.
	OnFire func(key string)
}

type entry struct {
	at time.Time
	t  *time.Timer
}

func NewService() *Service {
	return &Service{timers: make(map[string]*entry)}
}

// Arm schedules a wake-up for key at the given instant, replacing any timer
// already armed for that key. Re-arming to the same instant is a no-op.
func (s *Service) Arm(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if e, ok := s.timers[key]; ok {
		if e.at.Equal(at) {
			return
		}
		e.t.Stop()
		delete(s.timers, key)
	}

	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	e := &entry{at: at}
	e.t = time.AfterFunc(d, func() { s.fire(key, at) })
	s.timers[key] = e
}

func (s *Service) Disarm(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.timers[key]; ok {
		e.t.Stop()
		delete(s.timers, key)
	}
}

// ArmedAt reports the instant the key's timer is set for, if any.
func (s *Service) ArmedAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[key]
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

func (s *Service) fire(key string, at time.Time) {
	s.mu.Lock()
	e, ok := s.timers[key]
	// A concurrent re-arm may have replaced this timer; only the entry that
	// scheduled the callback clears itself.
	if ok && e.at.Equal(at) {
		delete(s.timers, key)
	} else {
		ok = false
	}
	onFire := s.OnFire
	closed := s.closed
	s.mu.Unlock()

	if !ok || closed {
		return
	}
	if onFire == nil {
		log.Printf("[timer] fired for %s with no handler", key)
		return
	}
	onFire(key)
}

// Close stops every armed timer. Arm becomes a no-op afterwards.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for key, e := range s.timers {
		e.t.Stop()
		delete(s.timers, key)
	}
}
