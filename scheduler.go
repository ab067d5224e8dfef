package sia

import (
	"sync"
	"time"
)

// TimerHandle identifies a single scheduled firing.
// The zero value is never handed out.
type TimerHandle uint64

// FireFunc is called when a scheduled timer elapses.
type FireFunc func(id ZoneID, handle TimerHandle)

// Scheduler arms and cancels absolute-time callbacks.
type Scheduler interface {
	Schedule(id ZoneID, at time.Time, fn FireFunc) TimerHandle
	Cancel(handle TimerHandle)
}

// TimerScheduler is a Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	clock  Clock
	lock   sync.Mutex
	next   TimerHandle
	timers map[TimerHandle]*time.Timer
}

func NewTimerScheduler(clock Clock) *TimerScheduler {
	return &TimerScheduler{
		clock:  clock,
		timers: map[TimerHandle]*time.Timer{},
	}
}

func (s *TimerScheduler) Schedule(id ZoneID, at time.Time, fn FireFunc) TimerHandle {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.next++
	handle := s.next
	s.arm(handle, id, at, fn)
	return handle
}

// arm must be called with the lock held.
func (s *TimerScheduler) arm(handle TimerHandle, id ZoneID, at time.Time, fn FireFunc) {
	s.timers[handle] = time.AfterFunc(at.Sub(s.clock.Now()), func() {
		s.lock.Lock()
		if _, ok := s.timers[handle]; !ok {
			s.lock.Unlock()
			return
		}
		if s.clock.Now().Before(at) {
			// woke up early according to our clock, wait for the remainder.
			s.arm(handle, id, at, fn)
			s.lock.Unlock()
			return
		}
		delete(s.timers, handle)
		s.lock.Unlock()

		log.Debug("timer fired", "zone", id, "handle", handle)
		fn(id, handle)
	})
}

func (s *TimerScheduler) Cancel(handle TimerHandle) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if t, ok := s.timers[handle]; ok {
		t.Stop()
		delete(s.timers, handle)
	}
}

// Pending returns how many timers are armed and not yet fired.
func (s *TimerScheduler) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.timers)
}
