package sia

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

var (
	ErrUnknownZone     = errors.New("unknown zone")
	ErrDuplicateZone   = errors.New("zone already registered")
	ErrInvalidInterval = errors.New("invalid ping interval")
)

// Notifier is told about every change a Registry makes.
//
// It is called with the registry lock held, so notifications arrive in the
// same order the changes were made. It must not call back into the Registry
// and should return quickly.
type Notifier func(state ZoneState, change ZoneChange)

type Option func(*Registry)

// WithNotifier sets the function called after each change.
func WithNotifier(fn Notifier) Option {
	return func(r *Registry) {
		r.notify = fn
	}
}

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithScheduler replaces the default TimerScheduler.
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) {
		r.scheduler = s
	}
}

type entry struct {
	state ZoneState
	timer TimerHandle
}

// Registry keeps the state and availability of every tracked zone.
type Registry struct {
	lock      sync.Mutex
	clock     Clock
	scheduler Scheduler
	notify    Notifier
	zones     map[ZoneID]*entry
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clock: SystemClock{},
		zones: map[ZoneID]*entry{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.scheduler == nil {
		r.scheduler = NewTimerScheduler(r.clock)
	}
	return r
}

// Register starts tracking a zone. The zone is available, its state unknown,
// and no deadline is armed until the first event.
func (r *Registry) Register(id ZoneID, pingInterval, margin time.Duration) (ZoneState, error) {
	if pingInterval <= 0 || margin < 0 {
		return ZoneState{}, fmt.Errorf("%w: zone %s: interval=%s margin=%s", ErrInvalidInterval, id, pingInterval, margin)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.zones[id]; ok {
		return ZoneState{}, fmt.Errorf("%w: %s", ErrDuplicateZone, id)
	}
	e := &entry{
		state: ZoneState{
			ID:           id,
			On:           OnUnknown,
			Available:    true,
			PingInterval: pingInterval,
			Margin:       margin,
		},
	}
	r.zones[id] = e
	log.Debug("registered zone", "zone", id, "ping_interval", pingInterval, "margin", margin)
	return e.state, nil
}

// Restore sets the zone's last known value before any live event arrives.
// It never arms a deadline: availability is only tracked once the zone
// actually reports.
func (r *Registry) Restore(id ZoneID, on OnState) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.zones[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownZone, id)
	}
	if on == OnUnknown || !e.state.LastSeen.IsZero() {
		return nil
	}
	e.state.On = on
	log.Debug("restored zone", "zone", id, "on", on)
	return nil
}

// ApplyEvent records a live on/off report for the zone and pushes its
// deadline forward.
func (r *Registry) ApplyEvent(id ZoneID, on bool) (ZoneChange, error) {
	return r.seen(id, OnStateOf(on))
}

// Ping records that the zone is alive without changing its on/off state.
func (r *Registry) Ping(id ZoneID) (ZoneChange, error) {
	return r.seen(id, OnUnknown)
}

func (r *Registry) seen(id ZoneID, on OnState) (ZoneChange, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.zones[id]
	if !ok {
		return ZoneChange{}, fmt.Errorf("%w: %s", ErrUnknownZone, id)
	}

	var change ZoneChange
	if on != OnUnknown && e.state.On != on {
		e.state.On = on
		change.OnChanged = true
	}

	now := r.clock.Now()
	e.state.LastSeen = now
	if e.timer != 0 {
		r.scheduler.Cancel(e.timer)
	}
	e.timer = r.scheduler.Schedule(id, e.state.Deadline(), r.timerFired)

	if !e.state.Available {
		e.state.Available = true
		change.AvailabilityChanged = true
		log.Info("zone available", "zone", id)
	}

	r.emit(e.state, change)
	return change, nil
}

// TimerFired marks the zone unavailable if handle is still the zone's
// current deadline. Fires from superseded or cancelled timers are ignored.
func (r *Registry) TimerFired(id ZoneID, handle TimerHandle) ZoneChange {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.zones[id]
	if !ok || e.timer == 0 || e.timer != handle {
		log.Debug("ignoring stale timer", "zone", id, "handle", handle)
		return ZoneChange{}
	}
	e.timer = 0

	var change ZoneChange
	if e.state.Available {
		e.state.Available = false
		change.AvailabilityChanged = true
		log.Warn("zone unavailable", "zone", id, "last_seen", e.state.LastSeen)
	}

	r.emit(e.state, change)
	return change
}

func (r *Registry) timerFired(id ZoneID, handle TimerHandle) {
	_ = r.TimerFired(id, handle)
}

// Deregister stops tracking a zone and cancels its deadline.
// Unknown zones are ignored.
func (r *Registry) Deregister(id ZoneID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.deregister(id)
}

func (r *Registry) deregister(id ZoneID) {
	e, ok := r.zones[id]
	if !ok {
		return
	}
	if e.timer != 0 {
		r.scheduler.Cancel(e.timer)
	}
	delete(r.zones, id)
	log.Debug("deregistered zone", "zone", id)
}

// Close deregisters every zone.
func (r *Registry) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id := range r.zones {
		r.deregister(id)
	}
}

func (r *Registry) State(id ZoneID) (ZoneState, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.zones[id]
	if !ok {
		return ZoneState{}, fmt.Errorf("%w: %s", ErrUnknownZone, id)
	}
	return e.state, nil
}

// States returns all zones, sorted by id.
func (r *Registry) States() []ZoneState {
	r.lock.Lock()
	states := make([]ZoneState, 0, len(r.zones))
	for _, e := range r.zones {
		states = append(states, e.state)
	}
	r.lock.Unlock()

	slices.SortFunc(states, func(a, b ZoneState) int {
		return a.ID.Compare(b.ID)
	})
	return states
}

func (r *Registry) emit(state ZoneState, change ZoneChange) {
	if r.notify == nil || !change.Changed() {
		return
	}
	r.notify(state, change)
}
