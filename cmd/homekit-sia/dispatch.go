package main

import (
	"context"
	"sync"

	sia "github.com/caarlos0/homekit-sia"
)

type update struct {
	state  sia.ZoneState
	change sia.ZoneChange
	// wentUnavailable survives merges that end with the zone available again.
	wentUnavailable bool
}

func (u update) merge(next update) update {
	return update{
		state: next.state,
		change: sia.ZoneChange{
			OnChanged:           u.change.OnChanged || next.change.OnChanged,
			AvailabilityChanged: u.change.AvailabilityChanged || next.change.AvailabilityChanged,
		},
		wentUnavailable: u.wentUnavailable || next.wentUnavailable,
	}
}

type stateSaver interface {
	Save(id sia.ZoneID, on sia.OnState) error
}

type statePublisher interface {
	Update(state sia.ZoneState) error
}

// dispatcher moves registry notifications off the registry lock and fans
// them out to HomeKit, metrics, the store and MQTT.
//
// Pending updates are kept per zone, latest state wins and change flags
// accumulate, so notify never waits on the consumer.
type dispatcher struct {
	lock    sync.Mutex
	pending map[sia.ZoneID]update
	order   []sia.ZoneID
	wake    chan struct{}

	zones     map[sia.ZoneID]zoneConfig
	sensors   ZoneSensors
	store     stateSaver
	publisher statePublisher
}

func newDispatcher(zones []zoneConfig, store stateSaver) *dispatcher {
	d := &dispatcher{
		pending: map[sia.ZoneID]update{},
		wake:    make(chan struct{}, 1),
		zones:   map[sia.ZoneID]zoneConfig{},
		store:   store,
	}
	for _, zone := range zones {
		d.zones[zone.id] = zone
	}
	return d
}

// notify is a sia.Notifier.
func (d *dispatcher) notify(state sia.ZoneState, change sia.ZoneChange) {
	u := update{
		state:           state,
		change:          change,
		wentUnavailable: change.AvailabilityChanged && !state.Available,
	}

	d.lock.Lock()
	if prev, ok := d.pending[state.ID]; ok {
		u = prev.merge(u)
	} else {
		d.order = append(d.order, state.ID)
	}
	d.pending[state.ID] = u
	d.lock.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// drain takes every pending update, in the order zones first changed.
func (d *dispatcher) drain() []update {
	d.lock.Lock()
	defer d.lock.Unlock()
	updates := make([]update, 0, len(d.order))
	for _, id := range d.order {
		updates = append(updates, d.pending[id])
		delete(d.pending, id)
	}
	d.order = d.order[:0]
	return updates
}

func (d *dispatcher) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.wake:
			for _, u := range d.drain() {
				d.apply(u)
			}
		}
	}
}

func (d *dispatcher) apply(u update) {
	state := u.state
	d.observe(state)
	if u.wentUnavailable {
		unavailableCounter.WithLabelValues(state.ID.String(), d.zones[state.ID].name).Inc()
	}

	if d.sensors != nil {
		d.sensors.Update(state)
	}

	if u.change.OnChanged && d.store != nil {
		if err := d.store.Save(state.ID, state.On); err != nil {
			log.Error("could not persist zone state", "zone", state.ID, "err", err)
		}
	}

	if d.publisher != nil {
		if err := d.publisher.Update(state); err != nil {
			log.Error("could not publish zone state", "zone", state.ID, "err", err)
		}
	}
}

// observe updates the zone gauges.
func (d *dispatcher) observe(state sia.ZoneState) {
	labels := []string{state.ID.String(), d.zones[state.ID].name}
	availableGauge.WithLabelValues(labels...).Set(boolAs[float64](state.Available))
	if on, known := state.On.Bool(); known {
		onGauge.WithLabelValues(labels...).Set(boolAs[float64](on))
	}
}
