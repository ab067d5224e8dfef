package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sia "github.com/caarlos0/homekit-sia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	lock   sync.Mutex
	states []sia.ZoneState
}

func (p *recordingPublisher) Update(state sia.ZoneState) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.states = append(p.states, state)
	return nil
}

func (p *recordingPublisher) count() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.states)
}

// stalledPublisher blocks every Update until release is closed.
type stalledPublisher struct {
	entered chan struct{}
	release chan struct{}
}

func (p *stalledPublisher) Update(sia.ZoneState) error {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.release
	return nil
}

func testZones() []zoneConfig {
	return []zoneConfig{
		{sia.ZoneID{Account: "AAA", Zone: 1}, "Door", kindContact, time.Hour},
		{sia.ZoneID{Account: "AAA", Zone: 2}, "Hall", kindMotion, time.Hour},
	}
}

func TestSetupZones(t *testing.T) {
	mem := newMemStore()
	store := newZoneStore(mem)
	require.NoError(t, store.Save(sia.ZoneID{Account: "AAA", Zone: 1}, sia.On))

	registry := sia.NewRegistry()
	t.Cleanup(registry.Close)

	sensors, accessories, err := setupZones(registry, store, time.Minute, testZones())
	require.NoError(t, err)
	require.Len(t, accessories, 2)
	require.Len(t, sensors, 2)

	door := sensors[sia.ZoneID{Account: "AAA", Zone: 1}]
	require.Equal(t, uint64(100), door.Id)
	require.Equal(t, "Door", door.Name())
	require.NotNil(t, door.Contact)
	require.Nil(t, door.Motion)
	require.Equal(t, 1, door.Contact.ContactSensorState.Value())
	require.True(t, door.Active.Value())

	hall := sensors[sia.ZoneID{Account: "AAA", Zone: 2}]
	require.NotNil(t, hall.Motion)
	require.False(t, hall.Motion.MotionDetected.Value())

	state, err := registry.State(sia.ZoneID{Account: "AAA", Zone: 1})
	require.NoError(t, err)
	require.Equal(t, sia.On, state.On)
	require.Equal(t, time.Minute, state.Margin)

	t.Run("duplicate", func(t *testing.T) {
		_, _, err := setupZones(registry, store, time.Minute, testZones())
		require.ErrorIs(t, err, sia.ErrDuplicateZone)
	})
}

func TestDispatcher(t *testing.T) {
	mem := newMemStore()
	store := newZoneStore(mem)
	zones := testZones()
	dispatch := newDispatcher(zones, store)
	publisher := &recordingPublisher{}
	dispatch.publisher = publisher

	registry := sia.NewRegistry(sia.WithNotifier(dispatch.notify))
	t.Cleanup(registry.Close)
	sensors, _, err := setupZones(registry, store, 0, zones)
	require.NoError(t, err)
	dispatch.sensors = sensors

	door := sia.ZoneID{Account: "AAA", Zone: 1}
	hall := sia.ZoneID{Account: "AAA", Zone: 2}

	_, err = registry.ApplyEvent(door, true)
	require.NoError(t, err)
	_, err = registry.ApplyEvent(hall, true)
	require.NoError(t, err)
	_, err = registry.Ping(hall)
	require.NoError(t, err)

	// pings without changes are not notified.
	pending := dispatch.drain()
	require.Len(t, pending, 2)
	require.Equal(t, door, pending[0].state.ID)
	require.Equal(t, hall, pending[1].state.ID)
	for _, u := range pending {
		dispatch.apply(u)
	}
	require.Empty(t, dispatch.drain())

	require.Equal(t, 1, sensors[door].Contact.ContactSensorState.Value())
	require.True(t, sensors[hall].Motion.MotionDetected.Value())
	require.Equal(t, sia.On, store.Load(door))
	require.Equal(t, sia.On, store.Load(hall))
	require.Len(t, publisher.states, 2)

	dispatch.apply(update{
		state:  sia.ZoneState{ID: door, On: sia.On, Available: false},
		change: sia.ZoneChange{AvailabilityChanged: true},
	})
	require.False(t, sensors[door].Active.Value())
	require.Equal(t, 1, sensors[door].Fault.Value())
	require.Equal(t, 1, sensors[door].Contact.ContactSensorState.Value())
	require.False(t, publisher.states[2].Available)
}

func TestDispatcherRun(t *testing.T) {
	dispatch := newDispatcher(testZones(), nil)
	publisher := &recordingPublisher{}
	dispatch.publisher = publisher

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatch.run(ctx) }()

	dispatch.notify(sia.ZoneState{ID: sia.ZoneID{Account: "AAA", Zone: 9}, Available: true}, sia.ZoneChange{OnChanged: true})
	require.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.Len(t, publisher.states, 1)
}

func TestDispatcherMerge(t *testing.T) {
	dispatch := newDispatcher(testZones(), nil)
	door := sia.ZoneID{Account: "AAA", Zone: 1}
	hall := sia.ZoneID{Account: "AAA", Zone: 2}

	dispatch.notify(sia.ZoneState{ID: door, On: sia.On, Available: true}, sia.ZoneChange{OnChanged: true})
	dispatch.notify(sia.ZoneState{ID: hall, On: sia.Off, Available: true}, sia.ZoneChange{OnChanged: true})
	dispatch.notify(sia.ZoneState{ID: door, On: sia.On, Available: false}, sia.ZoneChange{AvailabilityChanged: true})
	dispatch.notify(sia.ZoneState{ID: door, On: sia.Off, Available: true}, sia.ZoneChange{OnChanged: true, AvailabilityChanged: true})

	pending := dispatch.drain()
	require.Len(t, pending, 2)

	require.Equal(t, sia.ZoneState{ID: door, On: sia.Off, Available: true}, pending[0].state)
	require.Equal(t, sia.ZoneChange{OnChanged: true, AvailabilityChanged: true}, pending[0].change)
	require.True(t, pending[0].wentUnavailable)

	require.Equal(t, hall, pending[1].state.ID)
	require.False(t, pending[1].wentUnavailable)
}

func TestDispatcherStalledConsumer(t *testing.T) {
	dispatch := newDispatcher(testZones(), nil)
	publisher := &stalledPublisher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	dispatch.publisher = publisher

	registry := sia.NewRegistry(sia.WithNotifier(dispatch.notify))
	t.Cleanup(registry.Close)
	door := sia.ZoneID{Account: "AAA", Zone: 1}
	_, err := registry.Register(door, time.Hour, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatch.run(ctx) }()

	_, err = registry.ApplyEvent(door, true)
	require.NoError(t, err)
	select {
	case <-publisher.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never published")
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 5000; i++ {
			_, err := registry.ApplyEvent(door, i%2 == 0)
			assert.NoError(t, err)
		}
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("registry blocked behind a stalled dispatcher")
	}

	state, err := registry.State(door)
	require.NoError(t, err)
	require.Equal(t, sia.Off, state.On)

	close(publisher.release)
	cancel()
	require.NoError(t, <-done)
}

func TestZonesHandler(t *testing.T) {
	registry := sia.NewRegistry()
	t.Cleanup(registry.Close)
	for _, zone := range testZones() {
		_, err := registry.Register(zone.id, zone.pingInterval, 0)
		require.NoError(t, err)
	}
	_, err := registry.ApplyEvent(sia.ZoneID{Account: "AAA", Zone: 2}, false)
	require.NoError(t, err)

	handler := zonesHandler(registry)
	get := func(t *testing.T, target string) *httptest.ResponseRecorder {
		t.Helper()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	t.Run("all", func(t *testing.T) {
		rec := get(t, "/zones")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		require.Contains(t, rec.Body.String(), `"id":{"account":"AAA","zone":1},"on":"unknown","available":true`)
		require.Contains(t, rec.Body.String(), `"id":{"account":"AAA","zone":2},"on":"off","available":true,"last_seen"`)
	})

	t.Run("single", func(t *testing.T) {
		rec := get(t, "/zones?account=AAA&zone=2")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"on":"off"`)
		require.NotContains(t, rec.Body.String(), `"zone":1`)
	})

	t.Run("not found", func(t *testing.T) {
		require.Equal(t, http.StatusNotFound, get(t, "/zones?account=AAA&zone=3").Code)
	})

	t.Run("bad request", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, get(t, "/zones?account=AAA&zone=x").Code)
		require.Equal(t, http.StatusBadRequest, get(t, "/zones?zone=1").Code)
	})

	t.Run("method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/zones", nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
