package main

import (
	"fmt"
	"time"

	sia "github.com/caarlos0/homekit-sia"
	"github.com/cenkalti/backoff/v4"
)

// kvStore is the part of hap.Store used to keep zone values across restarts.
type kvStore interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
}

type zoneStore struct {
	store      kvStore
	maxElapsed time.Duration
}

func newZoneStore(store kvStore) zoneStore {
	return zoneStore{
		store:      store,
		maxElapsed: 30 * time.Second,
	}
}

func storeKey(id sia.ZoneID) string {
	return fmt.Sprintf("zone.%s.%d", id.Account, id.Zone)
}

// Load returns the last saved value of the zone, or unknown.
func (s zoneStore) Load(id sia.ZoneID) sia.OnState {
	bts, err := s.store.Get(storeKey(id))
	if err != nil {
		log.Debug("no saved state", "zone", id, "err", err)
		return sia.OnUnknown
	}
	return sia.ParseOnState(string(bts))
}

func (s zoneStore) Save(id sia.ZoneID, on sia.OnState) error {
	if on == sia.OnUnknown {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = s.maxElapsed

	if err := backoff.RetryNotify(func() error {
		return s.store.Set(storeKey(id), []byte(on.String()))
	}, bo, func(err error, _ time.Duration) {
		log.Warn("could not save zone state", "zone", id, "err", err)
	}); err != nil {
		return fmt.Errorf("could not save zone %s: %w", id, err)
	}
	return nil
}
