package main

import (
	"fmt"
	"time"

	"github.com/brutella/hap/accessory"
	sia "github.com/caarlos0/homekit-sia"
)

type stateLoader interface {
	Load(id sia.ZoneID) sia.OnState
}

// setupZones registers every zone, restores its last known value and
// creates its accessory.
func setupZones(
	registry *sia.Registry,
	store stateLoader,
	margin time.Duration,
	zones []zoneConfig,
) (ZoneSensors, []*accessory.A, error) {
	sensors := ZoneSensors{}
	accessories := make([]*accessory.A, 0, len(zones))
	for i, zone := range zones {
		if _, err := registry.Register(zone.id, zone.pingInterval, margin); err != nil {
			return nil, nil, fmt.Errorf("could not setup zones: %w", err)
		}
		if on := store.Load(zone.id); on != sia.OnUnknown {
			if err := registry.Restore(zone.id, on); err != nil {
				return nil, nil, fmt.Errorf("could not setup zones: %w", err)
			}
			log.Info("restored zone", "zone", zone.id, "on", on)
		}

		state, err := registry.State(zone.id)
		if err != nil {
			return nil, nil, fmt.Errorf("could not setup zones: %w", err)
		}

		a := newZoneSensor(accessory.Info{
			Name:         zone.name,
			SerialNumber: zone.id.String(),
			Manufacturer: manufacturer,
			Model:        zone.kind.String(),
		}, zone.kind)
		a.Id = uint64(100 + i)
		a.Update(state)

		sensors[zone.id] = a
		accessories = append(accessories, a.A)
	}
	return sensors, accessories, nil
}
