package main

import (
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	sia "github.com/caarlos0/homekit-sia"
)

type ZoneSensors map[sia.ZoneID]*ZoneSensor

func (sensors ZoneSensors) Update(state sia.ZoneState) {
	sensor, ok := sensors[state.ID]
	if !ok {
		log.Warn("no accessory for zone", "zone", state.ID)
		return
	}
	sensor.Update(state)
}

type ZoneSensor struct {
	*accessory.A
	Kind    zoneKind
	Motion  *service.MotionSensor
	Contact *service.ContactSensor
	Active  *characteristic.StatusActive
	Fault   *characteristic.StatusFault
}

func newZoneSensor(info accessory.Info, kind zoneKind) *ZoneSensor {
	a := ZoneSensor{
		Kind: kind,
	}
	a.A = accessory.New(info, accessory.TypeSensor)

	a.Active = characteristic.NewStatusActive()
	a.Active.SetValue(true)
	a.Fault = characteristic.NewStatusFault()

	switch kind {
	case kindMotion:
		a.Motion = service.NewMotionSensor()
		a.Motion.AddC(a.Active.C)
		a.Motion.AddC(a.Fault.C)
		a.AddS(a.Motion.S)
	default:
		a.Contact = service.NewContactSensor()
		a.Contact.AddC(a.Active.C)
		a.Contact.AddC(a.Fault.C)
		a.AddS(a.Contact.S)
	}

	return &a
}

// Update reflects the zone state on the accessory. An unknown on/off state
// leaves the sensor value untouched.
func (sensor *ZoneSensor) Update(state sia.ZoneState) {
	if sensor.Active.Value() != state.Available {
		sensor.Active.SetValue(state.Available)
		_ = sensor.Fault.SetValue(boolAs[int](!state.Available))
		log.Info("availability", "zone", state.ID, "available", state.Available)
	}

	on, known := state.On.Bool()
	if !known {
		return
	}

	switch sensor.Kind {
	case kindMotion:
		if sensor.Motion.MotionDetected.Value() == on {
			return
		}
		sensor.Motion.MotionDetected.SetValue(on)
		log.Info("motion", "zone", state.ID, "status", on)
	default:
		current := boolAs[int](on)
		if sensor.Contact.ContactSensorState.Value() == current {
			return
		}
		_ = sensor.Contact.ContactSensorState.SetValue(current)
		log.Info("contact", "zone", state.ID, "status", current)
	}
}

func boolAs[T int | float64](b bool) T {
	if b {
		return 1
	}
	return 0
}
