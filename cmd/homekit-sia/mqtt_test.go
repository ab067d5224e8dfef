package main

import (
	"testing"
	"time"

	sia "github.com/caarlos0/homekit-sia"
	"github.com/stretchr/testify/require"
)

func TestMQTTDiscovery(t *testing.T) {
	topics := mqttTopics{discoveryPrefix: "homeassistant", base: "homekit-sia"}
	msgs, err := topics.discovery(zoneConfig{
		id:           sia.ZoneID{Account: "AAA", Zone: 3},
		name:         "Hall",
		kind:         kindMotion,
		pingInterval: 5 * time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.Equal(t, "homeassistant/binary_sensor/sia_aaa_3/config", msgs[0].topic)
	require.True(t, msgs[0].retained)
	require.JSONEq(t, `{
		"name": "Hall",
		"unique_id": "sia_aaa_3",
		"object_id": "sia_aaa_3",
		"device_class": "motion",
		"state_topic": "homekit-sia/AAA/3/state",
		"availability_topic": "homekit-sia/AAA/3/availability",
		"json_attributes_topic": "homekit-sia/AAA/3/attributes",
		"payload_on": "ON",
		"payload_off": "OFF",
		"payload_available": "online",
		"payload_not_available": "offline",
		"device": {
			"identifiers": ["homekit-sia_AAA"],
			"name": "SIA AAA",
			"manufacturer": "SIA",
			"sw_version": "dev"
		}
	}`, string(msgs[0].payload))

	require.Equal(t, "homekit-sia/AAA/3/attributes", msgs[1].topic)
	require.JSONEq(t, `{"account":"AAA","zone":3,"ping_interval":"5m0s"}`, string(msgs[1].payload))
}

func TestMQTTState(t *testing.T) {
	topics := mqttTopics{discoveryPrefix: "homeassistant", base: "homekit-sia"}
	id := sia.ZoneID{Account: "AAA", Zone: 1}

	t.Run("unknown", func(t *testing.T) {
		msgs := topics.state(sia.ZoneState{ID: id, Available: true})
		require.Equal(t, []message{
			{"homekit-sia/AAA/1/availability", []byte("online"), true},
		}, msgs)
	})

	t.Run("on and unavailable", func(t *testing.T) {
		msgs := topics.state(sia.ZoneState{ID: id, On: sia.On})
		require.Equal(t, []message{
			{"homekit-sia/AAA/1/availability", []byte("offline"), true},
			{"homekit-sia/AAA/1/state", []byte("ON"), true},
		}, msgs)
	})

	t.Run("off", func(t *testing.T) {
		msgs := topics.state(sia.ZoneState{ID: id, On: sia.Off, Available: true})
		require.Equal(t, []byte("OFF"), msgs[1].payload)
	})
}
