package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	sia "github.com/caarlos0/homekit-sia"
	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	payloadOn      = "ON"
	payloadOff     = "OFF"
	payloadOnline  = "online"
	payloadOffline = "offline"
)

type message struct {
	topic    string
	payload  []byte
	retained bool
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

type discoveryConfig struct {
	Name                string          `json:"name"`
	UniqueID            string          `json:"unique_id"`
	ObjectID            string          `json:"object_id"`
	DeviceClass         string          `json:"device_class"`
	StateTopic          string          `json:"state_topic"`
	AvailabilityTopic   string          `json:"availability_topic"`
	JSONAttributesTopic string          `json:"json_attributes_topic"`
	PayloadOn           string          `json:"payload_on"`
	PayloadOff          string          `json:"payload_off"`
	PayloadAvailable    string          `json:"payload_available"`
	PayloadNotAvailable string          `json:"payload_not_available"`
	Device              discoveryDevice `json:"device"`
}

type zoneAttributes struct {
	Account      string `json:"account"`
	Zone         int    `json:"zone"`
	PingInterval string `json:"ping_interval"`
}

// mqttTopics builds Home Assistant discovery and state messages.
type mqttTopics struct {
	discoveryPrefix string
	base            string
}

func objectID(id sia.ZoneID) string {
	return strings.ToLower(fmt.Sprintf("sia_%s_%d", id.Account, id.Zone))
}

func (t mqttTopics) zoneTopic(id sia.ZoneID, suffix string) string {
	return fmt.Sprintf("%s/%s/%d/%s", t.base, id.Account, id.Zone, suffix)
}

func (t mqttTopics) discovery(zone zoneConfig) ([]message, error) {
	cfg := discoveryConfig{
		Name:                zone.name,
		UniqueID:            objectID(zone.id),
		ObjectID:            objectID(zone.id),
		DeviceClass:         zone.kind.deviceClass(),
		StateTopic:          t.zoneTopic(zone.id, "state"),
		AvailabilityTopic:   t.zoneTopic(zone.id, "availability"),
		JSONAttributesTopic: t.zoneTopic(zone.id, "attributes"),
		PayloadOn:           payloadOn,
		PayloadOff:          payloadOff,
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		Device: discoveryDevice{
			Identifiers:  []string{fmt.Sprintf("%s_%s", t.base, zone.id.Account)},
			Name:         fmt.Sprintf("SIA %s", zone.id.Account),
			Manufacturer: manufacturer,
			SWVersion:    version,
		},
	}
	bts, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not encode discovery config: %w", err)
	}
	attrs, err := json.Marshal(zoneAttributes{
		Account:      zone.id.Account,
		Zone:         zone.id.Zone,
		PingInterval: zone.pingInterval.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("could not encode zone attributes: %w", err)
	}
	return []message{
		{
			topic:    fmt.Sprintf("%s/binary_sensor/%s/config", t.discoveryPrefix, objectID(zone.id)),
			payload:  bts,
			retained: true,
		},
		{
			topic:    t.zoneTopic(zone.id, "attributes"),
			payload:  attrs,
			retained: true,
		},
	}, nil
}

func (t mqttTopics) state(state sia.ZoneState) []message {
	availability := payloadOffline
	if state.Available {
		availability = payloadOnline
	}
	msgs := []message{{
		topic:    t.zoneTopic(state.ID, "availability"),
		payload:  []byte(availability),
		retained: true,
	}}

	if on, known := state.On.Bool(); known {
		payload := payloadOff
		if on {
			payload = payloadOn
		}
		msgs = append(msgs, message{
			topic:    t.zoneTopic(state.ID, "state"),
			payload:  []byte(payload),
			retained: true,
		})
	}
	return msgs
}

// mqttPresenter publishes zones to Home Assistant through MQTT.
type mqttPresenter struct {
	client  mqtt.Client
	topics  mqttTopics
	timeout time.Duration
}

func newMQTTPresenter(cfg MQTTConfig) (*mqttPresenter, error) {
	hostname, _ := os.Hostname()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.Topic, hostname))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(cfg.Topic+"/status", payloadOffline, 0, true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "err", err)
	}

	client := mqtt.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = time.Minute
	if err := backoff.RetryNotify(func() error {
		token := client.Connect()
		token.Wait()
		return token.Error()
	}, bo, func(err error, _ time.Duration) {
		log.Error("could not connect to mqtt broker", "broker", cfg.Broker, "err", err)
	}); err != nil {
		return nil, fmt.Errorf("could not connect to mqtt: %w", err)
	}

	p := &mqttPresenter{
		client: client,
		topics: mqttTopics{
			discoveryPrefix: cfg.DiscoveryPrefix,
			base:            cfg.Topic,
		},
		timeout: 10 * time.Second,
	}
	if err := p.publish(message{
		topic:    cfg.Topic + "/status",
		payload:  []byte(payloadOnline),
		retained: true,
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Announce publishes the discovery config of every zone.
func (p *mqttPresenter) Announce(zones []zoneConfig) error {
	for _, zone := range zones {
		msgs, err := p.topics.discovery(zone)
		if err != nil {
			return err
		}
		if err := p.publish(msgs...); err != nil {
			return err
		}
	}
	return nil
}

func (p *mqttPresenter) Update(state sia.ZoneState) error {
	return p.publish(p.topics.state(state)...)
}

func (p *mqttPresenter) publish(msgs ...message) error {
	for _, msg := range msgs {
		token := p.client.Publish(msg.topic, 0, msg.retained, msg.payload)
		if !token.WaitTimeout(p.timeout) {
			return fmt.Errorf("could not publish to %s: timeout", msg.topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("could not publish to %s: %w", msg.topic, err)
		}
	}
	return nil
}

func (p *mqttPresenter) Close() {
	_ = p.publish(message{
		topic:    p.topics.base + "/status",
		payload:  []byte(payloadOffline),
		retained: true,
	})
	p.client.Disconnect(250)
}
