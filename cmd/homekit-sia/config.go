package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sia "github.com/caarlos0/homekit-sia"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Account       string        `env:"ACCOUNT"`
	MotionZones   []int         `env:"MOTION"`
	ContactZones  []int         `env:"CONTACT"`
	ZoneNames     []string      `env:"ZONE_NAMES"`
	ZonesFile     string        `env:"ZONES_FILE"`
	PingInterval  time.Duration `env:"PING_INTERVAL"      envDefault:"1m"`
	PingMargin    time.Duration `env:"PING_MARGIN"        envDefault:"30s"`
	EventsAddress string        `env:"LISTEN_EVENTS"      envDefault:":7777"`
	IdleTimeout   time.Duration `env:"EVENT_IDLE_TIMEOUT" envDefault:"5m"`
	Address       string        `env:"LISTEN"             envDefault:":9009"`
	Pin           string        `env:"PIN"`
	DB            string        `env:"DB"                 envDefault:"./db"`
	PanelHost     string        `env:"PANEL_HOST"`
	Debug         bool          `env:"DEBUG"`
	MQTT          MQTTConfig    `envPrefix:"MQTT_"`
}

type MQTTConfig struct {
	Broker          string `env:"BROKER"`
	Username        string `env:"USERNAME"`
	Password        string `env:"PASSWORD"`
	DiscoveryPrefix string `env:"DISCOVERY_PREFIX" envDefault:"homeassistant"`
	Topic           string `env:"TOPIC"            envDefault:"homekit-sia"`
}

type zoneKind uint8

const (
	kindMotion zoneKind = iota + 1
	kindContact
)

func (z zoneKind) String() string {
	switch z {
	case kindMotion:
		return "motion"
	default:
		return "contact"
	}
}

// deviceClass is the Home Assistant binary sensor class for the kind.
func (z zoneKind) deviceClass() string {
	switch z {
	case kindMotion:
		return "motion"
	default:
		return "door"
	}
}

func parseZoneKind(s string) (zoneKind, error) {
	switch strings.ToLower(s) {
	case "motion":
		return kindMotion, nil
	case "contact", "":
		return kindContact, nil
	default:
		return 0, fmt.Errorf("invalid zone kind: %q", s)
	}
}

type zoneConfig struct {
	id           sia.ZoneID
	name         string
	kind         zoneKind
	pingInterval time.Duration
}

type allZoneConfigs []zoneConfig

func (a allZoneConfigs) String() string {
	var zones []string
	for _, zone := range a {
		zones = append(
			zones,
			fmt.Sprintf("zone %s: %q (%s, ping every %s)", zone.id, zone.name, zone.kind, zone.pingInterval),
		)
	}
	return strings.Join(zones, "\n")
}

type zonesFile struct {
	Zones []struct {
		Account      string        `yaml:"account"`
		Zone         int           `yaml:"zone"`
		Name         string        `yaml:"name"`
		Kind         string        `yaml:"kind"`
		PingInterval time.Duration `yaml:"ping_interval"`
	} `yaml:"zones"`
}

func (c Config) zoneName(n int) string {
	names := c.ZoneNames
	if len(names) > n-1 {
		if n := names[n-1]; n != "" {
			return n
		}
	}
	return fmt.Sprintf("Zone %d", n)
}

func (c Config) allZones() (allZoneConfigs, error) {
	if len(c.MotionZones)+len(c.ContactZones) > 0 && c.Account == "" {
		return nil, errors.New("ACCOUNT is required when MOTION or CONTACT zones are set")
	}

	var zones allZoneConfigs
	for _, z := range c.MotionZones {
		zones = append(zones, zoneConfig{
			id:           sia.ZoneID{Account: c.Account, Zone: z},
			name:         c.zoneName(z),
			kind:         kindMotion,
			pingInterval: c.PingInterval,
		})
	}
	for _, z := range c.ContactZones {
		zones = append(zones, zoneConfig{
			id:           sia.ZoneID{Account: c.Account, Zone: z},
			name:         c.zoneName(z),
			kind:         kindContact,
			pingInterval: c.PingInterval,
		})
	}

	if c.ZonesFile != "" {
		fromFile, err := c.loadZonesFile()
		if err != nil {
			return nil, err
		}
		zones = append(zones, fromFile...)
	}

	slices.SortFunc(zones, func(a, b zoneConfig) int {
		return a.id.Compare(b.id)
	})
	for i := 1; i < len(zones); i++ {
		if zones[i].id == zones[i-1].id {
			return nil, fmt.Errorf("zone %s configured more than once", zones[i].id)
		}
	}
	if len(zones) == 0 {
		return nil, errors.New("no zones configured")
	}
	return zones, nil
}

func (c Config) loadZonesFile() ([]zoneConfig, error) {
	bts, err := os.ReadFile(c.ZonesFile)
	if err != nil {
		return nil, fmt.Errorf("could not read zones file: %w", err)
	}

	var file zonesFile
	if err := yaml.Unmarshal(bts, &file); err != nil {
		return nil, fmt.Errorf("could not parse zones file: %w", err)
	}

	zones := make([]zoneConfig, 0, len(file.Zones))
	for _, z := range file.Zones {
		account := z.Account
		if account == "" {
			account = c.Account
		}
		if account == "" || z.Zone <= 0 {
			return nil, fmt.Errorf("invalid zone in %s: account=%q zone=%d", c.ZonesFile, account, z.Zone)
		}
		kind, err := parseZoneKind(z.Kind)
		if err != nil {
			return nil, fmt.Errorf("zone %s/%d: %w", account, z.Zone, err)
		}
		zone := zoneConfig{
			id:           sia.ZoneID{Account: account, Zone: z.Zone},
			name:         z.Name,
			kind:         kind,
			pingInterval: z.PingInterval,
		}
		if zone.name == "" {
			zone.name = fmt.Sprintf("Zone %d", z.Zone)
		}
		if zone.pingInterval == 0 {
			zone.pingInterval = c.PingInterval
		}
		zones = append(zones, zone)
	}
	return zones, nil
}
