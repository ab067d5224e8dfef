package sia

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidEvent = errors.New("invalid event")
	ErrLineTooLong  = errors.New("line too long")
)

// Event is a decoded report from an alarm panel.
// A nil On means the panel only pinged the zone.
type Event struct {
	Account string `json:"account"`
	Zone    int    `json:"zone"`
	On      *bool  `json:"on,omitempty"`
}

func (e Event) ZoneID() ZoneID {
	return ZoneID{Account: e.Account, Zone: e.Zone}
}

func (e Event) IsPing() bool {
	return e.On == nil
}

func parseEvent(line []byte) (Event, error) {
	var evt Event
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&evt); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if evt.Account == "" {
		return Event{}, fmt.Errorf("%w: missing account", ErrInvalidEvent)
	}
	if evt.Zone <= 0 {
		return Event{}, fmt.Errorf("%w: zone must be positive, got %d", ErrInvalidEvent, evt.Zone)
	}
	return evt, nil
}

func ack() []byte {
	return []byte("ACK\n")
}

func nak(err error) []byte {
	return []byte(fmt.Sprintf("NAK %s\n", err))
}
