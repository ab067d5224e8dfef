package sia

import (
	"cmp"
	"fmt"
	"time"
)

// ZoneID identifies a zone within an account.
type ZoneID struct {
	Account string `json:"account" yaml:"account"`
	Zone    int    `json:"zone"    yaml:"zone"`
}

func (id ZoneID) String() string {
	return fmt.Sprintf("%s/%d", id.Account, id.Zone)
}

// Compare orders zones by account, then by zone number.
func (id ZoneID) Compare(other ZoneID) int {
	if c := cmp.Compare(id.Account, other.Account); c != 0 {
		return c
	}
	return cmp.Compare(id.Zone, other.Zone)
}

type ZoneState struct {
	ID           ZoneID        `json:"id"`
	On           OnState       `json:"on"`
	Available    bool          `json:"available"`
	LastSeen     time.Time     `json:"last_seen,omitzero"`
	PingInterval time.Duration `json:"ping_interval"`
	Margin       time.Duration `json:"margin"`
}

// Deadline is the moment the zone becomes unavailable if nothing else is
// heard from it. It is zero until the first live event.
func (z ZoneState) Deadline() time.Time {
	if z.LastSeen.IsZero() {
		return time.Time{}
	}
	return z.LastSeen.Add(z.PingInterval + z.Margin)
}

// ZoneChange tells what an operation changed on a zone.
type ZoneChange struct {
	OnChanged           bool `json:"on_changed"`
	AvailabilityChanged bool `json:"availability_changed"`
}

func (c ZoneChange) Changed() bool {
	return c.OnChanged || c.AvailabilityChanged
}
