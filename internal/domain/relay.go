package domain

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrDuplicateHostname is returned when a directory lists the same hostname twice.
var ErrDuplicateHostname = errors.New("duplicate relay hostname")

// Relay is one selectable WireGuard endpoint.
//
// A Relay is uniquely identified by its Hostname and is never mutated once
// it has been fetched. The JSON layout is the cache serialization format.
type Relay struct {
	// Hostname is the unique key of the relay.
	// Example: se-sto-wg-001
	Hostname string `json:"hostname"`

	// Location groups relays as "country-city".
	// Example: se-sto
	Location string `json:"location"`

	// Active is false for relays that are published but not accepting peers.
	Active bool `json:"active"`

	// Provider is the hosting company operating the relay.
	Provider string `json:"provider"`

	// Weight is a relative capacity hint used for random selection.
	Weight uint64 `json:"weight"`

	// IP is the address peers connect to.
	IP netip.Addr `json:"ipv4_addr_in"`

	// PublicKey is the relay's WireGuard public key.
	PublicKey string `json:"public_key"`
}

// Directory is an ordered, read-only snapshot of relays with unique hostnames.
type Directory struct {
	relays []Relay
}

// NewDirectory builds a Directory, rejecting duplicate hostnames.
func NewDirectory(relays []Relay) (Directory, error) {
	seen := make(map[string]struct{}, len(relays))
	for _, r := range relays {
		if _, dup := seen[r.Hostname]; dup {
			return Directory{}, fmt.Errorf("%w: %s", ErrDuplicateHostname, r.Hostname)
		}
		seen[r.Hostname] = struct{}{}
	}
	return Directory{relays: append([]Relay(nil), relays...)}, nil
}

// Relays returns a copy of the relays in directory order.
func (d Directory) Relays() []Relay {
	return append([]Relay(nil), d.relays...)
}

// Len returns the number of relays.
func (d Directory) Len() int {
	return len(d.relays)
}

// Lookup returns the relay with the given hostname.
func (d Directory) Lookup(hostname string) (Relay, bool) {
	for _, r := range d.relays {
		if r.Hostname == hostname {
			return r, true
		}
	}
	return Relay{}, false
}
