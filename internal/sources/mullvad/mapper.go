package mullvad

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"

	"github.com/MrSnakeDoc/mlvd/internal/domain"
)

// ErrMalformed is returned when a relay list body cannot be mapped to relays.
var ErrMalformed = errors.New("malformed relay list")

// Parse decodes an API response body into relays, in document order.
func Parse(body []byte) ([]domain.Relay, error) {
	var resp Response
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.WireGuard == nil {
		return nil, fmt.Errorf("%w: missing \"wireguard\" section", ErrMalformed)
	}
	if resp.WireGuard.Relays == nil {
		return nil, fmt.Errorf("%w: missing \"wireguard.relays\"", ErrMalformed)
	}

	props := *resp.WireGuard.Relays
	relays := make([]domain.Relay, 0, len(props))
	for i, p := range props {
		r, err := MapRelay(p)
		if err != nil {
			return nil, fmt.Errorf("relay #%d: %w", i, err)
		}
		relays = append(relays, r)
	}
	return relays, nil
}

// MapRelay converts one API relay into a domain.Relay.
func MapRelay(p RelayProps) (domain.Relay, error) {
	if p.Hostname == "" {
		return domain.Relay{}, fmt.Errorf("%w: relay without hostname", ErrMalformed)
	}
	ip, err := netip.ParseAddr(p.IPv4In)
	if err != nil {
		return domain.Relay{}, fmt.Errorf("%w: %s: invalid address %q", ErrMalformed, p.Hostname, p.IPv4In)
	}
	return domain.Relay{
		Hostname:  p.Hostname,
		Location:  p.Location,
		Active:    p.Active,
		Provider:  p.Provider,
		Weight:    p.Weight,
		IP:        ip,
		PublicKey: p.PublicKey,
	}, nil
}
