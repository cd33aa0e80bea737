package tunnel

import (
	"net/netip"
	"strings"
)

const (
	PlaceholderIP     = "SERVER_IP"
	PlaceholderPubKey = "SERVER_PUBKEY"
)

// Render substitutes the relay address and public key into tpl.
func Render(tpl string, ip netip.Addr, publicKey string) string {
	r := strings.NewReplacer(
		PlaceholderPubKey, publicKey,
		PlaceholderIP, ip.String(),
	)
	return r.Replace(tpl)
}

// MissingPlaceholders lists the placeholders tpl does not contain.
func MissingPlaceholders(tpl string) []string {
	var missing []string
	for _, p := range []string{PlaceholderIP, PlaceholderPubKey} {
		if !strings.Contains(tpl, p) {
			missing = append(missing, p)
		}
	}
	return missing
}
