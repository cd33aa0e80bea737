package mullvad

// Response is the subset of the relay list document mlvd reads.
// Pointers distinguish a missing section from an empty one.
type Response struct {
	WireGuard *WireGuard `json:"wireguard"`
}

// WireGuard holds the WireGuard relay section.
type WireGuard struct {
	Relays *[]RelayProps `json:"relays"`
}

// RelayProps is one relay as published by the API.
type RelayProps struct {
	Hostname  string `json:"hostname"`
	Location  string `json:"location"`
	Active    bool   `json:"active"`
	Provider  string `json:"provider"`
	Weight    uint64 `json:"weight"`
	IPv4In    string `json:"ipv4_addr_in"`
	PublicKey string `json:"public_key"`
}
