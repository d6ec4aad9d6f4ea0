package domain

import "time"

// EndpointTransport is the transport a traversal endpoint listens on.
type EndpointTransport string

const (
	TransportUDP EndpointTransport = "udp"
	TransportTCP EndpointTransport = "tcp"
	TransportTLS EndpointTransport = "tls"
)

// Endpoint is one traversal entry. STUN entries carry no credential,
// relay entries authenticate with the per-request pair on RelayCredential.
type Endpoint struct {
	URI       string            `json:"uri"`
	Transport EndpointTransport `json:"transport"`
	Relay     bool              `json:"-"`
}

// RelayCredential is a time-boxed, per-request credential set for
// relay traversal. Owned exclusively by the call session that requested
// it; never persisted, never shared across sessions.
type RelayCredential struct {
	Endpoints  []Endpoint `json:"endpoints"`
	Username   string     `json:"username"`
	Secret     string     `json:"secret"`
	TTLSeconds int        `json:"ttlSeconds"`
	IssuedAt   time.Time  `json:"issuedAt"`
}

func (c RelayCredential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(time.Duration(c.TTLSeconds) * time.Second)
}

// Expired reports whether negotiation with this credential requires
// re-issuance.
func (c RelayCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt())
}
