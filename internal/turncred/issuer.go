// Package turncred issues short-lived, per-request relay credentials
// following the coturn REST API convention (use-auth-secret): the
// username embeds the expiry so the relay itself refuses the credential
// after the TTL window, independent of any client-side check.
package turncred

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
)

var (
	ErrUnauthorized  = errors.New("credential request without identity")
	ErrConfiguration = errors.New("relay issuer misconfigured")
)

// Public STUN fallbacks for NAT types that need no relay.
var defaultSTUNFallbacks = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type Config struct {
	// Realm and Host identify the relay deployment, e.g. "haven.health"
	// and "turn.haven.health".
	Realm string
	Host  string
	// Secret is the shared signing secret, the same value the relay is
	// started with. Leaking a derived credential exposes one user for
	// one TTL window, never this key.
	Secret string
	TTL    time.Duration

	// STUNFallbacks overrides the public discovery endpoints.
	STUNFallbacks []string
}

// Issuer is pure and stateless: every Issue call derives a fresh
// credential from configuration alone.
type Issuer struct {
	cfg Config
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Realm == "" || cfg.Host == "" {
		return nil, fmt.Errorf("%w: missing realm or host", ErrConfiguration)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: missing shared secret", ErrConfiguration)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.STUNFallbacks == nil {
		cfg.STUNFallbacks = defaultSTUNFallbacks
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// Issue returns a credential set scoped to this requester and this
// request. The username leads with the expiry second (the field the
// relay enforces) followed by the requester and a per-request nonce,
// so two overlapping attempts by the same user never share a pair.
func (i *Issuer) Issue(requester domain.UserID) (domain.RelayCredential, error) {
	if requester == "" {
		return domain.RelayCredential{}, ErrUnauthorized
	}

	issuedAt := i.now()
	expiry := issuedAt.Add(i.cfg.TTL).Unix()
	nonce := uuid.NewString()[:8]
	username := fmt.Sprintf("%d:%s:%s", expiry, requester, nonce)

	mac := hmac.New(sha1.New, []byte(i.cfg.Secret))
	mac.Write([]byte(username))
	secret := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	endpoints := make([]domain.Endpoint, 0, len(i.cfg.STUNFallbacks)+4)
	for _, uri := range i.cfg.STUNFallbacks {
		endpoints = append(endpoints, domain.Endpoint{URI: uri, Transport: domain.TransportUDP})
	}
	endpoints = append(endpoints,
		// Self-hosted discovery, no auth needed.
		domain.Endpoint{URI: fmt.Sprintf("stun:%s:3478", i.cfg.Host), Transport: domain.TransportUDP},
		// Relay over UDP, then TCP for firewalled networks, then TLS
		// for strict ones.
		domain.Endpoint{URI: fmt.Sprintf("turn:%s:3478", i.cfg.Host), Transport: domain.TransportUDP, Relay: true},
		domain.Endpoint{URI: fmt.Sprintf("turn:%s:3478?transport=tcp", i.cfg.Host), Transport: domain.TransportTCP, Relay: true},
		domain.Endpoint{URI: fmt.Sprintf("turns:%s:5349", i.cfg.Host), Transport: domain.TransportTLS, Relay: true},
	)

	return domain.RelayCredential{
		Endpoints:  endpoints,
		Username:   username,
		Secret:     secret,
		TTLSeconds: int(i.cfg.TTL / time.Second),
		IssuedAt:   issuedAt,
	}, nil
}

// Realm reports the configured realm for diagnostics.
func (i *Issuer) Realm() string { return i.cfg.Realm }
