package turncred

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
)

func testConfig() Config {
	return Config{
		Realm:  "haven.test",
		Host:   "turn.haven.test",
		Secret: "shared-test-secret",
		TTL:    time.Hour,
	}
}

func TestNewIssuerValidatesConfig(t *testing.T) {
	for name, cfg := range map[string]Config{
		"missing realm":  {Host: "h", Secret: "s"},
		"missing host":   {Realm: "r", Secret: "s"},
		"missing secret": {Realm: "r", Host: "h"},
	} {
		if _, err := NewIssuer(cfg); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: err = %v, want ErrConfiguration", name, err)
		}
	}
}

func TestIssueRequiresIdentity(t *testing.T) {
	issuer, err := NewIssuer(testConfig())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	if _, err := issuer.Issue(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestIssueScopesCredentialToRequest(t *testing.T) {
	issuer, err := NewIssuer(testConfig())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	cred, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.SplitN(cred.Username, ":", 3)
	if len(parts) != 3 {
		t.Fatalf("username %q, want expiry:requester:nonce", cred.Username)
	}
	expiry, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		t.Fatalf("username expiry field %q: %v", parts[0], err)
	}
	if got := cred.ExpiresAt().Unix(); got != expiry {
		t.Errorf("ExpiresAt = %d, username says %d", got, expiry)
	}
	if parts[1] != "alice" {
		t.Errorf("username requester = %q, want alice", parts[1])
	}

	// The secret must be the HMAC of the username under the shared key,
	// which is what the relay recomputes to admit the credential.
	mac := hmac.New(sha1.New, []byte("shared-test-secret"))
	mac.Write([]byte(cred.Username))
	if want := base64.StdEncoding.EncodeToString(mac.Sum(nil)); cred.Secret != want {
		t.Errorf("secret is not the HMAC of the username")
	}
}

func TestOverlappingIssuesAreDistinct(t *testing.T) {
	issuer, err := NewIssuer(testConfig())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	a, _ := issuer.Issue("alice")
	b, _ := issuer.Issue("alice")
	if a.Username == b.Username {
		t.Errorf("overlapping issues share username %q", a.Username)
	}
	if a.Secret == b.Secret {
		t.Errorf("overlapping issues share secret")
	}
}

func TestEndpointLadder(t *testing.T) {
	issuer, err := NewIssuer(testConfig())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	cred, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var relayUDP, relayTCP, relayTLS, stun bool
	for _, ep := range cred.Endpoints {
		if !ep.Relay {
			if !strings.HasPrefix(ep.URI, "stun:") {
				t.Errorf("non-relay endpoint %q is not STUN", ep.URI)
			}
			stun = true
			continue
		}
		switch ep.Transport {
		case domain.TransportUDP:
			relayUDP = true
		case domain.TransportTCP:
			relayTCP = true
		case domain.TransportTLS:
			relayTLS = true
			if !strings.HasPrefix(ep.URI, "turns:") {
				t.Errorf("TLS relay endpoint %q is not turns:", ep.URI)
			}
		}
	}
	if !relayUDP || !relayTCP || !relayTLS || !stun {
		t.Errorf("endpoint ladder incomplete: udp=%v tcp=%v tls=%v stun=%v", relayUDP, relayTCP, relayTLS, stun)
	}
}

func TestCredentialExpiry(t *testing.T) {
	issuer, err := NewIssuer(testConfig())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return base }

	cred, _ := issuer.Issue("alice")
	if cred.TTLSeconds != 3600 {
		t.Errorf("TTLSeconds = %d, want 3600", cred.TTLSeconds)
	}
	if cred.Expired(base.Add(59 * time.Minute)) {
		t.Error("credential expired inside its TTL window")
	}
	if !cred.Expired(base.Add(time.Hour)) {
		t.Error("credential still valid at expiry instant")
	}
}
