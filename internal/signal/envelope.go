// Package signal defines the call-control wire protocol spoken over the
// relay. The relay treats payloads as opaque; only the coordinator on
// each end interprets them.
package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
)

type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
	KindReject    Kind = "reject"
	KindEnd       Kind = "end"
	KindMedia     Kind = "media"
)

var ErrKindMismatch = errors.New("payload kind mismatch")

// Envelope carries one call-control message between two parties.
// From is stamped by the relay from the authenticated sender, never
// trusted from the client.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	CallID  domain.CallID   `json:"callId"`
	From    domain.UserID   `json:"from,omitempty"`
	To      domain.UserID   `json:"to"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Offer opens a session: the callee learns the id, the media kind and
// who is calling from this single message.
type Offer struct {
	Kind       domain.CallKind `json:"kind"`
	SDP        string          `json:"sdp"`
	CallerName string          `json:"callerName"`
}

type Answer struct {
	SDP string `json:"sdp"`
}

type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

const (
	ReasonBusy     = "busy"
	ReasonDeclined = "declined"
)

type Reject struct {
	Reason string `json:"reason"`
}

type End struct{}

// MediaToggle tells the peer a track was muted or unmuted. Advisory:
// it never changes session state on the receiving side.
type MediaToggle struct {
	Media   domain.CallKind `json:"media"`
	Enabled bool            `json:"enabled"`
}

func NewEnvelope(kind Kind, callID domain.CallID, to domain.UserID, payload any) (Envelope, error) {
	env := Envelope{Kind: kind, CallID: callID, To: to}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return env, nil
}

func decode[T any](env Envelope, want Kind) (T, error) {
	var out T
	if env.Kind != want {
		return out, fmt.Errorf("%w: have %s, want %s", ErrKindMismatch, env.Kind, want)
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", want, err)
	}
	return out, nil
}

func DecodeOffer(env Envelope) (Offer, error)      { return decode[Offer](env, KindOffer) }
func DecodeAnswer(env Envelope) (Answer, error)    { return decode[Answer](env, KindAnswer) }
func DecodeCandidate(env Envelope) (Candidate, error) {
	return decode[Candidate](env, KindCandidate)
}
func DecodeReject(env Envelope) (Reject, error) { return decode[Reject](env, KindReject) }
func DecodeMediaToggle(env Envelope) (MediaToggle, error) {
	return decode[MediaToggle](env, KindMedia)
}
