package signal

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(KindOffer, "call-1", "bob", Offer{
		Kind: domain.CallVideo, SDP: "v=0", CallerName: "Alice Patient",
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	offer, err := DecodeOffer(decoded)
	if err != nil {
		t.Fatalf("DecodeOffer: %v", err)
	}
	if offer.Kind != domain.CallVideo || offer.SDP != "v=0" || offer.CallerName != "Alice Patient" {
		t.Errorf("offer = %+v", offer)
	}
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	env, err := NewEnvelope(KindReject, "call-1", "bob", Reject{Reason: ReasonBusy})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if _, err := DecodeAnswer(env); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("err = %v, want ErrKindMismatch", err)
	}
	reject, err := DecodeReject(env)
	if err != nil {
		t.Fatalf("DecodeReject: %v", err)
	}
	if reject.Reason != ReasonBusy {
		t.Errorf("reason = %q, want busy", reject.Reason)
	}
}

func TestCandidateOptionalFields(t *testing.T) {
	mid := "0"
	idx := uint16(1)
	env, err := NewEnvelope(KindCandidate, "call-1", "bob", Candidate{
		Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 54321 typ host",
		SDPMid:    &mid, SDPMLineIndex: &idx,
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	cand, err := DecodeCandidate(env)
	if err != nil {
		t.Fatalf("DecodeCandidate: %v", err)
	}
	if cand.SDPMid == nil || *cand.SDPMid != "0" {
		t.Errorf("sdpMid = %v", cand.SDPMid)
	}
	if cand.SDPMLineIndex == nil || *cand.SDPMLineIndex != 1 {
		t.Errorf("sdpMLineIndex = %v", cand.SDPMLineIndex)
	}

	bare, err := NewEnvelope(KindCandidate, "call-1", "bob", Candidate{Candidate: "candidate:2"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	cand, err = DecodeCandidate(bare)
	if err != nil {
		t.Fatalf("DecodeCandidate: %v", err)
	}
	if cand.SDPMid != nil || cand.SDPMLineIndex != nil {
		t.Errorf("optional fields not omitted: %+v", cand)
	}
}
