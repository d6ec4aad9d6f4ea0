package domain

import "time"

type CallID string

// CallKind selects the media requested for a session. Immutable once set.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool { return k == CallAudio || k == CallVideo }

// CallRole determines which signaling messages are legal to send next.
type CallRole string

const (
	RoleCaller CallRole = "caller"
	RoleCallee CallRole = "callee"
)

type CallState int

const (
	StateIdle CallState = iota
	StateDialing
	StateRinging
	StateConnected
	StateEnding
	StateEnded
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialing:
		return "dialing"
	case StateRinging:
		return "ringing"
	case StateConnected:
		return "connected"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// EndReason is set once, on the Ended transition, never overwritten.
type EndReason string

const (
	EndNone              EndReason = ""
	EndLocalHangup       EndReason = "local_hangup"
	EndRemoteHangup      EndReason = "remote_hangup"
	EndRejected          EndReason = "rejected"
	EndTimedOut          EndReason = "timed_out"
	EndNegotiationFailed EndReason = "negotiation_failed"
	EndError             EndReason = "error"
)

// LocalMedia is mutable by local user action only.
type LocalMedia struct {
	AudioEnabled bool `json:"audioEnabled"`
	VideoEnabled bool `json:"videoEnabled"`
}

// CallSnapshot is a read-only view of the active session for UIs and APIs.
type CallSnapshot struct {
	ID          CallID     `json:"id"`
	PeerID      UserID     `json:"peerId"`
	PeerName    string     `json:"peerName"`
	Kind        CallKind   `json:"kind"`
	Role        CallRole   `json:"role"`
	State       CallState  `json:"-"`
	Media       LocalMedia `json:"media"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	EndReason   EndReason  `json:"endReason,omitempty"`
}
