package call

import "github.com/Haven-Technologies-Inc/telecall/internal/domain"

// MediaHandle is an opaque reference to live media the UI can render.
// The pion adapter passes remote tracks through it; fakes in tests pass
// whatever they like.
type MediaHandle any

// Event is what the coordinator pushes to the UI surface. The UI drains
// Events() and re-renders; it never calls back into the coordinator
// from the draining goroutine while holding its own locks.
type Event interface{ event() }

// IncomingCall surfaces a ringing offer to the UI.
type IncomingCall struct {
	CallID   domain.CallID
	PeerID   domain.UserID
	PeerName string
	Kind     domain.CallKind
}

// StateChanged reports every transition. Reason and Detail are set only
// for the Ended state.
type StateChanged struct {
	State  domain.CallState
	Reason domain.EndReason
	Detail string
}

type LocalMediaReady struct {
	Handle MediaHandle
}

type RemoteMediaReady struct {
	Handle MediaHandle
}

// PeerMediaChanged mirrors the peer muting or unmuting a track.
type PeerMediaChanged struct {
	Media   domain.CallKind
	Enabled bool
}

// CallError reports a non-fatal problem. Fatal problems arrive as
// StateChanged{Ended, ...} instead.
type CallError struct {
	Kind   string
	Detail string
}

func (IncomingCall) event()     {}
func (StateChanged) event()     {}
func (LocalMediaReady) event()  {}
func (RemoteMediaReady) event() {}
func (PeerMediaChanged) event() {}
func (CallError) event()        {}
