package call

import (
	"context"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
	"github.com/Haven-Technologies-Inc/telecall/internal/signal"
)

// Signaler delivers call-control envelopes to the peer named in the
// envelope. Fire-and-forget, at-most-once; an undelivered message only
// ever manifests as a ringing or dialing timeout on this side.
type Signaler interface {
	Send(ctx context.Context, env signal.Envelope) error
}

// CredentialIssuer hands out time-boxed relay credentials. The
// coordinator requests one per call attempt and discards it once the
// session is connected or ended.
type CredentialIssuer interface {
	Issue(requester domain.UserID) (domain.RelayCredential, error)
}

// MediaTransport is the underlying peer connection the coordinator
// drives. It is owned by exactly one session and closed exactly once on
// entry to Ended.
type MediaTransport interface {
	// CreateOffer produces the local description for a caller.
	CreateOffer(ctx context.Context) (sdp string, err error)
	// AnswerOffer applies the remote offer and produces the local
	// answer for a callee.
	AnswerOffer(ctx context.Context, remoteSDP string) (sdp string, err error)
	// AcceptAnswer applies the remote answer on the caller side.
	AcceptAnswer(remoteSDP string) error

	AddRemoteCandidate(c signal.Candidate) error
	OnLocalCandidate(fn func(signal.Candidate))
	OnRemoteMedia(fn func(MediaHandle))
	OnFailure(fn func(error))

	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)

	Close() error
}

// MediaFactory builds a transport configured with the traversal
// endpoints and scoped credential for one call attempt.
type MediaFactory interface {
	NewTransport(cred domain.RelayCredential, kind domain.CallKind) (MediaTransport, error)
}
