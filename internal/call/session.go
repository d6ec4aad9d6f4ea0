package call

import (
	"time"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
	"github.com/Haven-Technologies-Inc/telecall/internal/signal"
)

// session is the coordinator-private state for one call attempt.
// All access happens under Coordinator.mu.
type session struct {
	id   domain.CallID
	peer domain.User
	kind domain.CallKind
	role domain.CallRole

	state domain.CallState
	media domain.LocalMedia

	// remoteSDP holds the offer a callee ack'd with accept(); empty on
	// the caller side.
	remoteSDP string

	cred      *domain.RelayCredential
	transport MediaTransport
	released  bool

	// Candidates that arrived before the transport existed (trickle ICE
	// reaching a still-ringing callee). Flushed on accept.
	pending []signal.Candidate

	dialTimer *time.Timer
	ringTimer *time.Timer

	createdAt   time.Time
	connectedAt *time.Time
	endedAt     *time.Time
	endReason   domain.EndReason
}

func (s *session) stopDialTimer() {
	if s.dialTimer != nil {
		s.dialTimer.Stop()
		s.dialTimer = nil
	}
}

func (s *session) stopRingTimer() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// releaseMedia closes the transport exactly once, on every exit path.
func (s *session) releaseMedia() {
	if s.released || s.transport == nil {
		s.released = true
		return
	}
	s.released = true
	_ = s.transport.Close()
}

func (s *session) snapshot() domain.CallSnapshot {
	return domain.CallSnapshot{
		ID:          s.id,
		PeerID:      s.peer.ID,
		PeerName:    s.peer.DisplayName,
		Kind:        s.kind,
		Role:        s.role,
		State:       s.state,
		Media:       s.media,
		CreatedAt:   s.createdAt,
		ConnectedAt: s.connectedAt,
		EndedAt:     s.endedAt,
		EndReason:   s.endReason,
	}
}
