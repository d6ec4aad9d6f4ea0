package call

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
	"github.com/Haven-Technologies-Inc/telecall/internal/signal"
)

// HandleEnvelope is the relay subscription callback. Envelopes for a
// call id other than the active session's are discarded, which makes
// late arrivals from a just-ended call harmless.
func (c *Coordinator) HandleEnvelope(env signal.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Kind {
	case signal.KindOffer:
		c.handleOffer(env)
	case signal.KindAnswer:
		c.handleAnswer(env)
	case signal.KindCandidate:
		c.handleCandidate(env)
	case signal.KindReject:
		c.handleReject(env)
	case signal.KindEnd:
		c.handleEnd(env)
	case signal.KindMedia:
		c.handleMediaToggle(env)
	default:
		log.Warn().Str("module", "call").Str("kind", string(env.Kind)).Msg("unknown signal kind")
	}
}

func (c *Coordinator) handleOffer(env signal.Envelope) {
	offer, err := signal.DecodeOffer(env)
	if err != nil || !offer.Kind.Valid() {
		log.Warn().Err(err).Str("module", "call").Msg("bad offer")
		return
	}

	s := c.sess
	if s != nil && s.state != domain.StateEnded {
		if env.CallID == s.id {
			// Duplicate of the offer we are already ringing on.
			return
		}
		if s.state == domain.StateDialing && env.From == s.peer.ID {
			// Simultaneous dial: both parties offered each other at
			// once. The lexicographically smaller identity keeps the
			// caller role; the other folds its dial into the winning
			// offer. Deterministic regardless of arrival order.
			if c.self.ID < env.From {
				return
			}
			log.Info().Str("module", "call").Str("call_id", string(env.CallID)).
				Str("peer", string(env.From)).Msg("simultaneous dial, yielding caller role")
			s.stopDialTimer()
			s.releaseMedia()
			c.sess = nil
			c.adoptOffer(env, offer)
			return
		}
		// Busy: never enters Ringing, never touches the live session.
		c.sendControl(signal.KindReject, env.CallID, env.From, signal.Reject{Reason: signal.ReasonBusy})
		return
	}

	// A finished session the UI has not acknowledged yet does not make
	// us busy for a new incoming call.
	c.sess = nil
	c.adoptOffer(env, offer)
}

func (c *Coordinator) adoptOffer(env signal.Envelope, offer signal.Offer) {
	s := &session{
		id:        env.CallID,
		peer:      domain.User{ID: env.From, DisplayName: offer.CallerName},
		kind:      offer.Kind,
		role:      domain.RoleCallee,
		state:     domain.StateRinging,
		media:     domain.LocalMedia{AudioEnabled: true, VideoEnabled: offer.Kind == domain.CallVideo},
		remoteSDP: offer.SDP,
		createdAt: c.now(),
	}
	c.sess = s
	id := s.id
	s.ringTimer = time.AfterFunc(c.opts.RingTimeout, func() { c.onRingTimeout(id) })

	log.Info().Str("module", "call").Str("call_id", string(s.id)).
		Str("peer", string(s.peer.ID)).Str("kind", string(s.kind)).Msg("ringing")
	c.emit(IncomingCall{CallID: s.id, PeerID: s.peer.ID, PeerName: s.peer.DisplayName, Kind: s.kind})
	c.emit(StateChanged{State: domain.StateRinging})
}

func (c *Coordinator) handleAnswer(env signal.Envelope) {
	s := c.activeSession(env.CallID)
	if s == nil || s.state != domain.StateDialing {
		return
	}
	answer, err := signal.DecodeAnswer(env)
	if err != nil {
		log.Warn().Err(err).Str("module", "call").Msg("bad answer")
		return
	}
	s.stopDialTimer()
	if err := s.transport.AcceptAnswer(answer.SDP); err != nil {
		c.endLocked(s, domain.EndNegotiationFailed, err.Error())
		return
	}
	now := c.now()
	s.state = domain.StateConnected
	s.connectedAt = &now
	s.cred = nil
	log.Info().Str("module", "call").Str("call_id", string(s.id)).Msg("connected")
	c.emit(StateChanged{State: domain.StateConnected})
}

func (c *Coordinator) handleCandidate(env signal.Envelope) {
	s := c.activeSession(env.CallID)
	if s == nil {
		return
	}
	cand, err := signal.DecodeCandidate(env)
	if err != nil {
		log.Warn().Err(err).Str("module", "call").Msg("bad candidate")
		return
	}
	if s.transport == nil {
		// Still ringing; park the candidate until accept builds the
		// transport.
		s.pending = append(s.pending, cand)
		return
	}
	if err := s.transport.AddRemoteCandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("call_id", string(s.id)).Msg("add candidate")
	}
}

func (c *Coordinator) handleReject(env signal.Envelope) {
	s := c.activeSession(env.CallID)
	if s == nil || s.state != domain.StateDialing {
		return
	}
	reject, err := signal.DecodeReject(env)
	if err != nil {
		reject.Reason = signal.ReasonDeclined
	}
	c.endLocked(s, domain.EndRejected, reject.Reason)
}

func (c *Coordinator) handleEnd(env signal.Envelope) {
	s := c.activeSession(env.CallID)
	if s == nil {
		return
	}
	c.endLocked(s, domain.EndRemoteHangup, "")
}

func (c *Coordinator) handleMediaToggle(env signal.Envelope) {
	s := c.activeSession(env.CallID)
	if s == nil {
		return
	}
	toggle, err := signal.DecodeMediaToggle(env)
	if err != nil {
		return
	}
	c.emit(PeerMediaChanged{Media: toggle.Media, Enabled: toggle.Enabled})
}

// activeSession returns the live session iff id matches; stale ids get
// nil. Callers hold c.mu.
func (c *Coordinator) activeSession(id domain.CallID) *session {
	s := c.sess
	if s == nil || s.id != id || s.state == domain.StateEnded {
		return nil
	}
	return s
}
