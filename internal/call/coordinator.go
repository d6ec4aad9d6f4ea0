// Package call owns the state machine for at most one live call per
// local party: credential acquisition, offer/answer exchange over the
// relay, media-control toggles, ringing and dialing timeouts, teardown.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
	"github.com/Haven-Technologies-Inc/telecall/internal/signal"
)

var (
	// ErrBusy means the local party already has a non-ended session.
	ErrBusy = errors.New("already in a call")
	// ErrInvalidState means the intent is not legal in the current state.
	ErrInvalidState = errors.New("not legal in current call state")
	ErrBadCallKind  = errors.New("unknown call kind")
)

const (
	DefaultRingTimeout = 45 * time.Second
	DefaultDialTimeout = 30 * time.Second

	defaultEventBuffer = 32
)

type Options struct {
	RingTimeout time.Duration
	DialTimeout time.Duration
	EventBuffer int
}

func (o *Options) fill() {
	if o.RingTimeout <= 0 {
		o.RingTimeout = DefaultRingTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
}

// Coordinator serializes every transition for one local party behind a
// mutex; no two transitions interleave for the same session. One
// instance per active user session, dependencies injected.
type Coordinator struct {
	self   domain.User
	issuer CredentialIssuer
	relay  Signaler
	media  MediaFactory
	opts   Options

	now func() time.Time

	mu     sync.Mutex
	sess   *session
	events chan Event
}

func New(self domain.User, issuer CredentialIssuer, relay Signaler, media MediaFactory, opts Options) *Coordinator {
	opts.fill()
	return &Coordinator{
		self:   self,
		issuer: issuer,
		relay:  relay,
		media:  media,
		opts:   opts,
		now:    time.Now,
		events: make(chan Event, opts.EventBuffer),
	}
}

// Events is the outbound channel the UI drains. Delivery is
// non-blocking: a UI that stops draining loses events, never stalls a
// transition.
func (c *Coordinator) Events() <-chan Event { return c.events }

// State reports the current call state; Idle when no session exists.
func (c *Coordinator) State() domain.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return domain.StateIdle
	}
	return c.sess.state
}

// Snapshot returns a read-only view of the active session.
func (c *Coordinator) Snapshot() (domain.CallSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return domain.CallSnapshot{}, false
	}
	return c.sess.snapshot(), true
}

// StartCall dials peer. Fails with ErrBusy when a session is live; a
// finished but not yet acknowledged session is discarded implicitly,
// since placing a new call is itself an acknowledgment.
func (c *Coordinator) StartCall(ctx context.Context, peer domain.User, kind domain.CallKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrBadCallKind, kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil && c.sess.state != domain.StateEnded {
		return ErrBusy
	}
	c.sess = nil

	cred, err := c.issuer.Issue(c.self.ID)
	if err != nil {
		return fmt.Errorf("issue relay credential: %w", err)
	}

	s := &session{
		id:        domain.CallID(uuid.NewString()),
		peer:      peer,
		kind:      kind,
		role:      domain.RoleCaller,
		state:     domain.StateDialing,
		media:     domain.LocalMedia{AudioEnabled: true, VideoEnabled: kind == domain.CallVideo},
		cred:      &cred,
		createdAt: c.now(),
	}

	mt, err := c.media.NewTransport(cred, kind)
	if err != nil {
		return fmt.Errorf("media transport: %w", err)
	}
	s.transport = mt
	c.wireTransport(s)

	sdp, err := mt.CreateOffer(ctx)
	if err != nil {
		s.releaseMedia()
		return fmt.Errorf("create offer: %w", err)
	}

	env, err := signal.NewEnvelope(signal.KindOffer, s.id, peer.ID, signal.Offer{
		Kind:       kind,
		SDP:        sdp,
		CallerName: c.self.DisplayName,
	})
	if err != nil {
		s.releaseMedia()
		return err
	}
	if err := c.relay.Send(ctx, env); err != nil {
		s.releaseMedia()
		return fmt.Errorf("send offer: %w", err)
	}

	c.sess = s
	id := s.id
	s.dialTimer = time.AfterFunc(c.opts.DialTimeout, func() { c.onDialTimeout(id) })

	log.Info().Str("module", "call").Str("call_id", string(s.id)).
		Str("peer", string(peer.ID)).Str("kind", string(kind)).Msg("dialing")
	c.emit(StateChanged{State: domain.StateDialing})
	c.emit(LocalMediaReady{Handle: mt})
	return nil
}

// Accept answers the ringing call: acquire a credential, build the
// transport, send the answer, go Connected.
func (c *Coordinator) Accept(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.state != domain.StateRinging {
		return ErrInvalidState
	}
	s.stopRingTimer()

	cred, err := c.credentialLocked(s)
	if err != nil {
		c.endLocked(s, domain.EndError, err.Error())
		return fmt.Errorf("issue relay credential: %w", err)
	}

	mt, err := c.media.NewTransport(cred, s.kind)
	if err != nil {
		c.endLocked(s, domain.EndNegotiationFailed, err.Error())
		return fmt.Errorf("media transport: %w", err)
	}
	s.transport = mt
	c.wireTransport(s)
	c.emit(LocalMediaReady{Handle: mt})

	answer, err := mt.AnswerOffer(ctx, s.remoteSDP)
	if err != nil {
		c.endLocked(s, domain.EndNegotiationFailed, err.Error())
		return fmt.Errorf("answer offer: %w", err)
	}

	// Trickle candidates that beat the accept.
	for _, cand := range s.pending {
		if err := mt.AddRemoteCandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("call_id", string(s.id)).Msg("buffered candidate")
		}
	}
	s.pending = nil

	env, err := signal.NewEnvelope(signal.KindAnswer, s.id, s.peer.ID, signal.Answer{SDP: answer})
	if err != nil {
		c.endLocked(s, domain.EndError, err.Error())
		return err
	}
	if err := c.relay.Send(ctx, env); err != nil {
		c.endLocked(s, domain.EndError, err.Error())
		return fmt.Errorf("send answer: %w", err)
	}

	now := c.now()
	s.state = domain.StateConnected
	s.connectedAt = &now
	s.cred = nil
	log.Info().Str("module", "call").Str("call_id", string(s.id)).Msg("connected")
	c.emit(StateChanged{State: domain.StateConnected})
	return nil
}

// Reject declines the ringing call and tells the caller so.
func (c *Coordinator) Reject() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.state != domain.StateRinging {
		return ErrInvalidState
	}
	c.sendControl(signal.KindReject, s.id, s.peer.ID, signal.Reject{Reason: signal.ReasonDeclined})
	c.endLocked(s, domain.EndRejected, signal.ReasonDeclined)
	return nil
}

// Hangup tears the session down from any live state. Calling it on an
// ended or absent session is a no-op.
func (c *Coordinator) Hangup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.state == domain.StateEnded {
		return nil
	}
	switch s.state {
	case domain.StateRinging:
		// Hanging up a ringing call is a decline.
		c.sendControl(signal.KindReject, s.id, s.peer.ID, signal.Reject{Reason: signal.ReasonDeclined})
		c.endLocked(s, domain.EndRejected, signal.ReasonDeclined)
	default:
		c.sendControl(signal.KindEnd, s.id, s.peer.ID, signal.End{})
		c.endLocked(s, domain.EndLocalHangup, "")
	}
	return nil
}

// ToggleAudio mutates local media only; legal in any non-idle state.
func (c *Coordinator) ToggleAudio(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.state == domain.StateEnded {
		return ErrInvalidState
	}
	s.media.AudioEnabled = enabled
	if s.transport != nil {
		s.transport.SetAudioEnabled(enabled)
	}
	if s.state == domain.StateConnected {
		c.sendControl(signal.KindMedia, s.id, s.peer.ID, signal.MediaToggle{Media: domain.CallAudio, Enabled: enabled})
	}
	return nil
}

// ToggleVideo is legal only once Connected.
func (c *Coordinator) ToggleVideo(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.state != domain.StateConnected {
		return ErrInvalidState
	}
	s.media.VideoEnabled = enabled
	if s.transport != nil {
		s.transport.SetVideoEnabled(enabled)
	}
	c.sendControl(signal.KindMedia, s.id, s.peer.ID, signal.MediaToggle{Media: domain.CallVideo, Enabled: enabled})
	return nil
}

// Acknowledge discards an ended session; the coordinator is Idle after.
func (c *Coordinator) Acknowledge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil || c.sess.state != domain.StateEnded {
		return
	}
	c.sess = nil
	c.emit(StateChanged{State: domain.StateIdle})
}

// credentialLocked returns the session credential, re-issuing when the
// held one has outlived its TTL.
func (c *Coordinator) credentialLocked(s *session) (domain.RelayCredential, error) {
	if s.cred != nil && !s.cred.Expired(c.now()) {
		return *s.cred, nil
	}
	cred, err := c.issuer.Issue(c.self.ID)
	if err != nil {
		return domain.RelayCredential{}, err
	}
	s.cred = &cred
	return cred, nil
}

// endLocked is the single Ended transition. It cancels both timers and
// releases media as part of the transition itself, and the end reason
// is set exactly once.
func (c *Coordinator) endLocked(s *session, reason domain.EndReason, detail string) {
	if s.state == domain.StateEnded {
		return
	}
	s.stopDialTimer()
	s.stopRingTimer()
	s.state = domain.StateEnding
	s.releaseMedia()
	s.cred = nil
	if s.endReason == domain.EndNone {
		s.endReason = reason
	}
	now := c.now()
	s.endedAt = &now
	s.state = domain.StateEnded
	log.Info().Str("module", "call").Str("call_id", string(s.id)).
		Str("reason", string(s.endReason)).Msg("call ended")
	c.emit(StateChanged{State: domain.StateEnded, Reason: s.endReason, Detail: detail})
}

// wireTransport hooks transport callbacks back into the coordinator.
// Callbacks carry the session id so a late callback against a discarded
// session is ignored.
func (c *Coordinator) wireTransport(s *session) {
	id := s.id
	peer := s.peer.ID
	s.transport.OnLocalCandidate(func(cand signal.Candidate) {
		c.relayLocalCandidate(id, peer, cand)
	})
	s.transport.OnFailure(func(err error) {
		c.onTransportFailure(id, err)
	})
	s.transport.OnRemoteMedia(func(h MediaHandle) {
		c.onRemoteMedia(id, h)
	})
}

func (c *Coordinator) relayLocalCandidate(id domain.CallID, peer domain.UserID, cand signal.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	if s == nil || s.id != id || s.state == domain.StateEnded {
		return
	}
	c.sendControl(signal.KindCandidate, id, peer, cand)
}

func (c *Coordinator) onTransportFailure(id domain.CallID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	if s == nil || s.id != id || s.state == domain.StateEnded {
		return
	}
	log.Warn().Err(err).Str("module", "call").Str("call_id", string(id)).Msg("transport failure")
	c.endLocked(s, domain.EndNegotiationFailed, err.Error())
}

func (c *Coordinator) onRemoteMedia(id domain.CallID, h MediaHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	if s == nil || s.id != id || s.state == domain.StateEnded {
		return
	}
	c.emit(RemoteMediaReady{Handle: h})
}

func (c *Coordinator) onDialTimeout(id domain.CallID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	if s == nil || s.id != id || s.state != domain.StateDialing {
		return
	}
	c.endLocked(s, domain.EndTimedOut, "no answer")
}

func (c *Coordinator) onRingTimeout(id domain.CallID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	if s == nil || s.id != id || s.state != domain.StateRinging {
		return
	}
	c.endLocked(s, domain.EndTimedOut, "not answered")
}

// sendControl is fire-and-forget: a lost control message only ever
// shows up as a timeout on the far side.
func (c *Coordinator) sendControl(kind signal.Kind, id domain.CallID, to domain.UserID, payload any) {
	env, err := signal.NewEnvelope(kind, id, to, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "call").Str("kind", string(kind)).Msg("build envelope")
		return
	}
	if err := c.relay.Send(context.Background(), env); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("kind", string(kind)).
			Str("call_id", string(id)).Msg("send control")
		c.emit(CallError{Kind: "signal", Detail: err.Error()})
	}
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("module", "call").Type("event", ev).Msg("event dropped, UI not draining")
	}
}
