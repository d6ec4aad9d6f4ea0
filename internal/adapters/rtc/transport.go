// Package rtc implements the coordinator's media transport over
// pion/webrtc. Capture (microphone, camera) lives outside: the owner
// attaches local tracks, the coordinator drives negotiation and
// toggles.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Haven-Technologies-Inc/telecall/internal/call"
	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
	"github.com/Haven-Technologies-Inc/telecall/internal/signal"
)

// Factory builds one Transport per call attempt from the scoped
// credential issued for that attempt.
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) NewTransport(cred domain.RelayCredential, kind domain.CallKind) (call.MediaTransport, error) {
	return NewTransport(cred, kind)
}

// iceConfig maps the issued endpoint ladder onto pion's ICE servers.
// Only relay entries carry the scoped credential pair.
func iceConfig(cred domain.RelayCredential) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(cred.Endpoints))
	for _, ep := range cred.Endpoints {
		srv := webrtc.ICEServer{URLs: []string{ep.URI}}
		if ep.Relay {
			srv.Username = cred.Username
			srv.Credential = cred.Secret
		}
		servers = append(servers, srv)
	}
	return webrtc.Configuration{ICEServers: servers}
}

type Transport struct {
	pc *webrtc.PeerConnection

	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	mu          sync.RWMutex
	audioTrack  webrtc.TrackLocal
	videoTrack  webrtc.TrackLocal
	onCandidate func(signal.Candidate)
	onRemote    func(call.MediaHandle)
	onFailure   func(error)

	closeOnce sync.Once
}

func NewTransport(cred domain.RelayCredential, kind domain.CallKind) (*Transport, error) {
	pc, err := webrtc.NewPeerConnection(iceConfig(cred))
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	t := &Transport{pc: pc}

	audio, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}
	t.audioSender = audio.Sender()

	if kind == domain.CallVideo {
		video, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv})
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add video transceiver: %w", err)
		}
		t.videoSender = video.Sender()
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		t.mu.RLock()
		fn := t.onCandidate
		t.mu.RUnlock()
		if fn != nil {
			fn(signal.Candidate{
				Candidate:     ci.Candidate,
				SDPMid:        ci.SDPMid,
				SDPMLineIndex: ci.SDPMLineIndex,
			})
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).Msg("remote track")
		t.mu.RLock()
		fn := t.onRemote
		t.mu.RUnlock()
		if fn != nil {
			fn(track)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed {
			t.mu.RLock()
			fn := t.onFailure
			t.mu.RUnlock()
			if fn != nil {
				fn(fmt.Errorf("peer connection %s", s))
			}
		}
	})

	return t, nil
}

func (t *Transport) CreateOffer(ctx context.Context) (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

func (t *Transport) AnswerOffer(ctx context.Context, remoteSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: remoteSDP}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return answer.SDP, nil
}

func (t *Transport) AcceptAnswer(remoteSDP string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: remoteSDP}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (t *Transport) AddRemoteCandidate(c signal.Candidate) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

func (t *Transport) OnLocalCandidate(fn func(signal.Candidate)) {
	t.mu.Lock()
	t.onCandidate = fn
	t.mu.Unlock()
}

func (t *Transport) OnRemoteMedia(fn func(call.MediaHandle)) {
	t.mu.Lock()
	t.onRemote = fn
	t.mu.Unlock()
}

func (t *Transport) OnFailure(fn func(error)) {
	t.mu.Lock()
	t.onFailure = fn
	t.mu.Unlock()
}

// AttachAudioTrack hands the capture layer's audio track to the sender.
func (t *Transport) AttachAudioTrack(track webrtc.TrackLocal) error {
	t.mu.Lock()
	t.audioTrack = track
	t.mu.Unlock()
	return t.audioSender.ReplaceTrack(track)
}

// AttachVideoTrack hands the capture layer's video track to the sender.
func (t *Transport) AttachVideoTrack(track webrtc.TrackLocal) error {
	if t.videoSender == nil {
		return fmt.Errorf("audio-only session has no video sender")
	}
	t.mu.Lock()
	t.videoTrack = track
	t.mu.Unlock()
	return t.videoSender.ReplaceTrack(track)
}

// SetAudioEnabled swaps the sender between the attached track and
// nothing. Muted means nothing leaves the device.
func (t *Transport) SetAudioEnabled(enabled bool) {
	t.mu.RLock()
	track := t.audioTrack
	t.mu.RUnlock()
	t.toggle(t.audioSender, track, enabled)
}

func (t *Transport) SetVideoEnabled(enabled bool) {
	t.mu.RLock()
	track := t.videoTrack
	t.mu.RUnlock()
	t.toggle(t.videoSender, track, enabled)
}

func (t *Transport) toggle(sender *webrtc.RTPSender, track webrtc.TrackLocal, enabled bool) {
	if sender == nil {
		return
	}
	var next webrtc.TrackLocal
	if enabled {
		if track == nil {
			return
		}
		next = track
	}
	if err := sender.ReplaceTrack(next); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Bool("enabled", enabled).Msg("replace track")
	}
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.pc.Close()
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("close")
		}
	})
	return err
}
