package call

import (
	"context"
	"sync"
	"testing"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
	"github.com/Haven-Technologies-Inc/telecall/internal/signal"
)

// loopback is an in-memory relay between two coordinators. In immediate
// mode envelopes are delivered synchronously; in queued mode they are
// held until flush, which lets tests replay any arrival order.
type loopback struct {
	mu     sync.Mutex
	peers  map[domain.UserID]*Coordinator
	queue  []signal.Envelope
	queued bool
}

func newLoopback(queued bool) *loopback {
	return &loopback{peers: make(map[domain.UserID]*Coordinator), queued: queued}
}

func (l *loopback) register(id domain.UserID, c *Coordinator) { l.peers[id] = c }

type loopbackEnd struct {
	relay *loopback
	from  domain.UserID
}

func (l *loopback) endpoint(from domain.UserID) *loopbackEnd {
	return &loopbackEnd{relay: l, from: from}
}

func (e *loopbackEnd) Send(_ context.Context, env signal.Envelope) error {
	env.From = e.from
	l := e.relay
	l.mu.Lock()
	if l.queued {
		l.queue = append(l.queue, env)
		l.mu.Unlock()
		return nil
	}
	target := l.peers[env.To]
	l.mu.Unlock()
	if target != nil {
		target.HandleEnvelope(env)
	}
	return nil
}

// flush delivers queued envelopes in the given order (indexes into the
// queue at the time of the call).
func (l *loopback) flush(order ...int) {
	l.mu.Lock()
	queue := l.queue
	l.queue = nil
	l.mu.Unlock()
	for _, i := range order {
		env := queue[i]
		l.mu.Lock()
		target := l.peers[env.To]
		l.mu.Unlock()
		if target != nil {
			target.HandleEnvelope(env)
		}
	}
}

func newLoopbackPair(t *testing.T, queued bool) (a, b *Coordinator, l *loopback, fa, fb *fakeFactory) {
	t.Helper()
	l = newLoopback(queued)
	fa, fb = &fakeFactory{}, &fakeFactory{}
	a = New(alice, &fakeIssuer{}, l.endpoint(alice.ID), fa, Options{})
	b = New(bob, &fakeIssuer{}, l.endpoint(bob.ID), fb, Options{})
	l.register(alice.ID, a)
	l.register(bob.ID, b)
	return a, b, l, fa, fb
}

func TestEndToEndVideoCall(t *testing.T) {
	a, b, _, fa, fb := newLoopbackPair(t, false)

	// Alice dials; Bob rings within one message hop.
	if err := a.StartCall(context.Background(), bob, domain.CallVideo); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if got := b.State(); got != domain.StateRinging {
		t.Fatalf("bob state = %s, want ringing", got)
	}
	in := expectEvent[IncomingCall](t, b)
	if in.PeerID != alice.ID || in.Kind != domain.CallVideo {
		t.Fatalf("incoming call = %+v", in)
	}

	// Bob accepts; both sides connect with the same session id.
	if err := b.Accept(context.Background()); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got := a.State(); got != domain.StateConnected {
		t.Fatalf("alice state = %s, want connected", got)
	}
	if got := b.State(); got != domain.StateConnected {
		t.Fatalf("bob state = %s, want connected", got)
	}
	snapA, _ := a.Snapshot()
	snapB, _ := b.Snapshot()
	if snapA.ID != snapB.ID {
		t.Fatalf("session ids diverge: %s vs %s", snapA.ID, snapB.ID)
	}
	if snapA.Role != domain.RoleCaller || snapB.Role != domain.RoleCallee {
		t.Errorf("roles = %s/%s, want caller/callee", snapA.Role, snapB.Role)
	}

	// Trickle a candidate from Alice's transport to Bob's.
	fa.last().onCandidate(signal.Candidate{Candidate: "candidate:1 host"})
	if got := fb.last().remoteCandidates(); len(got) != 1 {
		t.Fatalf("bob received %d candidates, want 1", len(got))
	}

	// Alice hangs up; both end with their respective reasons and both
	// release media exactly once.
	if err := a.Hangup(); err != nil {
		t.Fatalf("Hangup: %v", err)
	}
	endA, _ := a.Snapshot()
	endB, _ := b.Snapshot()
	if endA.EndReason != domain.EndLocalHangup {
		t.Errorf("alice end reason = %s, want local_hangup", endA.EndReason)
	}
	if endB.EndReason != domain.EndRemoteHangup {
		t.Errorf("bob end reason = %s, want remote_hangup", endB.EndReason)
	}
	if fa.last().closeCount() != 1 || fb.last().closeCount() != 1 {
		t.Errorf("media released %d/%d times, want 1/1", fa.last().closeCount(), fb.last().closeCount())
	}
}

func TestCalleeRingingCandidatesBufferedUntilAccept(t *testing.T) {
	a, b, _, fa, fb := newLoopbackPair(t, false)

	if err := a.StartCall(context.Background(), bob, domain.CallAudio); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	// Trickle from the caller while the callee is still ringing; no
	// transport exists on Bob's side yet.
	fa.last().onCandidate(signal.Candidate{Candidate: "candidate:early"})
	if fb.last() != nil {
		t.Fatal("callee built a transport before accept")
	}

	if err := b.Accept(context.Background()); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	got := fb.last().remoteCandidates()
	if len(got) != 1 || got[0].Candidate != "candidate:early" {
		t.Fatalf("buffered candidate not flushed on accept: %+v", got)
	}
}

func TestSimultaneousDialIsDeterministic(t *testing.T) {
	// Both parties dial each other before either offer is delivered;
	// replay both arrival orders and expect the same outcome: the
	// lexicographically smaller identity ("alice") keeps the caller
	// role, "bob" folds into ringing against alice's offer.
	for name, order := range map[string][]int{
		"alice offer first": {0, 1},
		"bob offer first":   {1, 0},
	} {
		t.Run(name, func(t *testing.T) {
			a, b, l, _, _ := newLoopbackPair(t, true)

			if err := a.StartCall(context.Background(), bob, domain.CallAudio); err != nil {
				t.Fatalf("alice StartCall: %v", err)
			}
			if err := b.StartCall(context.Background(), alice, domain.CallAudio); err != nil {
				t.Fatalf("bob StartCall: %v", err)
			}
			// queue[0] is alice's offer, queue[1] is bob's.
			l.flush(order...)

			if got := a.State(); got != domain.StateDialing {
				t.Errorf("alice state = %s, want dialing", got)
			}
			if got := b.State(); got != domain.StateRinging {
				t.Errorf("bob state = %s, want ringing", got)
			}

			snapA, _ := a.Snapshot()
			snapB, _ := b.Snapshot()
			if snapA.ID != snapB.ID {
				t.Errorf("bob rings against %s, want alice's offer %s", snapB.ID, snapA.ID)
			}
			if snapB.Role != domain.RoleCallee {
				t.Errorf("bob role = %s, want callee", snapB.Role)
			}
		})
	}
}
