// Package relay moves call-control envelopes between exactly two
// parties. Delivery is fire-and-forget and at-most-once: a message for
// an offline peer is dropped, and the sender only ever learns about it
// through its own ringing or dialing timeout.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
	"github.com/Haven-Technologies-Inc/telecall/internal/metrics"
	"github.com/Haven-Technologies-Inc/telecall/internal/signal"
)

const writeWait = 5 * time.Second

type Server struct {
	reg        *registry
	readLimit  int64
	pingPeriod time.Duration
	upgrader   websocket.Upgrader
}

func NewServer(readLimit int64, pingPeriod time.Duration) *Server {
	return &Server{
		reg:        newRegistry(),
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an authenticated request into the user's signaling
// channel. The auth middleware must have stored "user_id" already.
func (s *Server) HandleWS(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.GetString("user_id"))
	if uid == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "relay").Str("user", string(uid)).Msg("signaling channel open")

	cn := newConn(ws)
	if prev := s.reg.bind(uid, cn); prev != nil {
		prev.close()
	} else {
		metrics.WSConnections.Inc()
	}

	ctx, cancel := context.WithCancel(ctx)
	go s.writePump(ctx, cn)
	go func() {
		defer cancel()
		s.readPump(ctx, uid, cn)
	}()
}

func (s *Server) readPump(ctx context.Context, uid domain.UserID, cn *conn) {
	defer func() {
		cn.close()
		if s.reg.unbind(uid, cn) {
			metrics.WSConnections.Dec()
		}
		log.Info().Str("module", "relay").Str("user", string(uid)).Msg("signaling channel closed")
	}()

	cn.ws.SetReadLimit(s.readLimit)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := cn.ws.ReadMessage()
			if err != nil {
				return
			}
			s.route(uid, data)
		}
	}
}

// route forwards one envelope to its addressee. The sender identity is
// stamped server-side; whatever the client put in "from" is discarded.
func (s *Server) route(from domain.UserID, data []byte) {
	var env signal.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("user", string(from)).Msg("bad envelope")
		metrics.SignalDropped.WithLabelValues("bad_message").Inc()
		return
	}
	env.From = from

	target, ok := s.reg.get(env.To)
	if !ok {
		metrics.SignalDropped.WithLabelValues("offline").Inc()
		log.Debug().Str("module", "relay").Str("to", string(env.To)).
			Str("kind", string(env.Kind)).Msg("target offline, dropping")
		return
	}

	out, err := json.Marshal(env)
	if err != nil {
		metrics.SignalDropped.WithLabelValues("bad_message").Inc()
		return
	}
	if err := target.trySend(out); err != nil {
		metrics.SignalDropped.WithLabelValues("backpressure").Inc()
		log.Warn().Err(err).Str("module", "relay").Str("to", string(env.To)).Msg("send")
		return
	}
	metrics.SignalMessages.WithLabelValues(string(env.Kind)).Inc()
}

func (s *Server) writePump(ctx context.Context, cn *conn) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-cn.send:
			if !ok {
				return
			}
			if err := cn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := cn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump write")
				return
			}
		}
	}
}
