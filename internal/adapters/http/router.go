package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Haven-Technologies-Inc/telecall/internal/config"
	"github.com/Haven-Technologies-Inc/telecall/internal/domain"
	"github.com/Haven-Technologies-Inc/telecall/internal/metrics"
	"github.com/Haven-Technologies-Inc/telecall/internal/relay"
	"github.com/Haven-Technologies-Inc/telecall/internal/turncred"
)

// endpointDTO is the wire shape of one traversal entry. STUN entries
// omit the credential fields.
type endpointDTO struct {
	URI        string `json:"uri"`
	Transport  string `json:"transport"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

type credentialsResponse struct {
	Endpoints  []endpointDTO `json:"endpoints"`
	TTLSeconds int           `json:"ttlSeconds"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, issuer *turncred.Issuer, relaySrv *relay.Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TelecallSessions", store))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "realm": issuer.Realm()})
	})

	api := r.Group("/api", AuthMiddleware(cfg.JWTSecret))

	api.GET("/turn-credentials", func(c *gin.Context) {
		handleCredentials(c, issuer)
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		relaySrv.HandleWS(ctx, c)
	})

	return r
}

func handleCredentials(c *gin.Context, issuer *turncred.Issuer) {
	uid := domain.UserID(c.GetString("user_id"))

	cred, err := issuer.Issue(uid)
	if err != nil {
		switch {
		case errors.Is(err, turncred.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		case errors.Is(err, turncred.ErrConfiguration):
			// Operator problem, never shown to the end user in detail.
			log.Error().Err(err).Str("module", "http").Msg("credential issuer misconfigured")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "relay unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "relay unavailable"})
		}
		return
	}

	metrics.CredentialsIssued.Inc()

	out := credentialsResponse{TTLSeconds: cred.TTLSeconds}
	for _, ep := range cred.Endpoints {
		dto := endpointDTO{URI: ep.URI, Transport: string(ep.Transport)}
		if ep.Relay {
			dto.Username = cred.Username
			dto.Credential = cred.Secret
		}
		out.Endpoints = append(out.Endpoints, dto)
	}
	c.JSON(http.StatusOK, out)
}
