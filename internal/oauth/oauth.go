// Package oauth runs the one-time consent flow that stores the YouTube upload credential.
package oauth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"github.com/zoomsync/backend/internal/auth"
	"github.com/zoomsync/backend/internal/models"
	"github.com/zoomsync/backend/internal/store"
	"github.com/zoomsync/backend/pkg/response"
)

// NewConfig returns the OAuth client configuration for uploading videos and managing playlists.
func NewConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
}

// Handler serves the consent URL and the redirect callback.
type Handler struct {
	cfg    *oauth2.Config
	creds  store.Credentials
	jwt    *auth.JWTService
	logger *zap.Logger
}

// NewHandler creates an OAuth handler.
func NewHandler(cfg *oauth2.Config, creds store.Credentials, jwt *auth.JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cfg: cfg, creds: creds, jwt: jwt, logger: logger}
}

// URL handles GET /admin/oauth/youtube/url.
func (h *Handler) URL(c *gin.Context) {
	state, err := h.jwt.GenerateState(models.ProviderYouTube)
	if err != nil {
		h.logger.Error("generate oauth state failed", zap.Error(err))
		response.Internal(c, "failed to generate state")
		return
	}
	// Offline access plus forced consent so Google returns a refresh token every time.
	url := h.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	response.OK(c, gin.H{"url": url})
}

// Callback handles GET /oauth/youtube/callback?code=&state=.
func (h *Handler) Callback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		response.BadRequest(c, "consent denied: "+e)
		return
	}
	code := c.Query("code")
	if code == "" {
		response.BadRequest(c, "code required")
		return
	}
	provider, err := h.jwt.ValidateState(c.Query("state"))
	if err != nil || provider != models.ProviderYouTube {
		response.Unauthorized(c, "invalid state")
		return
	}

	tok, err := h.cfg.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", zap.Error(err))
		response.BadRequest(c, "code exchange failed")
		return
	}
	if tok.RefreshToken == "" {
		h.logger.Warn("oauth exchange returned no refresh token")
	}
	if err := h.creds.Put(c.Request.Context(), models.CredentialFromToken(provider, tok)); err != nil {
		h.logger.Error("store credential failed", zap.Error(err))
		response.Internal(c, "failed to store credential")
		return
	}
	h.logger.Info("youtube credential stored", zap.Time("expiry", tok.Expiry))
	response.OK(c, gin.H{"provider": provider, "expiry": tok.Expiry})
}
