package auth

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zoomsync/backend/pkg/response"
	"github.com/zoomsync/backend/pkg/utils"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Handler handles the operator login endpoint. There is a single operator account
// configured through the environment.
type Handler struct {
	username     string
	passwordHash string
	jwt          *JWTService
	logger       *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(username, passwordHash string, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{username: username, passwordHash: passwordHash, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if h.passwordHash == "" {
		response.Forbidden(c, "login disabled")
		return
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passOK := utils.CheckPassword(req.Password, h.passwordHash)
	if !userOK || !passOK {
		h.logger.Warn("failed login", zap.String("username", req.Username), zap.String("ip", c.ClientIP()))
		response.Unauthorized(c, "invalid credentials")
		return
	}

	token, err := h.jwt.Generate(h.username, RoleAdmin)
	if err != nil {
		h.logger.Error("generate token failed", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, Role: RoleAdmin})
}
