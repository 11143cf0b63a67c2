package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoomsync/backend/pkg/utils"
)

func TestJWTService_GenerateValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	tok, err := svc.Generate("ops", RoleAdmin)
	require.NoError(t, err)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = NewJWTService("other", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_Expiry(t *testing.T) {
	svc := NewJWTService("secret", 1)
	tok, err := svc.Generate("ops", RoleAdmin)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_State(t *testing.T) {
	svc := NewJWTService("secret", 1)
	state, err := svc.GenerateState("youtube")
	require.NoError(t, err)

	provider, err := svc.ValidateState(state)
	require.NoError(t, err)
	assert.Equal(t, "youtube", provider)

	access, err := svc.Generate("ops", RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateState(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.ValidateState(state)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHandler_Login(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := utils.HashPassword("hunter22")
	require.NoError(t, err)
	svc := NewJWTService("secret", 1)
	h := NewHandler("ops", hash, svc, nil)
	r := gin.New()
	r.POST("/auth/login", h.Login)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, post(`{`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(`{"username":"ops","password":"nope"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(`{"username":"root","password":"hunter22"}`).Code)

	w := post(`{"username":"ops","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	claims, err := svc.Validate(body.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
}
