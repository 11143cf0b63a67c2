package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

const (
	// RoleAdmin is the only role allowed on the admin API.
	RoleAdmin = "admin"

	purposeAccess = "access"
	purposeState  = "oauth_state"
	stateTTL      = 10 * time.Minute
)

// Claims holds JWT claims for an operator session or an OAuth state value.
type Claims struct {
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
	now         func() time.Time
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
		now:         time.Now,
	}
}

// Generate creates an access token for the operator.
func (s *JWTService) Generate(username, role string) (string, error) {
	return s.sign(Claims{
		Role:    role,
		Purpose: purposeAccess,
		RegisteredClaims: s.registered(username, time.Duration(s.expireHours)*time.Hour),
	})
}

// Validate parses an access token, returning claims or ErrInvalidToken.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	return s.parse(tokenString, purposeAccess)
}

// GenerateState creates a short-lived signed value for the OAuth state parameter.
func (s *JWTService) GenerateState(provider string) (string, error) {
	return s.sign(Claims{
		Purpose:          purposeState,
		RegisteredClaims: s.registered(provider, stateTTL),
	})
}

// ValidateState checks an OAuth state value and returns the provider it was issued for.
func (s *JWTService) ValidateState(state string) (string, error) {
	claims, err := s.parse(state, purposeState)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *JWTService) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.New().String(),
	}
}

func (s *JWTService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parse(tokenString, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
