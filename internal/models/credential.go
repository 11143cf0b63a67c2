package models

import (
	"time"

	"golang.org/x/oauth2"
)

// ProviderYouTube is the credential provider key for the video-hosting platform.
const ProviderYouTube = "youtube"

// Credential is the persisted OAuth token set for an upload provider.
type Credential struct {
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Token converts the credential into an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// CredentialFromToken builds a credential for provider from an exchanged token.
func CredentialFromToken(provider string, tok *oauth2.Token) *Credential {
	return &Credential{
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}
