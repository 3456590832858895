// Package token mints short-lived signed credentials that grant a named
// participant join-access to a named room.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the validity window of issued tokens.
const DefaultTTL = 6 * time.Hour

// VideoGrant authorizes joining one room.
type VideoGrant struct {
	RoomJoin bool   `json:"roomJoin"`
	Room     string `json:"room"`
}

// Claims is the JWT payload: registered claims plus the participant's
// display name and the room grant.
type Claims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name"`
	Video VideoGrant `json:"video"`
}

// Issuer mints access tokens signed with the server-held API secret.
// Each call is independent; there is no revocation or refresh.
type Issuer struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

// NewIssuer creates an issuer. Both credentials are required.
func NewIssuer(apiKey, apiSecret string) (*Issuer, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("API key and secret are required")
	}
	return &Issuer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		ttl:       DefaultTTL,
	}, nil
}

// Mint produces a signed token granting identity join-access to room. The
// token is valid from now until now plus the issuer TTL.
func (i *Issuer) Mint(identity, room string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Name: identity,
		Video: VideoGrant{
			RoomJoin: true,
			Room:     room,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(i.apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
