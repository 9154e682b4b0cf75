// Package jwt mints the short-lived bearer tokens the processor adapters
// present on outbound calls. Each processor sandbox accepts an HS256 token
// built from the configured shared credential.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// OutboundClaims identify the calling merchant account to the processor.
type OutboundClaims struct {
	Processor string `json:"processor"`
	MID       string `json:"mid"`
	jwt.RegisteredClaims
}

// Minter signs outbound bearer tokens for one processor credential.
type Minter struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewMinter creates a Minter. expiry should stay short; tokens are minted
// per call, not cached.
func NewMinter(secret string, expiry time.Duration, issuer string) *Minter {
	return &Minter{secret: []byte(secret), expiry: expiry, issuer: issuer}
}

// Mint signs a token identifying (processor, mid), valid for the
// configured expiry from now.
func (m *Minter) Mint(processor, mid string, now time.Time) (string, error) {
	claims := OutboundClaims{
		Processor: processor,
		MID:       mid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses and validates a token minted by this Minter. The adapters
// only mint; Verify is exercised by this package's tests.
func (m *Minter) Verify(tokenString string) (*OutboundClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OutboundClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*OutboundClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
