// Package auth issues and validates the two short-lived JWTs used by the
// HTTP surface: a temp token gating room creation and a chat token bound to
// one specific room.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"voynich/domain"
)

const issuerName = "voynich"

// TempTokenTTL bounds the window between loading the client and creating a
// room. Deliberately short.
const TempTokenTTL = 5 * time.Minute

// ChatClaims binds a token to at most one room. An empty ChatID marks a temp
// token, valid for room creation only.
type ChatClaims struct {
	ChatID string `json:"chatId,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and checks tokens with a single HMAC secret.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	return &TokenIssuer{secret: []byte(secret)}, nil
}

// TempToken issues a short-lived token carrying no room binding.
func (i *TokenIssuer) TempToken() (string, error) {
	return i.sign(ChatClaims{
		RegisteredClaims: registeredClaims(TempTokenTTL),
	})
}

// ChatToken issues a token scoped to one room, living exactly as long as the
// room does.
func (i *TokenIssuer) ChatToken(roomID domain.RoomID, ttl time.Duration) (string, error) {
	return i.sign(ChatClaims{
		ChatID:           string(roomID),
		RegisteredClaims: registeredClaims(ttl),
	})
}

func (i *TokenIssuer) sign(claims ChatClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate checks the signature and expiration and returns the claims.
func (i *TokenIssuer) Validate(tokenString string) (*ChatClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChatClaims{}, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*ChatClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

func registeredClaims(ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuerName,
	}
}
