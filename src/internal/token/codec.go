package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"codecollab-auth-svc/src/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const TypeAccess = "access"

// Claims represents JWT access token claims
type Claims struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed access tokens and generates opaque
// refresh tokens. Signature validity alone is never enough to trust a
// token; the session manager additionally checks the backing session.
type Codec struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewCodec(secret string, accessTTL time.Duration) *Codec {
	return &Codec{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// IssueAccessToken mints a signed, time-boxed access token bound to the
// given user and session. Claims stay minimal: everything else about the
// user is read fresh from the store on each request.
func (c *Codec) IssueAccessToken(userID, sessionID string) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.accessTTL)

	claims := &Claims{
		UserID:    userID,
		SessionID: sessionID,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// ParseAccessToken parses and validates an access token (signature and expiration).
func (c *Codec) ParseAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		//verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrTokenInvalid
	}

	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, models.ErrTokenInvalid
	}

	// Check token type (should be access token)
	if claims.TokenType != TypeAccess {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}

const refreshTokenBytes = 32 // 256 bits

// NewRefreshToken generates a cryptographically random opaque refresh token.
// It carries no claims and is only meaningful as a session store lookup key.
func NewRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
