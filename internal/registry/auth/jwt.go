package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "mcp-registry"

// JWTClaims are the registry's token claims. The subject is the user id.
type JWTClaims struct {
	jwt.RegisteredClaims
	PublisherID string `json:"publisher_id,omitempty"`
	Admin       bool   `json:"admin,omitempty"`
}

// JWTManager issues and verifies HS256 registry tokens.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager creates a manager signing with secret. Tokens expire after ttl.
func NewJWTManager(secret []byte, ttl time.Duration) *JWTManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secret: secret, issuer: defaultIssuer, ttl: ttl, now: time.Now}
}

// GenerateToken signs a token for s.
func (m *JWTManager) GenerateToken(s Session) (string, error) {
	if s.UserID == "" {
		return "", errors.New("user id is required")
	}
	now := m.now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		PublisherID: s.PublisherID,
		Admin:       s.Admin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// VerifyToken validates the signature, issuer and expiry of raw.
func (m *JWTManager) VerifyToken(raw string) (*Session, error) {
	var claims JWTClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &Session{UserID: claims.Subject, PublisherID: claims.PublisherID, Admin: claims.Admin}, nil
}
