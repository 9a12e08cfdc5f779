// Package auth issues and verifies the bearer tokens handed out by the
// auth service and checked by every other service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
)

// Claims is the JWT payload.
type Claims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity rebuilds the identity the token was issued for.
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		ID:       c.UserID,
		Email:    c.Email,
		Role:     models.NormalizeRole(c.Role),
		Username: c.Username,
	}
}

// Tokens signs and parses HS256 tokens with a fixed secret and lifetime.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a new token for identity and returns it as a Session along
// with the claims it carries.
func (t *Tokens) Issue(identity models.Identity) (*models.Session, *Claims, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		UserID:   identity.ID,
		Email:    identity.Email,
		Role:     models.NormalizeRole(identity.Role),
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate token: %w", err)
	}
	identity.Role = claims.Role
	return &models.Session{
		AccessToken: signed,
		ExpiresAt:   expiresAt.UTC(),
		Identity:    identity,
	}, &claims, nil
}

// Parse validates signature and expiry and returns the claims.
func (t *Tokens) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, errs.ErrInvalidToken
	}
	return claims, nil
}

// Session rebuilds the session a verified token belongs to.
func (c *Claims) Session(token string) *models.Session {
	session := &models.Session{AccessToken: token, Identity: c.Identity()}
	if c.ExpiresAt != nil {
		session.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return session
}

// Verifier checks a token's signature and that it has not been signed out.
type Verifier struct {
	tokens  *Tokens
	revoked *RevocationList
}

func NewVerifier(tokens *Tokens, revoked *RevocationList) *Verifier {
	return &Verifier{tokens: tokens, revoked: revoked}
}

func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := v.tokens.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if v.revoked != nil {
		revoked, err := v.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check revocation: %w", err)
		}
		if revoked {
			return nil, errs.ErrInvalidToken
		}
	}
	return claims, nil
}
