// Package auth provides session tokens, password hashing and the session
// middleware for the EventHub API.
//
// SESSION FLOW OVERVIEW:
//  1. POST /users/login verifies username/email + password
//  2. Server issues an access token (short-lived) and a refresh token
//     (long-lived), stores the refresh token on the user row, and sets both
//     as HttpOnly cookies while also returning them in the body
//  3. Protected routes read the access token from the accessToken cookie or
//     an "Authorization: Bearer <token>" header (see RequireUser)
//  4. POST /users/refresh-token trades a valid refresh token that matches
//     the stored one for a fresh pair (rotation)
//  5. POST /users/logout clears the stored refresh token and both cookies
//
// Access and refresh tokens are signed with DIFFERENT secrets, so a refresh
// token can never be presented as an access token and vice versa.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const issuer = "eventhub"

var (
	// ErrInvalidToken matches every rejected token. Expiry is the one reason
	// callers can tell apart, through ErrTokenExpired.
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrInvalidToken)
)

// AccessClaims is the verified payload of an access token.
//
// Username, Email and Fullname ride along so handlers can log who made a
// request without a store lookup. The session middleware still re-fetches
// the user, so these are informational only.
type AccessClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
	jwt.RegisteredClaims
}

// refreshClaims carries only the subject. The token string itself is what
// gets compared against the stored copy.
type refreshClaims struct {
	jwt.RegisteredClaims
}

// TokenService handles JWT creation and validation for both token kinds.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenService creates a TokenService.
//
// Both secrets must be at least 16 characters and must differ from each
// other. Example: ACCESS_TOKEN_SECRET=$(openssl rand -hex 32)
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(accessSecret) < 16 || len(refreshSecret) < 16 {
		return nil, errors.New("auth: token secrets must be at least 16 characters")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

// AccessTTL is the lifetime applied to new access tokens; the handler
// layer uses it as the cookie Max-Age.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// registered builds the standard claims. Every token gets a unique jti so two
// tokens issued for the same user within the same second still differ, which
// refresh rotation relies on.
func (s *TokenService) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		ID:        xid.New().String(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    issuer,
	}
}

// IssueAccessToken signs an access token for the given identity.
func (s *TokenService) IssueAccessToken(userID, username, email, fullname string) (string, error) {
	c := AccessClaims{
		Username:         username,
		Email:            email,
		Fullname:         fullname,
		RegisteredClaims: s.registered(userID, s.accessTTL),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.accessSecret)
	if err != nil {
		return "", fmt.Errorf("auth: signing access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken signs a refresh token carrying only the user id.
func (s *TokenService) IssueRefreshToken(userID string) (string, error) {
	c := refreshClaims{RegisteredClaims: s.registered(userID, s.refreshTTL)}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("auth: signing refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken parses and verifies an access token.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid under the ACCESS secret
//   - Algorithm is HS256 (blocks "none" and algorithm confusion)
//   - Issuer matches
//   - Token is not expired, and carries an expiry at all
func (s *TokenService) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	c := &AccessClaims{}
	if err := s.parse(tokenStr, c, s.accessSecret); err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyRefreshToken parses a refresh token and returns the user id in it.
func (s *TokenService) VerifyRefreshToken(tokenStr string) (string, error) {
	c := &refreshClaims{}
	if err := s.parse(tokenStr, c, s.refreshSecret); err != nil {
		return "", err
	}
	return c.Subject, nil
}

type subjectClaims interface {
	jwt.Claims
	GetSubject() (string, error)
}

func (s *TokenService) parse(tokenStr string, c subjectClaims, secret []byte) error {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}

	if sub, _ := c.GetSubject(); sub == "" {
		return fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	return nil
}
