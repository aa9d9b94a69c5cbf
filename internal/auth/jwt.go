// Package auth validates bearer tokens and turns them into caller identities.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only token type accepted by the API.
const TokenTypeAccess = "access"

// AccessTokenExpiry is the lifetime of tokens issued by GenerateAccessToken.
const AccessTokenExpiry = 15 * time.Minute

// Default leeway for token validation.
const DefaultLeeway = 30 * time.Second

var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptyUserID is returned when userID is empty.
	ErrEmptyUserID = errors.New("userID cannot be empty")
)

// Claims are the JWT claims recall understands. The subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	// OrganizationIDs lists the organizations whose shared memories the
	// caller may read.
	OrganizationIDs []string `json:"orgs,omitempty"`
	Type            string   `json:"typ"`
}

// Identity is the authenticated caller.
type Identity struct {
	UserID          string
	OrganizationIDs []string
}

// Identity extracts the caller identity from validated claims.
func (c *Claims) Identity() Identity {
	return Identity{
		UserID:          c.Subject,
		OrganizationIDs: append([]string(nil), c.OrganizationIDs...),
	}
}

// JWTService signs and validates HS256 tokens.
// Supports dual-key rotation: tokens are signed with currentSecret,
// but can be validated with either currentSecret or previousSecret.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
	now            func() time.Time
}

// NewJWTService creates a JWTService. Set previousSecret to empty string if
// no rotation is in progress.
func NewJWTService(currentSecret, previousSecret string) *JWTService {
	svc := &JWTService{
		currentSecret: []byte(currentSecret),
		leeway:        DefaultLeeway,
		now:           time.Now,
	}
	if previousSecret != "" {
		svc.previousSecret = []byte(previousSecret)
	}
	return svc
}

// WithLeeway returns a copy of s with a custom validation leeway.
func (s *JWTService) WithLeeway(leeway time.Duration) *JWTService {
	cp := *s
	cp.leeway = leeway
	return &cp
}

// GenerateAccessToken creates an access token for userID and its organizations.
func (s *JWTService) GenerateAccessToken(userID string, organizationIDs []string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenExpiry)),
		},
		OrganizationIDs: organizationIDs,
		Type:            TokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.currentSecret)
}

// ValidateToken parses and validates an access token, returning its claims.
// It tries currentSecret first, then previousSecret if available.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, s.currentSecret)
	if err != nil && s.previousSecret != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		claims, err = s.parse(tokenString, s.previousSecret)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims.Type != TokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithLeeway(s.leeway), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
