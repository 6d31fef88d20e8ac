// Package auth authenticates panel users on the nodelink HTTP API. Users
// present either a panel session JWT or an API key from the configuration.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"evalgo.org/nodelink/internal/config"
	"evalgo.org/nodelink/models"
)

var (
	// ErrInvalidToken is returned when a JWT token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a JWT token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidCredentials is returned when an API key matches no configured hash
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMissingSecret is returned when no session secret is configured
	ErrMissingSecret = errors.New("jwt secret is not configured")
)

const sessionIssuer = "nodelink"

// Claims represents panel session claims
type Claims struct {
	UserID string        `json:"user_id"`
	Roles  []models.Role `json:"roles"`
	jwt.RegisteredClaims
}

// JWTService issues and validates panel session tokens
type JWTService struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg *config.Config) *JWTService {
	exp := cfg.Security.JWTExpiration
	if exp <= 0 {
		exp = 24 * time.Hour
	}
	return &JWTService{
		secret:     []byte(cfg.Security.JWTSecret),
		expiration: exp,
		now:        time.Now,
	}
}

// GenerateToken generates a session token for a panel user
func (s *JWTService) GenerateToken(userID string, roles ...models.Role) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if len(roles) == 0 {
		roles = []models.Role{models.RoleUser}
	}

	now := s.now()
	claims := Claims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    sessionIssuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken validates a session token and returns the claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(sessionIssuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateAPIKey generates a random API key
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return "nl_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIKey hashes an API key for the security.api_keys config section
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// CompareAPIKey compares an API key with its hash
func CompareAPIKey(key, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}

// LookupAPIKey returns the claims of the user owning key among the
// configured keys. Keys without a role act as RoleUser.
func LookupAPIKey(keys []config.APIKeyConfig, key string) (*Claims, error) {
	if key == "" {
		return nil, ErrInvalidCredentials
	}
	for _, k := range keys {
		if CompareAPIKey(key, k.Hash) == nil {
			role := models.Role(k.Role)
			if role == "" {
				role = models.RoleUser
			}
			return &Claims{UserID: k.User, Roles: []models.Role{role}}, nil
		}
	}
	return nil, ErrInvalidCredentials
}
