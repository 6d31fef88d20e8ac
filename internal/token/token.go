// Package token issues and verifies the short-lived capability tokens the
// panel hands to node agents.
//
// Every token is an HS256 JWT signed with the node's shared secret. It names
// one server (sub), one user, and the minimum permission set needed for one
// operation. Tokens are never stored: a refresh is a brand new token.
//
// All issuance helpers funnel through Issuer.Issue:
//
//	issuer, _ := token.NewIssuer(node.Secret,
//	    token.WithIssuer("https://panel.example.com"),
//	    token.WithAudience("https://node1.example.com:8080"),
//	)
//	tok, err := issuer.Issue(token.Request{
//	    Subject:     serverUUID,
//	    Actor:       userUUID,
//	    Permissions: []string{"file.read"},
//	    Operation:   token.OperationFile,
//	    FilePath:    "/server.properties",
//	})
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"evalgo.org/nodelink/models"
)

// DefaultLifetime is the lifetime of a token when none is configured.
const DefaultLifetime = 600 * time.Second

var (
	// ErrMissingSecret is returned when the issuer has no signing secret
	ErrMissingSecret = errors.New("token signing secret is not set")
	// ErrInvalidSignature is returned when the HMAC does not verify
	ErrInvalidSignature = errors.New("token signature is invalid")
	// ErrExpired is returned when the token is past its exp claim
	ErrExpired = errors.New("token has expired")
	// ErrInvalidToken is returned for malformed tokens and bad claims
	ErrInvalidToken = errors.New("invalid token")
)

// Operation is the "type" discriminator carried by operation-scoped tokens.
type Operation string

const (
	OperationGeneric       Operation = ""
	OperationServerControl Operation = "server"
	OperationWebsocket     Operation = "websocket"
	OperationBackup        Operation = "backup"
	OperationFile          Operation = "file"
	OperationDocker        Operation = "docker"
	OperationSystem        Operation = "system"
	OperationTransfer      Operation = "transfer"
)

// reserved claim names that Extra may not override.
var reserved = map[string]bool{
	"iss": true, "aud": true, "sub": true, "iat": true, "nbf": true, "exp": true, "jti": true,
	"permissions": true, "type": true, "operation": true, "server_uuid": true, "user_uuid": true,
	"file_path": true, "backup_uuid": true,
}

// Request describes one token to issue.
type Request struct {
	// Subject is the server UUID the token is scoped to
	Subject string

	// Actor is the user UUID acting on the server
	Actor string

	// Permissions is the capability set, signed as given after deduplication
	Permissions []string

	// Operation is the optional type discriminator
	Operation Operation

	// Action is the operation-specific verb (start, read, create, ...)
	Action string

	// FilePath scopes file tokens to one path
	FilePath string

	// BackupUUID scopes backup tokens to one backup
	BackupUUID string

	// Extra carries additional claims; reserved names are ignored
	Extra map[string]any
}

// Claims is the decoded payload of a capability token.
type Claims struct {
	Permissions []string `json:"permissions"`
	Type        string   `json:"type,omitempty"`
	Operation   string   `json:"operation,omitempty"`
	ServerUUID  string   `json:"server_uuid,omitempty"`
	UserUUID    string   `json:"user_uuid,omitempty"`
	FilePath    string   `json:"file_path,omitempty"`
	BackupUUID  string   `json:"backup_uuid,omitempty"`
	jwt.RegisteredClaims

	// Extra holds every claim not mapped to a field above
	Extra map[string]any `json:"-"`
}

// IssuedAtTime returns the iat claim as a time.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns the exp claim as a time.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issuer signs capability tokens for one node. It is safe for concurrent use;
// its secret is never mutated after construction.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	lifetime time.Duration
	now      func() time.Time
	observe  func(op Operation)
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithIssuer sets the iss claim, normally the panel URL.
func WithIssuer(iss string) Option {
	return func(i *Issuer) { i.issuer = iss }
}

// WithAudience sets the aud claim, normally the node URL.
func WithAudience(aud string) Option {
	return func(i *Issuer) { i.audience = aud }
}

// WithLifetime sets the token lifetime. Non-positive values are ignored.
func WithLifetime(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.lifetime = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithObserver registers a callback invoked after each successful issuance.
func WithObserver(fn func(op Operation)) Option {
	return func(i *Issuer) { i.observe = fn }
}

// NewIssuer creates an issuer signing with secret.
func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	i := &Issuer{
		secret:   []byte(secret),
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Lifetime returns the configured token lifetime.
func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// Issue signs a token for req. It is the single signing primitive behind
// every helper in this package.
func (i *Issuer) Issue(req Request) (string, error) {
	now := i.now().Truncate(time.Second)
	exp := now.Add(i.lifetime)

	perms := models.Dedupe(req.Permissions)

	claims := jwt.MapClaims{}
	for k, v := range req.Extra {
		if !reserved[k] {
			claims[k] = v
		}
	}

	claims["iss"] = i.issuer
	claims["aud"] = i.audience
	claims["sub"] = req.Subject
	claims["iat"] = now.Unix()
	claims["nbf"] = now.Unix()
	claims["exp"] = exp.Unix()
	claims["jti"] = uuid.NewString()
	claims["permissions"] = perms
	claims["server_uuid"] = req.Subject
	if req.Actor != "" {
		claims["user_uuid"] = req.Actor
	}
	if req.Operation != OperationGeneric {
		claims["type"] = string(req.Operation)
	}
	if req.Action != "" {
		claims["operation"] = req.Action
	}
	if req.FilePath != "" {
		claims["file_path"] = req.FilePath
	}
	if req.BackupUUID != "" {
		claims["backup_uuid"] = req.BackupUUID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if i.observe != nil {
		i.observe(req.Operation)
	}
	return signed, nil
}

// Decode verifies the signature and the time-based claims of tokenString.
func (i *Issuer) Decode(tokenString string) (*Claims, error) {
	return i.parse(tokenString, jwt.WithTimeFunc(i.now))
}

// IsExpired reports whether tokenString is past its exp claim. Tokens that
// fail signature verification are reported as expired so they are never
// reused.
func (i *Issuer) IsExpired(tokenString string) bool {
	exp, ok := i.ExpirationOf(tokenString)
	if !ok {
		return true
	}
	return !i.now().Before(exp)
}

// ExpirationOf returns the exp claim of a correctly signed token, including
// tokens that already expired.
func (i *Issuer) ExpirationOf(tokenString string) (time.Time, bool) {
	claims, err := i.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (i *Issuer) parse(tokenString string, extra ...jwt.ParserOption) (*Claims, error) {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}, extra...)

	mapClaims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, mapClaims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	return claimsFromMap(mapClaims)
}

func claimsFromMap(m jwt.MapClaims) (*Claims, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims := &Claims{}
	if err := json.Unmarshal(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	for k, v := range m {
		if reserved[k] {
			continue
		}
		if claims.Extra == nil {
			claims.Extra = make(map[string]any)
		}
		claims.Extra[k] = v
	}
	return claims, nil
}
