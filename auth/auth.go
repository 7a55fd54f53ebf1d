/*
Package auth turns shared secrets into ledger capabilities.

PURPOSE:
  The service has no user accounts. Two shared secrets gate it:
    - admin PIN:      grants RoleAdmin
    - view password:  grants RoleViewer (optional; when unset, reads are open)
  A successful login yields a ledger.Capability, carried on the wire as an
  HS256 JWT in the Authorization header.

SEE ALSO:
  - ledger/capability.go: Authorize
  - api/middleware.go: Bearer parsing
*/
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/warp/point-ledger/ledger"
)

const issuer = "point-ledger"

// Claims is the JWT body.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds the secrets. An empty Secret generates a random signing key,
// so tokens do not survive a restart.
type Config struct {
	AdminPIN     string
	ViewPassword string
	Secret       string
	TTL          time.Duration
}

// Manager issues and verifies capability tokens.
type Manager struct {
	adminPIN     string
	viewPassword string
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// Token is a signed capability.
type Token struct {
	Token      string
	Capability ledger.Capability
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AdminPIN == "" {
		return nil, errors.New("admin PIN must not be empty")
	}
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{
		adminPIN:     cfg.AdminPIN,
		viewPassword: cfg.ViewPassword,
		secret:       secret,
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// WithClock overrides time.Now for issuing and verifying.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// ViewerGate reports whether reads require a viewer token.
func (m *Manager) ViewerGate() bool { return m.viewPassword != "" }

// =============================================================================
// LOGIN
// =============================================================================

// LoginAdmin exchanges the admin PIN for an admin token.
func (m *Manager) LoginAdmin(pin string) (Token, error) {
	if !secretEqual(pin, m.adminPIN) {
		return Token{}, fmt.Errorf("%w: wrong PIN", ledger.ErrUnauthorized)
	}
	return m.Issue("admin", ledger.RoleAdmin)
}

// LoginViewer exchanges the view password for a viewer token. Without a
// configured password the gate is open and any input succeeds.
func (m *Manager) LoginViewer(password string) (Token, error) {
	if m.ViewerGate() && !secretEqual(password, m.viewPassword) {
		return Token{}, fmt.Errorf("%w: wrong password", ledger.ErrUnauthorized)
	}
	return m.Issue("viewer", ledger.RoleViewer)
}

// Anonymous is the capability of a request without a token. It is empty
// (authorizes nothing) while the viewer gate is on.
func (m *Manager) Anonymous() ledger.Capability {
	if m.ViewerGate() {
		return ledger.Capability{}
	}
	return ledger.Capability{Subject: "anonymous", Role: ledger.RoleViewer}
}

func secretEqual(given, want string) bool {
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

// =============================================================================
// TOKENS
// =============================================================================

// Issue signs a capability for subject and role.
func (m *Manager) Issue(subject string, role ledger.Role) (Token, error) {
	now := m.now()
	capability := ledger.Capability{
		Subject:   subject,
		Role:      role,
		ExpiresAt: now.Add(m.ttl).Truncate(time.Second),
	}
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(capability.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Token{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return Token{Token: signed, Capability: capability}, nil
}

// Parse verifies a token and returns its capability. Every failure wraps
// ledger.ErrUnauthorized.
func (m *Manager) Parse(token string) (ledger.Capability, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ledger.Capability{}, fmt.Errorf("%w: token expired", ledger.ErrUnauthorized)
		}
		return ledger.Capability{}, fmt.Errorf("%w: invalid token", ledger.ErrUnauthorized)
	}
	if !parsed.Valid {
		return ledger.Capability{}, fmt.Errorf("%w: invalid token", ledger.ErrUnauthorized)
	}

	role := ledger.Role(claims.Role)
	if role != ledger.RoleAdmin && role != ledger.RoleViewer {
		return ledger.Capability{}, fmt.Errorf("%w: unknown role %q", ledger.ErrUnauthorized, claims.Role)
	}
	return ledger.Capability{
		Subject:   claims.Subject,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
