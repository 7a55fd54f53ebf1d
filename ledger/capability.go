package ledger

import (
	"fmt"
	"time"
)

// Role is what a capability allows.
type Role string

const (
	// RoleViewer may read rankings and enter records.
	RoleViewer Role = "viewer"
	// RoleAdmin may additionally edit the roster, toggle locks, edit and
	// delete records and restore backups.
	RoleAdmin Role = "admin"
)

// Capability is proof of a successful authentication. It is handed to
// every administrative call explicitly; the ledger never looks up session
// state on its own.
type Capability struct {
	Subject   string
	Role      Role
	ExpiresAt time.Time
}

// Authorize checks that c is unexpired at now and grants want. Admin
// implies viewer.
func (c Capability) Authorize(want Role, now time.Time) error {
	if c.Role == "" {
		return fmt.Errorf("%w: no capability", ErrUnauthorized)
	}
	if !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt) {
		return fmt.Errorf("%w: capability expired at %s", ErrUnauthorized, c.ExpiresAt.Format(time.RFC3339))
	}
	if c.Role == want || c.Role == RoleAdmin {
		return nil
	}
	return fmt.Errorf("%w: role %s required", ErrUnauthorized, want)
}

// OperatorCapability is used by local tooling (the CLI) that already has
// direct access to the database file.
func OperatorCapability(ttl time.Duration) Capability {
	return Capability{Subject: "operator", Role: RoleAdmin, ExpiresAt: time.Now().Add(ttl)}
}
