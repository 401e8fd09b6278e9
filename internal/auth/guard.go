// Package auth implements the privileged-caller check used by minting and the
// custody withdrawal paths.
package auth

import "github.com/jrivoire69/CS-blockchain/internal/domain"

// Guard restricts privileged operations to the single owner account configured
// at deployment. Settlement triggering is deliberately not guarded so anyone
// can run the sweep.
type Guard struct {
	owner string
}

// NewGuard creates a Guard for the given owner account identifier.
func NewGuard(owner string) *Guard {
	return &Guard{owner: owner}
}

// Owner returns the privileged account identifier.
func (g *Guard) Owner() string {
	return g.owner
}

// RequireOwner returns domain.ErrUnauthorized unless caller is the privileged
// account.
func (g *Guard) RequireOwner(caller string) error {
	if caller == "" || caller != g.owner {
		return domain.ErrUnauthorized
	}
	return nil
}
