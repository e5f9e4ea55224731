// Package privileged runs admin-only mutations. Every action goes through Run,
// which authorizes the caller against the current profile row before any
// elevated dependency is touched.
package privileged

import (
	"context"
	"errors"

	"github.com/yoockh/vaihub/internal/auth"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
)

// Caller is an authorized administrator.
type Caller struct {
	ID    string
	Email string
}

// Payload is a request body that can check itself without I/O.
type Payload interface {
	Validate() error
}

// Operation is the body of a privileged action. It runs only after the caller
// has been authorized and returns the success message.
type Operation[P Payload] func(ctx context.Context, caller Caller, p P) (string, error)

type Guard struct {
	verifier auth.Verifier
	roles    auth.RoleLookup
}

func NewGuard(verifier auth.Verifier, roles auth.RoleLookup) *Guard {
	return &Guard{verifier: verifier, roles: roles}
}

// Authorize resolves the caller strictly from the credential and requires a
// fresh profile row with role admin.
func (g *Guard) Authorize(ctx context.Context, credential string) (Caller, error) {
	const op = "Guard.Authorize"

	id, err := g.verifier.Verify(ctx, credential)
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Code == utils.CodeInternal {
		// misconfigured verifier, not a bad credential
		return Caller{}, utils.E(utils.CodeInternal, op, "failed to verify caller", err)
	}
	if err != nil {
		return Caller{}, utils.E(utils.CodeForbidden, op, "permission denied: invalid or missing credential", err)
	}

	role, err := g.roles.RoleOf(ctx, id.UserID)
	if errors.Is(err, utils.ErrNotFound) {
		return Caller{}, utils.E(utils.CodeForbidden, op, "permission denied: user is not an admin", err)
	}
	if err != nil {
		return Caller{}, utils.E(utils.CodeUnavailable, op, "failed to verify caller role", err)
	}
	if role != models.RoleAdmin {
		return Caller{}, utils.E(utils.CodeForbidden, op, "permission denied: user is not an admin", nil)
	}

	return Caller{ID: id.UserID, Email: id.Email}, nil
}

// Run is the only way to execute an Operation.
func Run[P Payload](ctx context.Context, g *Guard, credential string, p P, op Operation[P]) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	caller, err := g.Authorize(ctx, credential)
	if err != nil {
		return "", err
	}
	return op(ctx, caller, p)
}
