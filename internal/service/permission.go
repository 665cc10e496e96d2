package service

import (
	"context"

	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/permissions"
)

// PermissionChecker authorizes actions against the actor's current role.
// The role is read from the database rather than the token so that a role
// change takes effect immediately.
type PermissionChecker struct {
	users database.UserRepository
}

func NewPermissionChecker(users database.UserRepository) *PermissionChecker {
	return &PermissionChecker{users: users}
}

// Actor loads the acting user.
func (p *PermissionChecker) Actor(ctx context.Context, userID int64) (*models.User, error) {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return nil, internalError()
	}
	if user == nil {
		return nil, Unauthorized("UNKNOWN_USER", "user no longer exists")
	}
	return user, nil
}

// Require loads the actor and checks that their role grants perm.
func (p *PermissionChecker) Require(ctx context.Context, userID int64, perm permissions.Permission) (*models.User, error) {
	user, err := p.Actor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !permissions.ForRole(user.Role).Has(perm) {
		return nil, Forbidden("MISSING_PERMISSIONS", "you do not have permission to perform this action")
	}
	return user, nil
}
