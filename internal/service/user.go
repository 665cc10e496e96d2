package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/permissions"
)

// UserService handles user profile and role administration.
type UserService struct {
	users database.UserRepository
	perms *PermissionChecker
}

// NewUserService creates a UserService.
func NewUserService(users database.UserRepository, perms *PermissionChecker) *UserService {
	return &UserService{users: users, perms: perms}
}

// GetByID returns the user with the given ID.
func (s *UserService) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, internalError()
	}
	if user == nil {
		return nil, NotFound("NOT_FOUND", "user not found")
	}
	return user, nil
}

// UpdateProfile updates the authenticated user's display name and/or the
// device token used for push notifications. An empty device token clears it.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, displayName, deviceToken *string) (*models.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if displayName != nil {
		name := strings.TrimSpace(*displayName)
		if name == "" || utf8.RuneCountInString(name) > 64 {
			return nil, BadRequest("INVALID_DISPLAY_NAME", "display name must be 1-64 characters")
		}
		user.DisplayName = name
	}
	if deviceToken != nil {
		if *deviceToken == "" {
			user.DeviceToken = nil
		} else {
			token := *deviceToken
			user.DeviceToken = &token
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, internalError()
	}
	return user, nil
}

// SetRole changes another user's role. Only roles with PermManageUsers may
// do this, and nobody may change their own role.
func (s *UserService) SetRole(ctx context.Context, actorID, targetID int64, role models.Role) (*models.User, error) {
	if _, err := s.perms.Require(ctx, actorID, permissions.PermManageUsers); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, BadRequest("INVALID_ROLE", "role must be one of admin, super_leader, leader, member")
	}
	if actorID == targetID {
		return nil, RoleHierarchyError("you cannot change your own role")
	}

	target, err := s.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role == role {
		return target, nil
	}

	if err := s.users.UpdateRole(ctx, targetID, role); err != nil {
		return nil, internalError()
	}
	target.Role = role
	return target, nil
}
