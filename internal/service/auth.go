package service

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/redis"
	"github.com/gracefellowship/fellowship/internal/snowflake"
)

var usernameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_]{2,32}$`)

// AuthResult holds the tokens and user returned after registration or login.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
}

// RefreshResult holds the new token pair after a refresh.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// AuthService handles registration, login, token refresh, and logout.
type AuthService struct {
	users  database.UserRepository
	tokens *auth.TokenService
	redis  *redis.Client
	ids    *snowflake.Node
}

// NewAuthService creates an AuthService.
func NewAuthService(
	users database.UserRepository,
	tokens *auth.TokenService,
	redis *redis.Client,
	ids *snowflake.Node,
) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		redis:  redis,
		ids:    ids,
	}
}

// Register creates a new member account and returns tokens. The display name
// defaults to the username.
func (s *AuthService) Register(ctx context.Context, username, password, displayName string) (*AuthResult, error) {
	if !usernameRegexp.MatchString(username) {
		return nil, BadRequest("INVALID_USERNAME", "username must be 2-32 alphanumeric or underscore characters")
	}
	if len(password) < 8 || len(password) > 128 {
		return nil, BadRequest("INVALID_PASSWORD", "password must be 8-128 characters")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}
	if utf8.RuneCountInString(displayName) > 64 {
		return nil, BadRequest("INVALID_DISPLAY_NAME", "display name must be 1-64 characters")
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, internalError()
	}
	if existing != nil {
		return nil, Conflict("USERNAME_TAKEN", "username is already taken")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, internalError()
	}

	user := &models.User{
		ID:           s.ids.Next(),
		Username:     username,
		DisplayName:  displayName,
		Role:         models.RoleMember,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		slog.Error("creating user", "username", username, "error", err)
		return nil, internalError()
	}

	return s.issueTokens(ctx, user)
}

// Login authenticates a user and returns tokens. Hashes made with weaker
// parameters are upgraded on the way in.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, internalError()
	}
	if user == nil {
		return nil, Unauthorized("INVALID_CREDENTIALS", "invalid username or password")
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, Unauthorized("INVALID_CREDENTIALS", "invalid username or password")
	}

	if auth.NeedsRehash(user.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
				slog.Warn("password rehash failed", "userID", user.ID, "error", err)
			}
		}
	}

	return s.issueTokens(ctx, user)
}

// Refresh rotates a refresh token and returns a new token pair. The access
// token carries the user's current role.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, BadRequest("MISSING_TOKEN", "refresh_token is required")
	}

	userID, err := s.redis.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, Unauthorized("INVALID_TOKEN", "invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, internalError()
	}
	if user == nil {
		return nil, Unauthorized("INVALID_TOKEN", "invalid or expired refresh token")
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, nil
}

// Logout revokes one of the caller's refresh tokens. Unknown tokens and
// tokens of other users are ignored so logout stays idempotent.
func (s *AuthService) Logout(ctx context.Context, userID int64, refreshToken string) error {
	if refreshToken == "" {
		return BadRequest("MISSING_TOKEN", "refresh_token is required")
	}
	revoked, err := s.redis.RevokeRefreshToken(ctx, refreshToken, userID)
	if err != nil {
		slog.Error("revoking refresh token", "userID", userID, "error", err)
		return internalError()
	}
	if !revoked {
		slog.Debug("logout with unknown refresh token", "userID", userID)
	}
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*AuthResult, error) {
	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, internalError()
	}

	refreshToken, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, internalError()
	}

	if err := s.redis.StoreRefreshToken(ctx, refreshToken, user.ID, s.tokens.RefreshExpiry()); err != nil {
		slog.Error("storing refresh token", "userID", user.ID, "error", err)
		return nil, internalError()
	}

	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         *user,
	}, nil
}
