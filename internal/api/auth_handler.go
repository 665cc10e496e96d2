package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/service"
)

// AuthHandler serves sign-up and the token lifecycle. Register and login
// answer with the same session document the apps keep on the device.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: svc}
}

type credentialsRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	tokenPair
	User models.User `json:"user"`
}

type signInFunc func(ctx context.Context, req credentialsRequest) (*service.AuthResult, error)

func (h *AuthHandler) signIn(c echo.Context, status int, fn signInFunc) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}

	result, err := fn(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(status, sessionResponse{
		tokenPair: tokenPair{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken},
		User:      result.User,
	})
}

// Register handles POST /api/v1/auth/register. New accounts are members.
func (h *AuthHandler) Register(c echo.Context) error {
	return h.signIn(c, http.StatusCreated, func(ctx context.Context, req credentialsRequest) (*service.AuthResult, error) {
		return h.auth.Register(ctx, req.Username, req.Password, req.DisplayName)
	})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	return h.signIn(c, http.StatusOK, func(ctx context.Context, req credentialsRequest) (*service.AuthResult, error) {
		return h.auth.Login(ctx, req.Username, req.Password)
	})
}

// Refresh handles POST /api/v1/auth/refresh. The old refresh token is spent.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}

	result, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, tokenPair{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken})
}

// Logout handles POST /api/v1/auth/logout for the signed-in user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}

	if err := h.auth.Logout(c.Request().Context(), auth.GetUserID(c), req.RefreshToken); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
