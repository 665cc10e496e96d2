package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gracefellowship/fellowship/internal/models"
)

// HistoryLimit is how many messages a room view loads on open.
const HistoryLimit = 100

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Session is the result of a login.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"user"`
}

// API is a small REST client for the calls the live views need. Errors are
// returned as-is; callers show them and the user retries.
type API struct {
	base  string
	token string
	http  *http.Client
}

func NewAPI(baseURL, accessToken string) *API {
	return &API{
		base:  baseURL,
		token: accessToken,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Login exchanges credentials for tokens and returns an API using them.
func Login(ctx context.Context, baseURL, username, password string) (*API, *Session, error) {
	a := NewAPI(baseURL, "")
	var s Session
	err := a.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &s)
	if err != nil {
		return nil, nil, err
	}
	a.token = s.AccessToken
	return a, &s, nil
}

// Refresh trades a refresh token for a new token pair. The API switches to
// the new access token; the returned refresh token replaces the old one,
// which is now spent.
func (a *API) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &out); err != nil {
		return "", err
	}
	a.token = out.AccessToken
	return out.RefreshToken, nil
}

func (a *API) Rooms(ctx context.Context) ([]models.Room, error) {
	var out []models.Room
	if err := a.do(ctx, http.MethodGet, "/api/v1/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentMessages returns the newest HistoryLimit messages, oldest first.
func (a *API) RecentMessages(ctx context.Context, roomID int64) ([]models.MessageWithAuthor, error) {
	var out []models.MessageWithAuthor
	path := fmt.Sprintf("/api/v1/rooms/%d/messages?limit=%d", roomID, HistoryLimit)
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send posts a message, or a reply when replyTo is set.
func (a *API) Send(ctx context.Context, roomID int64, content string, replyTo *int64) (*models.MessageWithAuthor, error) {
	body := map[string]string{"content": content}
	if replyTo != nil {
		body["reply_to_id"] = strconv.FormatInt(*replyTo, 10)
	}
	var out models.MessageWithAuthor
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/rooms/%d/messages", roomID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Delete(ctx context.Context, roomID, messageID int64) error {
	return a.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/rooms/%d/messages/%d", roomID, messageID), nil, nil)
}

func (a *API) Campaigns(ctx context.Context) ([]models.Campaign, error) {
	var out []models.Campaign
	if err := a.do(ctx, http.MethodGet, "/api/v1/campaigns", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GatewayURL derives the WebSocket URL from the REST base URL.
func (a *API) GatewayURL() (string, error) {
	u, err := url.Parse(a.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/gateway"
	return u.String(), nil
}

func (a *API) Token() string { return a.token }

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &APIError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}
