package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/payments"
	"github.com/gracefellowship/fellowship/internal/snowflake"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestContext(method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func setAuthUser(c echo.Context, userID int64) {
	c.Set("user_id", userID)
}

func setParams(c echo.Context, kv ...string) {
	var names, values []string
	for i := 0; i+1 < len(kv); i += 2 {
		names = append(names, kv[i])
		values = append(values, kv[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
}

func testSnowflake(t *testing.T) *snowflake.Node {
	t.Helper()
	n, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return n
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := decodeError(t, rec).Error.Code; got != code {
		t.Errorf("expected error code %q, got %q", code, got)
	}
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

type recordingPublisher struct {
	mu      sync.Mutex
	changes []gateway.Change
}

func (p *recordingPublisher) Publish(change gateway.Change, _ ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
}

type fakeProcessor struct {
	requests []payments.CheckoutRequest
}

func (f *fakeProcessor) CreateCheckout(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	f.requests = append(f.requests, req)
	return &payments.CheckoutSession{ID: "cs_test_1", URL: "https://pay.example/cs_test_1"}, nil
}

func (f *fakeProcessor) ParseWebhook([]byte, string) (*payments.Event, error) {
	return nil, payments.ErrInvalidSignature
}

// ---------------------------------------------------------------------------
// Mock repositories
// ---------------------------------------------------------------------------

// mockUserRepo implements database.UserRepository.
type mockUserRepo struct {
	CreateFn        func(ctx context.Context, user *models.User) error
	GetByIDFn       func(ctx context.Context, id int64) (*models.User, error)
	GetByUsernameFn func(ctx context.Context, username string) (*models.User, error)
	UpdateFn        func(ctx context.Context, user *models.User) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFn != nil {
		return m.GetByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdateRole(context.Context, int64, models.Role) error { return nil }

func (m *mockUserRepo) UpdatePasswordHash(context.Context, int64, string) error { return nil }

// roleUsers answers GetByID from a fixed id -> role table.
func roleUsers(roles map[int64]models.Role) *mockUserRepo {
	return &mockUserRepo{
		GetByIDFn: func(_ context.Context, id int64) (*models.User, error) {
			role, ok := roles[id]
			if !ok {
				return nil, nil
			}
			return &models.User{ID: id, Username: "user", DisplayName: "User", Role: role}, nil
		},
	}
}

// mockRoomRepo implements database.RoomRepository.
type mockRoomRepo struct {
	rooms map[int64]models.Room
}

func (m *mockRoomRepo) Create(_ context.Context, room *models.Room) error {
	if m.rooms == nil {
		m.rooms = make(map[int64]models.Room)
	}
	m.rooms[room.ID] = *room
	return nil
}

func (m *mockRoomRepo) GetByID(_ context.Context, id int64) (*models.Room, error) {
	room, ok := m.rooms[id]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

func (m *mockRoomRepo) List(context.Context) ([]models.Room, error) {
	out := make([]models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out, nil
}

// mockMessageRepo is a map-backed database.MessageRepository.
type mockMessageRepo struct {
	mu   sync.Mutex
	rows map[int64]models.MessageWithAuthor
}

func newMockMessageRepo(seed ...models.Message) *mockMessageRepo {
	m := &mockMessageRepo{rows: make(map[int64]models.MessageWithAuthor)}
	for _, msg := range seed {
		m.rows[msg.ID] = models.MessageWithAuthor{Message: msg, AuthorUsername: "author"}
	}
	return m
}

func (m *mockMessageRepo) Create(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[msg.ID] = models.MessageWithAuthor{Message: *msg, AuthorUsername: "author"}
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id int64) (*models.MessageWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *mockMessageRepo) GetRecent(_ context.Context, roomID int64, _ *int64, _ int) ([]models.MessageWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MessageWithAuthor
	for _, row := range m.rows {
		if row.RoomID == roomID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockMessageRepo) SoftDelete(_ context.Context, id, by int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Deleted {
		return false, nil
	}
	row.Deleted, row.DeletedBy, row.DeletedAt = true, &by, &at
	m.rows[id] = row
	return true, nil
}

// mockCampaignRepo implements database.CampaignRepository.
type mockCampaignRepo struct {
	campaigns map[int64]models.Campaign
}

func (m *mockCampaignRepo) Create(_ context.Context, c *models.Campaign) error {
	if m.campaigns == nil {
		m.campaigns = make(map[int64]models.Campaign)
	}
	m.campaigns[c.ID] = *c
	return nil
}

func (m *mockCampaignRepo) GetByID(_ context.Context, id int64) (*models.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *mockCampaignRepo) List(context.Context, bool) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, c := range m.campaigns {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCampaignRepo) Update(_ context.Context, c *models.Campaign) error {
	c.CurrentAmount = m.campaigns[c.ID].CurrentAmount
	m.campaigns[c.ID] = *c
	return nil
}

func (m *mockCampaignRepo) CloseExpired(context.Context, time.Time) ([]database.CampaignChange, error) {
	return nil, nil
}

// mockDonationRepo records created donations.
type mockDonationRepo struct {
	created []models.Donation
	session map[int64]string
}

func (m *mockDonationRepo) Create(_ context.Context, d *models.Donation) error {
	m.created = append(m.created, *d)
	return nil
}

func (m *mockDonationRepo) GetByID(context.Context, int64) (*models.Donation, error) { return nil, nil }

func (m *mockDonationRepo) GetByProviderSession(context.Context, string) (*models.Donation, error) {
	return nil, nil
}

func (m *mockDonationRepo) SetProviderSession(_ context.Context, id int64, sessionID string) error {
	if m.session == nil {
		m.session = make(map[int64]string)
	}
	m.session[id] = sessionID
	return nil
}

func (m *mockDonationRepo) Complete(context.Context, int64, time.Time) (*database.DonationOutcome, error) {
	return nil, nil
}

func (m *mockDonationRepo) Fail(context.Context, int64) (bool, error) { return false, nil }

func (m *mockDonationRepo) RecordRenewal(context.Context, *models.Donation) (*database.DonationOutcome, error) {
	return nil, nil
}

func (m *mockDonationRepo) ListByCampaign(context.Context, int64, int) ([]models.Donation, error) {
	return nil, nil
}

// mockSermonRepo implements database.SermonRepository.
type mockSermonRepo struct {
	created []models.Sermon
}

func (m *mockSermonRepo) Create(_ context.Context, s *models.Sermon) error {
	m.created = append(m.created, *s)
	return nil
}

func (m *mockSermonRepo) GetByID(context.Context, int64) (*models.Sermon, error) { return nil, nil }

func (m *mockSermonRepo) List(context.Context, *models.SermonKind, int) ([]models.Sermon, error) {
	return m.created, nil
}

// memStorage is an in-memory service.MediaStorage.
type memStorage struct {
	objects map[string][]byte
}

func (s *memStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = b
	return nil
}

func (s *memStorage) URL(key string) string { return "http://media.test/" + key }

func (s *memStorage) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}
