package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/notify"
	"github.com/gracefellowship/fellowship/internal/payments"
	"github.com/gracefellowship/fellowship/internal/snowflake"
)

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

type mockUserRepo struct {
	CreateFn             func(ctx context.Context, user *models.User) error
	GetByIDFn            func(ctx context.Context, id int64) (*models.User, error)
	GetByUsernameFn      func(ctx context.Context, username string) (*models.User, error)
	UpdateFn             func(ctx context.Context, user *models.User) error
	UpdateRoleFn         func(ctx context.Context, id int64, role models.Role) error
	UpdatePasswordHashFn func(ctx context.Context, id int64, hash string) error
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
func (m *mockUserRepo) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	if m.UpdateRoleFn != nil {
		return m.UpdateRoleFn(ctx, id, role)
	}
	return nil
}
func (m *mockUserRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	if m.UpdatePasswordHashFn != nil {
		return m.UpdatePasswordHashFn(ctx, id, hash)
	}
	return nil
}

// usersWithRoles answers GetByID from a fixed id -> role table.
func usersWithRoles(roles map[int64]models.Role) *mockUserRepo {
	return &mockUserRepo{
		GetByIDFn: func(_ context.Context, id int64) (*models.User, error) {
			role, ok := roles[id]
			if !ok {
				return nil, nil
			}
			return &models.User{ID: id, Username: "u", DisplayName: "U", Role: role}, nil
		},
	}
}

type mockRoomRepo struct {
	rooms map[int64]*models.Room
}

func (m *mockRoomRepo) Create(_ context.Context, room *models.Room) error {
	if m.rooms == nil {
		m.rooms = make(map[int64]*models.Room)
	}
	m.rooms[room.ID] = room
	return nil
}
func (m *mockRoomRepo) GetByID(_ context.Context, id int64) (*models.Room, error) {
	return m.rooms[id], nil
}
func (m *mockRoomRepo) List(context.Context) ([]models.Room, error) {
	var out []models.Room
	for _, r := range m.rooms {
		out = append(out, *r)
	}
	return out, nil
}

// memMessageRepo is an in-memory MessageRepository.
type memMessageRepo struct {
	mu   sync.Mutex
	rows map[int64]models.MessageWithAuthor
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{rows: make(map[int64]models.MessageWithAuthor)}
}

func (m *memMessageRepo) Create(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[msg.ID] = models.MessageWithAuthor{Message: *msg, AuthorUsername: "u", AuthorDisplayName: "U"}
	return nil
}
func (m *memMessageRepo) GetByID(_ context.Context, id int64) (*models.MessageWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}
func (m *memMessageRepo) GetRecent(_ context.Context, roomID int64, before *int64, limit int) ([]models.MessageWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MessageWithAuthor
	for _, row := range m.rows {
		if row.RoomID == roomID && (before == nil || row.ID < *before) {
			out = append(out, row)
		}
	}
	sortMessages(out)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
func (m *memMessageRepo) SoftDelete(_ context.Context, id, by int64, at time.Time) (bool, error) {
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

func sortMessages(ms []models.MessageWithAuthor) {
	for i := 1; i < len(ms); i++ {
		for j := i; j > 0 && ms[j].ID < ms[j-1].ID; j-- {
			ms[j], ms[j-1] = ms[j-1], ms[j]
		}
	}
}

type mockCampaignRepo struct {
	CreateFn       func(ctx context.Context, c *models.Campaign) error
	GetByIDFn      func(ctx context.Context, id int64) (*models.Campaign, error)
	ListFn         func(ctx context.Context, activeOnly bool) ([]models.Campaign, error)
	UpdateFn       func(ctx context.Context, c *models.Campaign) error
	CloseExpiredFn func(ctx context.Context, now time.Time) ([]database.CampaignChange, error)
}

func (m *mockCampaignRepo) Create(ctx context.Context, c *models.Campaign) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, c)
	}
	return nil
}
func (m *mockCampaignRepo) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockCampaignRepo) List(ctx context.Context, activeOnly bool) ([]models.Campaign, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, activeOnly)
	}
	return nil, nil
}
func (m *mockCampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, c)
	}
	return nil
}
func (m *mockCampaignRepo) CloseExpired(ctx context.Context, now time.Time) ([]database.CampaignChange, error) {
	if m.CloseExpiredFn != nil {
		return m.CloseExpiredFn(ctx, now)
	}
	return nil, nil
}

type mockDonationRepo struct {
	CreateFn               func(ctx context.Context, d *models.Donation) error
	GetByIDFn              func(ctx context.Context, id int64) (*models.Donation, error)
	GetByProviderSessionFn func(ctx context.Context, sessionID string) (*models.Donation, error)
	SetProviderSessionFn   func(ctx context.Context, id int64, sessionID string) error
	CompleteFn             func(ctx context.Context, id int64, at time.Time) (*database.DonationOutcome, error)
	FailFn                 func(ctx context.Context, id int64) (bool, error)
	RecordRenewalFn        func(ctx context.Context, d *models.Donation) (*database.DonationOutcome, error)
	ListByCampaignFn       func(ctx context.Context, campaignID int64, limit int) ([]models.Donation, error)
}

func (m *mockDonationRepo) Create(ctx context.Context, d *models.Donation) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, d)
	}
	return nil
}
func (m *mockDonationRepo) GetByID(ctx context.Context, id int64) (*models.Donation, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockDonationRepo) GetByProviderSession(ctx context.Context, sessionID string) (*models.Donation, error) {
	if m.GetByProviderSessionFn != nil {
		return m.GetByProviderSessionFn(ctx, sessionID)
	}
	return nil, nil
}
func (m *mockDonationRepo) SetProviderSession(ctx context.Context, id int64, sessionID string) error {
	if m.SetProviderSessionFn != nil {
		return m.SetProviderSessionFn(ctx, id, sessionID)
	}
	return nil
}
func (m *mockDonationRepo) Complete(ctx context.Context, id int64, at time.Time) (*database.DonationOutcome, error) {
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, id, at)
	}
	return nil, nil
}
func (m *mockDonationRepo) Fail(ctx context.Context, id int64) (bool, error) {
	if m.FailFn != nil {
		return m.FailFn(ctx, id)
	}
	return false, nil
}
func (m *mockDonationRepo) RecordRenewal(ctx context.Context, d *models.Donation) (*database.DonationOutcome, error) {
	if m.RecordRenewalFn != nil {
		return m.RecordRenewalFn(ctx, d)
	}
	return nil, nil
}
func (m *mockDonationRepo) ListByCampaign(ctx context.Context, campaignID int64, limit int) ([]models.Donation, error) {
	if m.ListByCampaignFn != nil {
		return m.ListByCampaignFn(ctx, campaignID, limit)
	}
	return nil, nil
}

type mockAnnouncementRepo struct {
	created []models.Announcement
}

func (m *mockAnnouncementRepo) Create(_ context.Context, a *models.Announcement) error {
	m.created = append(m.created, *a)
	return nil
}
func (m *mockAnnouncementRepo) List(context.Context, *int64, int) ([]models.Announcement, error) {
	return m.created, nil
}

type mockSermonRepo struct {
	CreateFn func(ctx context.Context, s *models.Sermon) error
	ListFn   func(ctx context.Context, kind *models.SermonKind, limit int) ([]models.Sermon, error)
}

func (m *mockSermonRepo) Create(ctx context.Context, s *models.Sermon) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, s)
	}
	return nil
}
func (m *mockSermonRepo) GetByID(context.Context, int64) (*models.Sermon, error) { return nil, nil }
func (m *mockSermonRepo) List(ctx context.Context, kind *models.SermonKind, limit int) ([]models.Sermon, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, kind, limit)
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

type published struct {
	Change gateway.Change
	Topics []string
}

// recordingPublisher captures change events instead of dispatching them.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(change gateway.Change, topics ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{Change: change, Topics: topics})
}

func (r *recordingPublisher) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.events...)
}

type recordingQueue struct {
	jobs []notify.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, job notify.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type mockProcessor struct {
	CreateCheckoutFn func(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error)
	ParseWebhookFn   func(payload []byte, signature string) (*payments.Event, error)
}

func (m *mockProcessor) CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	return m.CreateCheckoutFn(ctx, req)
}
func (m *mockProcessor) ParseWebhook(payload []byte, signature string) (*payments.Event, error) {
	return m.ParseWebhookFn(payload, signature)
}

type mockStorage struct {
	uploaded map[string]int64
	deleted  []string
	err      error
}

func (m *mockStorage) Upload(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	if m.err != nil {
		return m.err
	}
	if m.uploaded == nil {
		m.uploaded = make(map[string]int64)
	}
	n, _ := io.Copy(io.Discard, r)
	m.uploaded[key] = n
	return nil
}
func (m *mockStorage) URL(key string) string { return "http://media/" + key }
func (m *mockStorage) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func testIDs(t *testing.T) *snowflake.Node {
	t.Helper()
	n, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return n
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }
