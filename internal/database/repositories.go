package database

import (
	"context"
	"time"

	"github.com/gracefellowship/fellowship/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id int64, role models.Role) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id int64) (*models.Room, error)
	List(ctx context.Context) ([]models.Room, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id int64) (*models.MessageWithAuthor, error)
	// GetRecent returns up to limit messages older than before (or the newest
	// when before is nil), ordered oldest-first.
	GetRecent(ctx context.Context, roomID int64, before *int64, limit int) ([]models.MessageWithAuthor, error)
	// SoftDelete marks an active message deleted. It reports false when the
	// message was already deleted or does not exist.
	SoftDelete(ctx context.Context, id, deletedBy int64, at time.Time) (bool, error)
}

type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	List(ctx context.Context, activeOnly bool) ([]models.Campaign, error)
	// Update writes the editable fields and reloads campaign from the stored
	// row. CurrentAmount is never written here, only read back.
	Update(ctx context.Context, campaign *models.Campaign) error
	// CloseExpired deactivates active campaigns whose end date has passed and
	// returns their state before and after.
	CloseExpired(ctx context.Context, now time.Time) ([]CampaignChange, error)
}

// CampaignChange pairs a campaign row before and after a mutation.
type CampaignChange struct {
	Old models.Campaign
	New models.Campaign
}

// DonationOutcome is the result of completing a donation. Campaign is set
// when the donation counted toward a campaign.
type DonationOutcome struct {
	Donation models.Donation
	Campaign *CampaignChange
}

type DonationRepository interface {
	Create(ctx context.Context, d *models.Donation) error
	GetByID(ctx context.Context, id int64) (*models.Donation, error)
	GetByProviderSession(ctx context.Context, sessionID string) (*models.Donation, error)
	SetProviderSession(ctx context.Context, id int64, sessionID string) error
	// Complete moves a pending donation to completed and credits its campaign
	// in the same transaction. It returns nil when the donation was not
	// pending.
	Complete(ctx context.Context, id int64, at time.Time) (*DonationOutcome, error)
	// Fail moves a pending donation to failed. It reports false when the
	// donation was not pending.
	Fail(ctx context.Context, id int64) (bool, error)
	// RecordRenewal inserts an already-completed donation for a subscription
	// renewal and credits its campaign.
	RecordRenewal(ctx context.Context, d *models.Donation) (*DonationOutcome, error)
	ListByCampaign(ctx context.Context, campaignID int64, limit int) ([]models.Donation, error)
}

type AnnouncementRepository interface {
	Create(ctx context.Context, a *models.Announcement) error
	List(ctx context.Context, before *int64, limit int) ([]models.Announcement, error)
}

type SermonRepository interface {
	Create(ctx context.Context, s *models.Sermon) error
	GetByID(ctx context.Context, id int64) (*models.Sermon, error)
	List(ctx context.Context, kind *models.SermonKind, limit int) ([]models.Sermon, error)
}
