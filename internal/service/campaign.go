package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/permissions"
	"github.com/gracefellowship/fellowship/internal/snowflake"
)

// CampaignInput carries the editable fields of a campaign. Nil fields are
// left unchanged on update.
type CampaignInput struct {
	Title        *string
	Description  *string
	TargetAmount *int64
	Active       *bool
	EndDate      *time.Time
	ClearEndDate bool
}

// CampaignService manages fundraising campaigns. Totals are never edited
// here; they only grow through completed donations.
type CampaignService struct {
	campaigns database.CampaignRepository
	ids       *snowflake.Node
	publisher gateway.Publisher
	perms     *PermissionChecker
}

func NewCampaignService(
	campaigns database.CampaignRepository,
	ids *snowflake.Node,
	publisher gateway.Publisher,
	perms *PermissionChecker,
) *CampaignService {
	return &CampaignService{campaigns: campaigns, ids: ids, publisher: publisher, perms: perms}
}

func (s *CampaignService) Create(ctx context.Context, userID int64, in CampaignInput) (*models.Campaign, error) {
	if _, err := s.perms.Require(ctx, userID, permissions.PermManageCampaigns); err != nil {
		return nil, err
	}

	c := &models.Campaign{ID: s.ids.Next(), Active: true, CreatedAt: time.Now()}
	if in.Title == nil || in.TargetAmount == nil {
		return nil, BadRequest("MISSING_FIELDS", "title and target_amount are required")
	}
	if err := applyCampaignInput(c, in); err != nil {
		return nil, err
	}

	if err := s.campaigns.Create(ctx, c); err != nil {
		slog.Error("creating campaign", "error", err)
		return nil, internalError()
	}

	publishCampaign(s.publisher, gateway.ChangeInsert, nil, c)
	return c, nil
}

// List returns campaigns newest-first.
func (s *CampaignService) List(ctx context.Context, activeOnly bool) ([]models.Campaign, error) {
	campaigns, err := s.campaigns.List(ctx, activeOnly)
	if err != nil {
		return nil, internalError()
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	return campaigns, nil
}

func (s *CampaignService) Get(ctx context.Context, id int64) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, internalError()
	}
	if c == nil {
		return nil, NotFound("NOT_FOUND", "campaign not found")
	}
	return c, nil
}

func (s *CampaignService) Update(ctx context.Context, userID, id int64, in CampaignInput) (*models.Campaign, error) {
	if _, err := s.perms.Require(ctx, userID, permissions.PermManageCampaigns); err != nil {
		return nil, err
	}
	old, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *old
	if err := applyCampaignInput(&updated, in); err != nil {
		return nil, err
	}
	if err := s.campaigns.Update(ctx, &updated); err != nil {
		slog.Error("updating campaign", "campaignID", id, "error", err)
		return nil, internalError()
	}
	// A donation may have landed since the read. The edit never moves the
	// total, so both sides carry the amount the write returned.
	old.CurrentAmount = updated.CurrentAmount

	publishCampaign(s.publisher, gateway.ChangeUpdate, old, &updated)
	return &updated, nil
}

// CloseExpired deactivates campaigns whose end date has passed and returns
// how many were closed.
func (s *CampaignService) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	changes, err := s.campaigns.CloseExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, ch := range changes {
		publishCampaign(s.publisher, gateway.ChangeUpdate, &ch.Old, &ch.New)
	}
	return len(changes), nil
}

func applyCampaignInput(c *models.Campaign, in CampaignInput) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || utf8.RuneCountInString(title) > 200 {
			return BadRequest("INVALID_TITLE", "title must be 1-200 characters")
		}
		c.Title = title
	}
	if in.Description != nil {
		if utf8.RuneCountInString(*in.Description) > 5000 {
			return BadRequest("INVALID_DESCRIPTION", "description must be at most 5000 characters")
		}
		c.Description = *in.Description
	}
	if in.TargetAmount != nil {
		if *in.TargetAmount <= 0 {
			return BadRequest("INVALID_TARGET", "target_amount must be positive")
		}
		c.TargetAmount = *in.TargetAmount
	}
	if in.Active != nil {
		c.Active = *in.Active
	}
	if in.ClearEndDate {
		c.EndDate = nil
	} else if in.EndDate != nil {
		end := in.EndDate.UTC()
		c.EndDate = &end
	}
	return nil
}

// publishCampaign announces a campaign row change on the list topic and the
// per-campaign topic.
func publishCampaign(p gateway.Publisher, typ gateway.ChangeType, old, updated *models.Campaign) {
	change := gateway.Change{Table: gateway.TableCampaigns, Type: typ, New: *updated}
	if old != nil {
		change.Old = *old
	}
	p.Publish(change, gateway.CampaignsTopic(), gateway.CampaignTopic(updated.ID))
}
