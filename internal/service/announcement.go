package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/notify"
	"github.com/gracefellowship/fellowship/internal/permissions"
	"github.com/gracefellowship/fellowship/internal/snowflake"
)

// AnnouncementService runs the news feed.
type AnnouncementService struct {
	announcements database.AnnouncementRepository
	queue         notify.Enqueuer
	ids           *snowflake.Node
	publisher     gateway.Publisher
	perms         *PermissionChecker
}

func NewAnnouncementService(
	announcements database.AnnouncementRepository,
	queue notify.Enqueuer,
	ids *snowflake.Node,
	publisher gateway.Publisher,
	perms *PermissionChecker,
) *AnnouncementService {
	return &AnnouncementService{
		announcements: announcements,
		queue:         queue,
		ids:           ids,
		publisher:     publisher,
		perms:         perms,
	}
}

// Create publishes an announcement to the feed and pushes it to every device.
func (s *AnnouncementService) Create(ctx context.Context, userID int64, title, body string) (*models.Announcement, error) {
	if _, err := s.perms.Require(ctx, userID, permissions.PermPublishAnnouncements); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" || utf8.RuneCountInString(title) > 200 {
		return nil, BadRequest("INVALID_TITLE", "title must be 1-200 characters")
	}
	if body == "" || utf8.RuneCountInString(body) > 10000 {
		return nil, BadRequest("INVALID_BODY", "body must be 1-10000 characters")
	}

	a := &models.Announcement{
		ID:        s.ids.Next(),
		Title:     title,
		Body:      body,
		AuthorID:  userID,
		CreatedAt: time.Now(),
	}
	if err := s.announcements.Create(ctx, a); err != nil {
		slog.Error("creating announcement", "error", err)
		return nil, internalError()
	}

	s.publisher.Publish(gateway.Change{
		Table: gateway.TableAnnouncements,
		Type:  gateway.ChangeInsert,
		New:   *a,
	}, gateway.AnnouncementsTopic())

	if s.queue != nil {
		job := notify.ToTopic(notify.TopicAnnouncements, a.Title, preview(a.Body, 120),
			map[string]string{"announcement_id": strconv.FormatInt(a.ID, 10)})
		if err := s.queue.Enqueue(ctx, job); err != nil {
			slog.Warn("queueing announcement push", "announcementID", a.ID, "error", err)
		}
	}
	return a, nil
}

// List returns announcements newest-first.
func (s *AnnouncementService) List(ctx context.Context, before *int64, limit int) ([]models.Announcement, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	out, err := s.announcements.List(ctx, before, limit)
	if err != nil {
		return nil, internalError()
	}
	if out == nil {
		out = []models.Announcement{}
	}
	return out, nil
}

// preview cuts s to at most n runes, marking the cut with an ellipsis.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
