package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/permissions"
	"github.com/gracefellowship/fellowship/internal/snowflake"
)

const maxMediaSize = 500 << 20 // 500 MB

var allowedMediaTypes = map[string]bool{
	"audio/mpeg":      true,
	"audio/mp4":       true,
	"audio/aac":       true,
	"audio/wav":       true,
	"video/mp4":       true,
	"application/pdf": true,
	"text/plain":      true,
}

// MediaStorage abstracts object storage for testability.
type MediaStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	URL(key string) string
	Delete(ctx context.Context, key string) error
}

// SermonUpload describes one media file being published.
type SermonUpload struct {
	Title       string
	Speaker     string
	Kind        models.SermonKind
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SermonService manages the sermon and devotional library.
type SermonService struct {
	sermons database.SermonRepository
	storage MediaStorage
	ids     *snowflake.Node
	perms   *PermissionChecker
}

func NewSermonService(sermons database.SermonRepository, storage MediaStorage, ids *snowflake.Node, perms *PermissionChecker) *SermonService {
	return &SermonService{sermons: sermons, storage: storage, ids: ids, perms: perms}
}

// Upload stores the media object, then records its metadata. The object is
// removed again if the metadata cannot be saved.
func (s *SermonService) Upload(ctx context.Context, userID int64, in SermonUpload) (*models.Sermon, error) {
	if _, err := s.perms.Require(ctx, userID, permissions.PermUploadMedia); err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, Unavailable("STORAGE_DISABLED", "media storage is not configured")
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || len(in.Title) > 200 {
		return nil, BadRequest("INVALID_TITLE", "title must be 1-200 characters")
	}
	if in.Kind == "" {
		in.Kind = models.KindSermon
	}
	if in.Kind != models.KindSermon && in.Kind != models.KindDevotional {
		return nil, BadRequest("INVALID_KIND", "kind must be sermon or devotional")
	}
	if in.Size <= 0 || in.Size > maxMediaSize {
		return nil, BadRequest("FILE_TOO_LARGE", "file must be under 500 MB")
	}
	contentType := strings.TrimSpace(strings.SplitN(in.ContentType, ";", 2)[0])
	if !allowedMediaTypes[contentType] {
		return nil, BadRequest("INVALID_CONTENT_TYPE", "file type not allowed")
	}

	id := s.ids.Next()
	key := fmt.Sprintf("%s/%d%s", in.Kind, id, strings.ToLower(filepath.Ext(in.Filename)))

	if err := s.storage.Upload(ctx, key, in.Body, in.Size, contentType); err != nil {
		slog.Error("uploading media", "key", key, "error", err)
		return nil, internalError()
	}

	sermon := &models.Sermon{
		ID:          id,
		Title:       in.Title,
		Speaker:     strings.TrimSpace(in.Speaker),
		Kind:        in.Kind,
		MediaKey:    key,
		MediaURL:    s.storage.URL(key),
		ContentType: contentType,
		Size:        in.Size,
		UploadedBy:  userID,
		PublishedAt: time.Now(),
	}
	if err := s.sermons.Create(ctx, sermon); err != nil {
		slog.Error("saving sermon", "key", key, "error", err)
		if derr := s.storage.Delete(ctx, key); derr != nil {
			slog.Warn("removing orphaned media", "key", key, "error", derr)
		}
		return nil, internalError()
	}
	return sermon, nil
}

// List returns the newest sermons, optionally filtered by kind.
func (s *SermonService) List(ctx context.Context, kind string, limit int) ([]models.Sermon, error) {
	var filter *models.SermonKind
	if kind != "" {
		k := models.SermonKind(kind)
		if k != models.KindSermon && k != models.KindDevotional {
			return nil, BadRequest("INVALID_KIND", "kind must be sermon or devotional")
		}
		filter = &k
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	out, err := s.sermons.List(ctx, filter, limit)
	if err != nil {
		return nil, internalError()
	}
	if out == nil {
		out = []models.Sermon{}
	}
	return out, nil
}
