package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/notify"
)

func contentPerms() *PermissionChecker {
	return NewPermissionChecker(usersWithRoles(map[int64]models.Role{
		memberID: models.RoleMember,
		leaderID: models.RoleLeader,
	}))
}

func TestAnnouncementCreate_PublishesAndPushes(t *testing.T) {
	repo := &mockAnnouncementRepo{}
	queue := &recordingQueue{}
	pub := &recordingPublisher{}
	svc := NewAnnouncementService(repo, queue, testIDs(t), pub, contentPerms())
	ctx := context.Background()

	_, err := svc.Create(ctx, memberID, "Picnic", "Sunday after service")
	assertCode(t, err, "MISSING_PERMISSIONS")

	a, err := svc.Create(ctx, leaderID, "Picnic", strings.Repeat("bring food ", 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatal("announcement not stored")
	}

	events := pub.all()
	if len(events) != 1 || events[0].Topics[0] != gateway.AnnouncementsTopic() {
		t.Errorf("events = %+v", events)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("jobs = %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.Kind != notify.KindTopic || job.Topic != notify.TopicAnnouncements || job.Title != a.Title {
		t.Errorf("job = %+v", job)
	}
	if n := len([]rune(job.Body)); n > 120 {
		t.Errorf("push body is %d runes, want at most 120", n)
	}
}

func TestAnnouncementCreate_Validation(t *testing.T) {
	svc := NewAnnouncementService(&mockAnnouncementRepo{}, nil, testIDs(t), &recordingPublisher{}, contentPerms())
	_, err := svc.Create(context.Background(), leaderID, " ", "body")
	assertCode(t, err, "INVALID_TITLE")
	_, err = svc.Create(context.Background(), leaderID, "title", "")
	assertCode(t, err, "INVALID_BODY")
}

func TestSermonUpload(t *testing.T) {
	store := &mockStorage{}
	var saved models.Sermon
	repo := &mockSermonRepo{CreateFn: func(_ context.Context, s *models.Sermon) error {
		saved = *s
		return nil
	}}
	svc := NewSermonService(repo, store, testIDs(t), contentPerms())

	body := "ID3 audio bytes"
	s, err := svc.Upload(context.Background(), leaderID, SermonUpload{
		Title:       "Grace",
		Speaker:     "Pastor Lee",
		Filename:    "Grace.MP3",
		ContentType: "audio/mpeg",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if s.Kind != models.KindSermon {
		t.Errorf("kind should default to sermon, got %q", s.Kind)
	}
	if !strings.HasPrefix(s.MediaKey, "sermon/") || !strings.HasSuffix(s.MediaKey, ".mp3") {
		t.Errorf("media key = %q", s.MediaKey)
	}
	if store.uploaded[s.MediaKey] != int64(len(body)) {
		t.Error("media not uploaded")
	}
	if saved.MediaURL != "http://media/"+s.MediaKey {
		t.Errorf("media url = %q", saved.MediaURL)
	}
}

func TestSermonUpload_RollsBackOnSaveFailure(t *testing.T) {
	store := &mockStorage{}
	repo := &mockSermonRepo{CreateFn: func(context.Context, *models.Sermon) error {
		return errors.New("db down")
	}}
	svc := NewSermonService(repo, store, testIDs(t), contentPerms())

	_, err := svc.Upload(context.Background(), leaderID, SermonUpload{
		Title: "Hope", Kind: models.KindDevotional, Filename: "hope.pdf",
		ContentType: "application/pdf", Size: 3, Body: strings.NewReader("pdf"),
	})
	assertCode(t, err, "INTERNAL")
	if len(store.deleted) != 1 {
		t.Error("orphaned media should be removed")
	}
}

func TestSermonUpload_Validation(t *testing.T) {
	svc := NewSermonService(&mockSermonRepo{}, &mockStorage{}, testIDs(t), contentPerms())
	ctx := context.Background()

	_, err := svc.Upload(ctx, memberID, SermonUpload{Title: "x"})
	assertCode(t, err, "MISSING_PERMISSIONS")

	_, err = svc.Upload(ctx, leaderID, SermonUpload{Title: "x", ContentType: "application/x-msdownload", Size: 10})
	assertCode(t, err, "INVALID_CONTENT_TYPE")

	_, err = svc.Upload(ctx, leaderID, SermonUpload{Title: "x", Kind: "podcast", ContentType: "audio/mpeg", Size: 10})
	assertCode(t, err, "INVALID_KIND")
}

func TestSermonList_KindFilter(t *testing.T) {
	var gotKind *models.SermonKind
	repo := &mockSermonRepo{ListFn: func(_ context.Context, kind *models.SermonKind, _ int) ([]models.Sermon, error) {
		gotKind = kind
		return nil, nil
	}}
	svc := NewSermonService(repo, nil, testIDs(t), contentPerms())

	out, err := svc.List(context.Background(), "devotional", 0)
	if err != nil || out == nil {
		t.Fatalf("List = %v, %v", out, err)
	}
	if gotKind == nil || *gotKind != models.KindDevotional {
		t.Errorf("kind filter = %v", gotKind)
	}

	_, err = svc.List(context.Background(), "movies", 0)
	assertCode(t, err, "INVALID_KIND")
}
