package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/dto"
	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/storage"
)

type resourceRepoStub struct {
	items         map[string]*models.Resource
	notifications []*models.Notification
	downloads     int
}

func newResourceRepoStub(items ...*models.Resource) *resourceRepoStub {
	r := &resourceRepoStub{items: make(map[string]*models.Resource)}
	for _, item := range items {
		r.items[item.ID] = item
	}
	return r
}

func (r *resourceRepoStub) Create(ctx context.Context, res *models.Resource) error {
	copied := *res
	r.items[res.ID] = &copied
	return nil
}

func (r *resourceRepoStub) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	res, ok := r.items[id]
	if !ok || res.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	copied := *res
	return &copied, nil
}

func (r *resourceRepoStub) List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error) {
	var out []models.Resource
	for _, res := range r.items {
		out = append(out, *res)
	}
	return out, len(out), nil
}

func (r *resourceRepoStub) UpdateMetadata(ctx context.Context, res *models.Resource) error {
	copied := *res
	r.items[res.ID] = &copied
	return nil
}

func (r *resourceRepoStub) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	res, ok := r.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	res.DeletedAt = &deletedAt
	return nil
}

func (r *resourceRepoStub) IncrementViews(ctx context.Context, id string) error {
	r.items[id].Views++
	return nil
}

func (r *resourceRepoStub) IncrementDownloads(ctx context.Context, id string) error {
	r.downloads++
	return nil
}

func (r *resourceRepoStub) Review(ctx context.Context, review models.ResourceReview, notification *models.Notification) error {
	res, ok := r.items[review.ResourceID]
	if !ok || res.Status != models.ResourceStatusPending {
		return sql.ErrNoRows
	}
	res.Status = review.Status
	res.ReviewedBy = &review.ReviewerID
	if review.Status == models.ResourceStatusRejected {
		reason := ""
		if review.Reason != nil {
			reason = *review.Reason
		}
		res.RejectionReason = &reason
	} else {
		res.ApprovalReason = review.Reason
	}
	r.notifications = append(r.notifications, notification)
	return nil
}

type notifierStub struct {
	submitted []*models.Notification
	enqueued  []*models.Notification
}

func (n *notifierStub) Submit(ctx context.Context, notification *models.Notification) error {
	n.submitted = append(n.submitted, notification)
	return nil
}

func (n *notifierStub) Enqueue(notification *models.Notification) {
	n.enqueued = append(n.enqueued, notification)
}

type invalidatorStub struct {
	patterns []string
}

func (i *invalidatorStub) Invalidate(ctx context.Context, pattern string) error {
	i.patterns = append(i.patterns, pattern)
	return nil
}

type resourceFixture struct {
	svc      *ResourceService
	repo     *resourceRepoStub
	notifier *notifierStub
	cache    *invalidatorStub
	settings *mockSettings
	users    *mockUserStore
}

func newResourceFixture(t *testing.T, items ...*models.Resource) *resourceFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := &resourceFixture{
		repo:     newResourceRepoStub(items...),
		notifier: &notifierStub{},
		cache:    &invalidatorStub{},
		settings: &mockSettings{bools: map[string]bool{}, ints: map[string]int64{}, strings: map[string]string{}},
		users: newMockUserStore(
			&models.User{ID: "sup-1", Role: models.RoleSupervisor},
			&models.User{ID: "sup-2", Role: models.RoleSupervisor},
			&models.User{ID: "stu-1", Role: models.RoleStudent},
		),
	}
	f.svc = NewResourceService(ResourceServiceDeps{
		Repo:     f.repo,
		Users:    f.users,
		Storage:  store,
		Signer:   storage.NewSignedURLSigner("test-secret", time.Minute),
		Notifier: f.notifier,
		Cache:    f.cache,
		Settings: f.settings,
		Audit:    &auditLoggerStub{},
		Logger:   zap.NewNop(),
	}, ResourceServiceConfig{
		MaxFileSize:  1024,
		AllowedMIMEs: []string{"application/pdf", "text/plain"},
		APIPrefix:    "/api",
	})
	return f
}

var (
	studentActor    = &models.Principal{UserID: "stu-1", Role: models.RoleStudent}
	strangerActor   = &models.Principal{UserID: "stu-2", Role: models.RoleStudent}
	supervisorActor = &models.Principal{UserID: "sup-1", Role: models.RoleSupervisor}
	unassignedActor = &models.Principal{UserID: "sup-2", Role: models.RoleSupervisor}
	adminActor      = &models.Principal{UserID: "adm-1", Role: models.RoleAdmin}
)

func strPtr(value string) *string {
	return &value
}

func pendingResource(id string) *models.Resource {
	return &models.Resource{
		ID:           id,
		Title:        "Compiler Design Thesis",
		Type:         models.ResourceTypeThesis,
		Department:   "Computer Science",
		OwnerID:      "stu-1",
		SupervisorID: strPtr("sup-1"),
		Status:       models.ResourceStatusPending,
	}
}

func createRequest() dto.CreateResourceRequest {
	return dto.CreateResourceRequest{
		Title:        "Networks Past Exam 2023",
		Type:         models.ResourceTypePastExam,
		Department:   "Computer Science",
		SupervisorID: strPtr("sup-1"),
	}
}

func TestResourceServiceCreateWithUpload(t *testing.T) {
	f := newResourceFixture(t)
	body := []byte("%PDF-1.4 small file")
	upload := &ResourceUpload{Filename: "exam.pdf", Size: int64(len(body)), ContentType: "application/pdf", Content: bytes.NewReader(body)}

	res, err := f.svc.Create(context.Background(), studentActor, createRequest(), upload)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStatusPending, res.Status)
	assert.Equal(t, "stu-1", res.OwnerID)
	assert.Equal(t, res.ID+".pdf", res.FilePath)
	assert.Equal(t, "exam.pdf", res.FileName)
	assert.EqualValues(t, len(body), res.SizeBytes)
	require.Len(t, f.notifier.submitted, 1)
	assert.Equal(t, "sup-1", f.notifier.submitted[0].UserID)
	assert.Equal(t, models.NotificationResourceSubmitted, f.notifier.submitted[0].Kind)
	assert.Equal(t, []string{dashboardCachePattern}, f.cache.patterns)

	download, err := f.svc.Download(context.Background(), studentActor, res.ID)
	require.NoError(t, err)
	defer download.File.Close()
	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Equal(t, body, content)
	assert.Equal(t, 1, f.repo.downloads)
}

func TestResourceServiceCreateValidation(t *testing.T) {
	f := newResourceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, studentActor, createRequest(), nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation, "file or fileUrl required")

	req := createRequest()
	req.Type = "essay"
	req.FileURL = "https://example.org/file.pdf"
	_, err = f.svc.Create(ctx, studentActor, req, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = createRequest()
	req.SupervisorID = strPtr("stu-1")
	req.FileURL = "https://example.org/file.pdf"
	_, err = f.svc.Create(ctx, studentActor, req, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation, "supervisor must hold the supervisor role")

	big := bytes.Repeat([]byte("a"), 2048)
	_, err = f.svc.Create(ctx, studentActor, createRequest(), &ResourceUpload{Filename: "big.txt", Size: int64(len(big)), ContentType: "text/plain", Content: bytes.NewReader(big)})
	assert.ErrorIs(t, err, appErrors.ErrPayloadTooLarge)

	_, err = f.svc.Create(ctx, studentActor, createRequest(), &ResourceUpload{Filename: "x.png", Size: 3, ContentType: "image/png", Content: bytes.NewReader([]byte("png"))})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	f.settings.strings[SettingUploadAllowedTypes] = "image/png"
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err = f.svc.Create(ctx, studentActor, createRequest(), &ResourceUpload{Filename: "x.png", Size: int64(len(png)), ContentType: "image/png", Content: bytes.NewReader(png)})
	assert.NoError(t, err)
}

func TestResourceServiceCreateRejectsMislabelledUpload(t *testing.T) {
	f := newResourceFixture(t)
	ctx := context.Background()

	html := []byte("<html><script>alert(1)</script></html>")
	_, err := f.svc.Create(ctx, studentActor, createRequest(), &ResourceUpload{Filename: "exam.pdf", Size: int64(len(html)), ContentType: "application/pdf", Content: bytes.NewReader(html)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Create(ctx, studentActor, createRequest(), &ResourceUpload{Filename: "exam.pdf", Size: int64(len(html)), Content: bytes.NewReader(html)})
	assert.ErrorIs(t, err, appErrors.ErrValidation, "sniffed text/html is not an allowed type")
	assert.Len(t, f.repo.items, 0)

	notes := []byte("lecture notes, week 3")
	res, err := f.svc.Create(ctx, studentActor, createRequest(), &ResourceUpload{Filename: "notes.txt", Size: int64(len(notes)), ContentType: "application/octet-stream", Content: bytes.NewReader(notes)})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", res.MimeType)
}

func TestResourceServiceCreateWithExternalURL(t *testing.T) {
	f := newResourceFixture(t)
	req := createRequest()
	req.FileURL = "https://drive.example.org/exam.pdf"

	res, err := f.svc.Create(context.Background(), studentActor, req, nil)
	require.NoError(t, err)
	assert.Equal(t, req.FileURL, res.FileURL)

	download, err := f.svc.Download(context.Background(), studentActor, res.ID)
	require.NoError(t, err)
	assert.Equal(t, req.FileURL, download.RedirectURL)
}

func TestResourceServiceReviewRejectStoresReasonVerbatim(t *testing.T) {
	f := newResourceFixture(t, pendingResource("r1"))

	res, err := f.svc.Review(context.Background(), supervisorActor, "r1", dto.ReviewResourceRequest{
		Status:          models.ResourceStatusRejected,
		RejectionReason: strPtr("Incomplete methodology"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ResourceStatusRejected, res.Status)
	require.NotNil(t, res.RejectionReason)
	assert.Equal(t, "Incomplete methodology", *res.RejectionReason)
	assert.Equal(t, "Incomplete methodology", *f.repo.items["r1"].RejectionReason)

	require.Len(t, f.repo.notifications, 1)
	require.Len(t, f.notifier.enqueued, 1)
	assert.Same(t, f.repo.notifications[0], f.notifier.enqueued[0])
	assert.Equal(t, "stu-1", f.notifier.enqueued[0].UserID)
	assert.True(t, strings.Contains(f.notifier.enqueued[0].Message, "Incomplete methodology"))
	assert.Contains(t, f.cache.patterns, dashboardCachePattern)
}

func TestResourceServiceReviewDoesNotWaitOnNotificationBacklog(t *testing.T) {
	notifier := NewNotificationService(newNotificationRepoStub(), stalledPublisher{}, nil, nil, zap.NewNop(), NotificationConfig{
		Workers:          1,
		BufferSize:       1,
		RecoveryInterval: time.Hour,
	})
	notifier.Start(context.Background())
	defer notifier.Stop()
	for _, id := range []string{"backlog-1", "backlog-2", "backlog-3"} {
		require.NoError(t, notifier.Submit(context.Background(), &models.Notification{ID: id, UserID: "stu-9"}))
	}

	f := newResourceFixture(t, pendingResource("r1"))
	f.svc.notifier = notifier

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Review(context.Background(), supervisorActor, "r1", dto.ReviewResourceRequest{Status: models.ResourceStatusApproved})
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("committed review waited on the notification queue")
	}
	assert.Equal(t, models.ResourceStatusApproved, f.repo.items["r1"].Status)
	require.Len(t, f.repo.notifications, 1)
}

func TestResourceServiceReviewRules(t *testing.T) {
	approved := pendingResource("done")
	approved.Status = models.ResourceStatusApproved
	f := newResourceFixture(t, pendingResource("r1"), approved)
	ctx := context.Background()
	approve := dto.ReviewResourceRequest{Status: models.ResourceStatusApproved}

	_, err := f.svc.Review(ctx, studentActor, "r1", approve)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Review(ctx, unassignedActor, "r1", approve)
	assert.ErrorIs(t, err, appErrors.ErrForbidden, "supervisor not assigned")

	_, err = f.svc.Review(ctx, supervisorActor, "done", dto.ReviewResourceRequest{Status: models.ResourceStatusRejected})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = f.svc.Review(ctx, adminActor, "missing", approve)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Review(ctx, adminActor, "r1", dto.ReviewResourceRequest{Status: models.ResourceStatusPending})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	f.settings.bools[SettingRequireApprovalReason] = true
	_, err = f.svc.Review(ctx, adminActor, "r1", approve)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	res, err := f.svc.Review(ctx, adminActor, "r1", dto.ReviewResourceRequest{Status: models.ResourceStatusApproved, Reason: strPtr("Solid work")})
	require.NoError(t, err)
	assert.Equal(t, "Solid work", *res.ApprovalReason)

	_, err = f.svc.Review(ctx, adminActor, "r1", dto.ReviewResourceRequest{Status: models.ResourceStatusRejected})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestResourceServiceVisibility(t *testing.T) {
	approved := pendingResource("public")
	approved.Status = models.ResourceStatusApproved
	f := newResourceFixture(t, pendingResource("r1"), approved)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, strangerActor, "r1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = f.svc.Get(ctx, unassignedActor, "r1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	for _, p := range []*models.Principal{studentActor, supervisorActor, adminActor} {
		_, err = f.svc.Get(ctx, p, "r1")
		assert.NoError(t, err, p.UserID)
	}
	res, err := f.svc.Get(ctx, strangerActor, "public")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Views)
}

func TestResourceServiceUpdateAndDelete(t *testing.T) {
	approved := pendingResource("done")
	approved.Status = models.ResourceStatusApproved
	f := newResourceFixture(t, pendingResource("r1"), approved)
	ctx := context.Background()

	res, err := f.svc.Update(ctx, studentActor, "r1", dto.UpdateResourceRequest{Title: strPtr("  Renamed  ")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", res.Title)

	_, err = f.svc.Update(ctx, supervisorActor, "r1", dto.UpdateResourceRequest{Title: strPtr("x")})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Update(ctx, studentActor, "done", dto.UpdateResourceRequest{Title: strPtr("x")})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	err = f.svc.Delete(ctx, studentActor, "done")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	require.NoError(t, f.svc.Delete(ctx, adminActor, "done"))
	_, err = f.svc.Get(ctx, adminActor, "done")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, studentActor, "r1"))
}

func TestResourceServiceSignedLink(t *testing.T) {
	f := newResourceFixture(t)
	body := []byte("plain text notes")
	res, err := f.svc.Create(context.Background(), studentActor, createRequest(), &ResourceUpload{Filename: "notes.txt", Size: int64(len(body)), Content: bytes.NewReader(body)})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", res.MimeType)

	link, err := f.svc.Link(context.Background(), studentActor, res.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "/api/files/"))

	token := strings.TrimPrefix(link.URL, "/api/files/")
	download, err := f.svc.OpenSigned(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "notes.txt", download.Filename)

	_, err = f.svc.OpenSigned(context.Background(), token+"x")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestResourceServiceListRejectsUnknownFilters(t *testing.T) {
	f := newResourceFixture(t, pendingResource("r1"))
	_, _, err := f.svc.List(context.Background(), studentActor, models.ResourceFilter{Status: "archived"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	items, page, err := f.svc.List(context.Background(), adminActor, models.ResourceFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, page.TotalCount)
}
