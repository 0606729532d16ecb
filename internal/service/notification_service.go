package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
	"github.com/noah-isme/docrepo-api/pkg/jobs"
)

const notificationJobType = "notification.deliver"

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string, readAt time.Time) error
	MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int64, error)
	MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error
	RecordAttempt(ctx context.Context, id string) error
	ListUndelivered(ctx context.Context, olderThan time.Time, limit int) ([]models.Notification, error)
}

type notificationPublisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) (int64, error)
}

type sessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// NotificationConfig tunes the outbox dispatcher.
type NotificationConfig struct {
	Workers          int
	BufferSize       int
	MaxRetries       int
	RetryDelay       time.Duration
	RecoveryInterval time.Duration
	RecoveryBatch    int
	ChannelPrefix    string
}

// NotificationService delivers outbox rows written alongside resource reviews and serves
// the user-facing notification inbox. Delivery is at-least-once: rows missed by the queue
// are picked up again by the maintenance tick.
type NotificationService struct {
	repo      notificationRepository
	publisher notificationPublisher
	purger    sessionPurger
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       NotificationConfig
	queue     *jobs.Queue
	now       func() time.Time

	mu      sync.Mutex
	stop    context.CancelFunc
	stopped chan struct{}

	queuedMu sync.Mutex
	queued   map[string]struct{}
}

// NewNotificationService wires the dispatcher queue. publisher and purger may be nil.
func NewNotificationService(repo notificationRepository, publisher notificationPublisher, purger sessionPurger, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = time.Minute
	}
	if cfg.RecoveryBatch <= 0 {
		cfg.RecoveryBatch = 100
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "notifications"
	}
	s := &NotificationService{
		repo:      repo,
		publisher: publisher,
		purger:    purger,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		queued:    make(map[string]struct{}),
	}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		DeadLetter: func(job jobs.Job, err error) {
			s.release(job.ID)
			logger.Error("notification delivery abandoned until next recovery", zap.String("notification_id", job.ID), zap.Error(err))
		},
		Logger: logger,
	})
	return s
}

// Start launches the delivery workers and the maintenance loop.
func (s *NotificationService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.stopped = make(chan struct{})
	s.queue.Start(runCtx)
	go s.maintain(runCtx)
}

// Stop halts the maintenance loop and drains the workers.
func (s *NotificationService) Stop() {
	s.mu.Lock()
	cancel, done := s.stop, s.stopped
	s.stop = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.queue.Stop()
}

// Enqueue schedules delivery of a committed notification without blocking the caller.
// A full queue leaves the row to the maintenance tick.
func (s *NotificationService) Enqueue(n *models.Notification) {
	if s == nil || n == nil {
		return
	}
	if err := s.tryEnqueue(n.ID); err != nil && !errors.Is(err, errAlreadyQueued) {
		s.logger.Warn("notification left for recovery", zap.String("notification_id", n.ID), zap.Error(err))
	}
}

// Submit stores a notification in the outbox and schedules its delivery.
func (s *NotificationService) Submit(ctx context.Context, n *models.Notification) error {
	if err := s.repo.Create(ctx, n); err != nil {
		return internalError(err, "failed to create notification")
	}
	s.Enqueue(n)
	return nil
}

// Recover re-enqueues undelivered notifications older than one recovery interval. Rows
// already waiting in the queue are skipped and the scan stops once the queue is full.
func (s *NotificationService) Recover(ctx context.Context) (int, error) {
	pending, err := s.repo.ListUndelivered(ctx, s.now().Add(-s.cfg.RecoveryInterval), s.cfg.RecoveryBatch)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for i := range pending {
		err := s.tryEnqueue(pending[i].ID)
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, errAlreadyQueued):
		case errors.Is(err, jobs.ErrQueueFull):
			s.logger.Warn("notification queue full, recovery deferred", zap.Int("remaining", len(pending)-i))
			return enqueued, nil
		default:
			return enqueued, err
		}
	}
	return enqueued, nil
}

// List returns the caller's notifications and their unread count.
func (s *NotificationService) List(ctx context.Context, principal *models.Principal, unreadOnly bool, limit, offset int) ([]models.Notification, int, error) {
	if principal == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	items, err := s.repo.ListByUser(ctx, models.NotificationFilter{
		UserID:     principal.UserID,
		UnreadOnly: unreadOnly,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, 0, internalError(err, "failed to list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, principal.UserID)
	if err != nil {
		return nil, 0, internalError(err, "failed to count notifications")
	}
	return items, unread, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, principal *models.Principal, id string) error {
	if principal == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.MarkRead(ctx, id, principal.UserID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return internalError(err, "failed to update notification")
	}
	return nil
}

// MarkAllRead flags every unread notification of the caller.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal *models.Principal) (int64, error) {
	if principal == nil {
		return 0, appErrors.ErrUnauthorized
	}
	n, err := s.repo.MarkAllRead(ctx, principal.UserID, s.now())
	if err != nil {
		return 0, internalError(err, "failed to update notifications")
	}
	return n, nil
}

var errAlreadyQueued = errors.New("notification already queued")

func (s *NotificationService) tryEnqueue(id string) error {
	s.queuedMu.Lock()
	if _, ok := s.queued[id]; ok {
		s.queuedMu.Unlock()
		return errAlreadyQueued
	}
	s.queued[id] = struct{}{}
	s.queuedMu.Unlock()

	if err := s.queue.TryEnqueue(jobs.Job{ID: id, Type: notificationJobType, Payload: id}); err != nil {
		s.release(id)
		return err
	}
	return nil
}

func (s *NotificationService) release(id string) {
	s.queuedMu.Lock()
	delete(s.queued, id)
	s.queuedMu.Unlock()
}

// handle keeps the id marked as queued while the queue still retries it.
func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	if err := s.deliver(ctx, job); err != nil {
		return err
	}
	s.release(job.ID)
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		return nil
	}
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if n.DeliveredAt != nil {
		return nil
	}

	if s.publisher != nil {
		if _, err := s.publisher.Publish(ctx, s.channel(n.UserID), n); err != nil {
			s.metrics.RecordNotification(false)
			if attemptErr := s.repo.RecordAttempt(ctx, n.ID); attemptErr != nil {
				s.logger.Warn("failed to record notification attempt", zap.String("notification_id", n.ID), zap.Error(attemptErr))
			}
			return fmt.Errorf("publish notification: %w", err)
		}
	}

	if err := s.repo.MarkDelivered(ctx, n.ID, s.now()); err != nil {
		return err
	}
	s.metrics.RecordNotification(true)
	return nil
}

func (s *NotificationService) maintain(ctx context.Context) {
	defer close(s.stopped)
	ticker := time.NewTicker(s.cfg.RecoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *NotificationService) tick(ctx context.Context) {
	if n, err := s.Recover(ctx); err != nil {
		s.logger.Warn("notification recovery failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("re-enqueued undelivered notifications", zap.Int("count", n))
	}
	if s.purger == nil {
		return
	}
	if n, err := s.purger.PurgeExpiredSessions(ctx); err != nil {
		s.logger.Warn("session purge failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("purged expired sessions", zap.Int64("count", n))
	}
}

func (s *NotificationService) channel(userID string) string {
	return s.cfg.ChannelPrefix + ":" + userID
}
