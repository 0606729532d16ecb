package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/docrepo-api/internal/models"
	appErrors "github.com/noah-isme/docrepo-api/pkg/errors"
)

type dashboardResourceRepository interface {
	List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error)
	StatusCounts(ctx context.Context, filter models.ResourceFilter) ([]models.StatusCount, error)
	TypeCounts(ctx context.Context, filter models.ResourceFilter) ([]models.TypeCount, error)
}

type roleCounter interface {
	CountByRole(ctx context.Context) ([]models.RoleCount, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL    time.Duration
	RecentLimit int
}

// DashboardService composes role-specific resource statistics.
type DashboardService struct {
	resources dashboardResourceRepository
	users     roleCounter
	cache     dashboardCache
	logger    *zap.Logger
	now       func() time.Time
	cfg       DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(resources dashboardResourceRepository, users roleCounter, cache dashboardCache, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		resources: resources,
		users:     users,
		cache:     cache,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		cfg:       cfg,
	}
}

// Stats returns the caller's dashboard and reports whether it was served from cache.
func (s *DashboardService) Stats(ctx context.Context, actor *models.Principal) (*models.DashboardStats, bool, error) {
	if actor == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	key := dashboardCacheKey(actor)
	if s.cache != nil {
		var cached models.DashboardStats
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			return &cached, true, nil
		}
	}

	stats, err := s.compose(ctx, actor)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return stats, false, nil
}

func (s *DashboardService) compose(ctx context.Context, actor *models.Principal) (*models.DashboardStats, error) {
	filter := models.ResourceFilter{ViewerID: actor.UserID, ViewerRole: actor.Role}
	// Students see approved resources of others in listings, but their dashboard counts
	// only their own uploads.
	if actor.Role == models.RoleStudent {
		filter.OwnerID = actor.UserID
	}

	statuses, err := s.resources.StatusCounts(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to count resources")
	}
	types, err := s.resources.TypeCounts(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to count resource types")
	}
	recentFilter := filter
	recentFilter.Page = 1
	recentFilter.PageSize = s.cfg.RecentLimit
	recent, _, err := s.resources.List(ctx, recentFilter)
	if err != nil {
		return nil, internalError(err, "failed to load recent resources")
	}
	if recent == nil {
		recent = []models.Resource{}
	}

	stats := &models.DashboardStats{
		Role:        actor.Role,
		ByType:      make(map[models.ResourceType]int64, len(types)),
		Recent:      recent,
		GeneratedAt: s.now(),
	}
	for _, row := range statuses {
		stats.Total += row.Count
		stats.TotalViews += row.Views
		stats.TotalDownloads += row.Downloads
		switch row.Status {
		case models.ResourceStatusPending:
			stats.Pending = row.Count
		case models.ResourceStatusApproved:
			stats.Approved = row.Count
		case models.ResourceStatusRejected:
			stats.Rejected = row.Count
		}
	}
	for _, row := range types {
		stats.ByType[row.Type] = row.Count
	}

	if actor.Role == models.RoleAdmin && s.users != nil {
		roles, err := s.users.CountByRole(ctx)
		if err != nil {
			return nil, internalError(err, "failed to count users")
		}
		stats.UsersByRole = make(map[models.UserRole]int64, len(roles))
		for _, row := range roles {
			stats.UsersByRole[row.Role] = row.Count
		}
	}
	return stats, nil
}

func dashboardCacheKey(actor *models.Principal) string {
	if actor.Role == models.RoleAdmin {
		return "dashboard:admin"
	}
	return fmt.Sprintf("dashboard:%s:%s", actor.Role, actor.UserID)
}
