package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/docrepo-api/internal/models"
)

const resourceSelect = `SELECT r.id, r.title, r.description, r.type, r.department, r.owner_id, o.full_name AS owner_name,
       r.supervisor_id, s.full_name AS supervisor_name, r.status, r.rejection_reason, r.approval_reason,
       r.reviewed_by, r.reviewed_at, r.file_name, r.file_path, r.file_url, r.mime_type, r.size_bytes,
       r.views, r.downloads, r.created_at, r.updated_at, r.deleted_at
FROM resources r
JOIN users o ON o.id = r.owner_id
LEFT JOIN users s ON s.id = r.supervisor_id`

// ResourceRepository handles resource metadata persistence.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs the repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create stores metadata for an uploaded resource.
func (r *ResourceRepository) Create(ctx context.Context, res *models.Resource) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = res.CreatedAt
	if res.Status == "" {
		res.Status = models.ResourceStatusPending
	}
	const query = `INSERT INTO resources
	(id, title, description, type, department, owner_id, supervisor_id, status, file_name, file_path, file_url, mime_type, size_bytes, created_at, updated_at)
	VALUES (:id, :title, :description, :type, :department, :owner_id, :supervisor_id, :status, :file_name, :file_path, :file_url, :mime_type, :size_bytes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, res); err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

// GetByID retrieves one non-deleted resource.
func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	query := resourceSelect + ` WHERE r.id = $1 AND r.deleted_at IS NULL`
	var res models.Resource
	if err := r.db.GetContext(ctx, &res, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return &res, nil
}

// List returns resources matching every provided filter, scoped by the viewer's role and
// ordered newest first.
func (r *ResourceRepository) List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error) {
	where, args := resourceConditions(filter)
	page, pageSize := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("%s WHERE %s ORDER BY r.created_at DESC LIMIT %d OFFSET %d", resourceSelect, where, pageSize, offset)
	var records []models.Resource
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list resources: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM resources r WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count resources: %w", err)
	}
	return records, total, nil
}

// UpdateMetadata persists editable fields.
func (r *ResourceRepository) UpdateMetadata(ctx context.Context, res *models.Resource) error {
	res.UpdatedAt = time.Now().UTC()
	const query = `UPDATE resources SET title = :title, description = :description, type = :type,
       department = :department, supervisor_id = :supervisor_id, updated_at = :updated_at
	WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, res)
	if err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	return expectAffected(result, "update resource")
}

// SoftDelete marks a resource as deleted.
func (r *ResourceRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE resources SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete resource: %w", err)
	}
	return expectAffected(res, "soft delete resource")
}

// IncrementViews bumps the detail-view counter.
func (r *ResourceRepository) IncrementViews(ctx context.Context, id string) error {
	const query = `UPDATE resources SET views = views + 1 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

// IncrementDownloads bumps the download counter.
func (r *ResourceRepository) IncrementDownloads(ctx context.Context, id string) error {
	const query = `UPDATE resources SET downloads = downloads + 1 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	return nil
}

// Review applies a status transition and writes the owner's notification in the same
// transaction. The update only matches pending rows; sql.ErrNoRows means the resource is
// missing or already reviewed.
func (r *ResourceRepository) Review(ctx context.Context, review models.ResourceReview, notification *models.Notification) error {
	var rejection, approval *string
	switch review.Status {
	case models.ResourceStatusRejected:
		rejection = review.Reason
		if rejection == nil {
			empty := ""
			rejection = &empty
		}
	case models.ResourceStatusApproved:
		approval = review.Reason
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin review tx: %w", err)
	}

	const update = `UPDATE resources SET status = $2, rejection_reason = $3, approval_reason = $4,
       reviewed_by = $5, reviewed_at = $6, updated_at = $6
	WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL`
	res, err := tx.ExecContext(ctx, update, review.ResourceID, review.Status, rejection, approval, review.ReviewerID, review.ReviewedAt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("review resource: %w", err)
	}
	if err := expectAffected(res, "review resource"); err != nil {
		_ = tx.Rollback()
		return err
	}

	if notification != nil {
		if err := insertNotification(ctx, tx, notification); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review tx: %w", err)
	}
	return nil
}

// StatusCounts groups the scoped resources by status with view/download totals.
func (r *ResourceRepository) StatusCounts(ctx context.Context, filter models.ResourceFilter) ([]models.StatusCount, error) {
	where, args := resourceConditions(filter)
	query := fmt.Sprintf(`SELECT r.status, COUNT(*) AS count, COALESCE(SUM(r.views), 0) AS views, COALESCE(SUM(r.downloads), 0) AS downloads
FROM resources r WHERE %s GROUP BY r.status`, where)
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count resources by status: %w", err)
	}
	return counts, nil
}

// TypeCounts groups the scoped resources by type.
func (r *ResourceRepository) TypeCounts(ctx context.Context, filter models.ResourceFilter) ([]models.TypeCount, error) {
	where, args := resourceConditions(filter)
	query := fmt.Sprintf(`SELECT r.type, COUNT(*) AS count FROM resources r WHERE %s GROUP BY r.type`, where)
	var counts []models.TypeCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count resources by type: %w", err)
	}
	return counts, nil
}

// resourceConditions renders the WHERE clause shared by listing and statistics.
func resourceConditions(filter models.ResourceFilter) (string, []interface{}) {
	args := make([]interface{}, 0, 8)
	conditions := []string{"r.deleted_at IS NULL"}

	switch filter.ViewerRole {
	case models.RoleStudent:
		args = append(args, filter.ViewerID)
		conditions = append(conditions, fmt.Sprintf("(r.owner_id = $%d OR r.status = 'approved')", len(args)))
	case models.RoleSupervisor:
		args = append(args, filter.ViewerID)
		conditions = append(conditions, fmt.Sprintf("(r.owner_id = $%d OR r.supervisor_id = $%d)", len(args), len(args)))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if filter.SupervisorID != "" {
		args = append(args, filter.SupervisorID)
		conditions = append(conditions, fmt.Sprintf("r.supervisor_id = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conditions = append(conditions, fmt.Sprintf("r.department = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("r.type = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("r.owner_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(r.title) LIKE $%d OR LOWER(r.description) LIKE $%d)", len(args), len(args)))
	}
	return strings.Join(conditions, " AND "), args
}

func expectAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
