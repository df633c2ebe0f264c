package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeleteOutcome reports what a draft-batch delete actually removed. Deleted
// may be lower than Requested when some rows crossed the edit window while the
// confirmation dialog was open.
type DeleteOutcome struct {
	Requested int64
	Deleted   int64
	// Attachment references of the deleted rows, for best-effort storage cleanup.
	Attachments []string
}

type ActivityRepository interface {
	// SaveLines persists a worksheet batch as a single idempotent upsert on
	// (batch_id, line_no): re-saving a line overwrites it in place. The
	// status-dependent timestamps are stamped here so every caller gets the
	// same draft window.
	SaveLines(ctx context.Context, lines []*model.ActivityLine, status string, now time.Time) error
	// DeleteLinesNotIn removes draft rows of the batch whose line_no is absent
	// from keep, so rows cleared in the worksheet disappear on the next save.
	DeleteLinesNotIn(ctx context.Context, batchID uuid.UUID, keep []int) error

	// LoadDraftBatch returns the still-editable draft rows for key, which is a
	// batch id or, as a fallback, a single line id. Only the author's rows
	// qualify.
	LoadDraftBatch(ctx context.Context, key, userID uuid.UUID, now time.Time) ([]model.ActivityLine, error)
	// DeleteDraftBatch removes the author's still-editable rows of the batch
	// and reports the partial-delete outcome.
	DeleteDraftBatch(ctx context.Context, batchID, userID uuid.UUID, now time.Time) (*DeleteOutcome, error)

	FindByID(ctx context.Context, id uuid.UUID) (*model.ActivityLine, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ActivityLine, error)

	// TransitionStatus applies a guarded status transition: the update is
	// conditioned on the previously observed status and updated_at, so a
	// concurrent transition makes this report false instead of silently
	// overwriting.
	TransitionStatus(ctx context.Context, id uuid.UUID, fromStatus string, seenUpdatedAt time.Time, updates map[string]interface{}) (bool, error)

	// ListQueue pages lines whose effective status is one of statuses; when
	// pending is requested, expired drafts are included. Search matches the
	// description and account title.
	ListQueue(ctx context.Context, statuses []string, search string, now time.Time, page, limit int) ([]model.ActivityLine, int64, error)
	// StatusCounts tallies lines per effective status for the queue KPIs.
	StatusCounts(ctx context.Context, now time.Time) (map[string]int64, error)

	// ListDraftsByUser returns the author's still-editable draft rows, newest
	// batch first.
	ListDraftsByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.ActivityLine, error)
	// ListRecentByUser returns the author's latest lines regardless of status.
	ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.ActivityLine, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

// upsertColumns are the columns a re-save may change. Identity and authorship
// columns are deliberately absent.
var upsertColumns = []string{
	"task_category", "fee_code", "entry_class", "expense_type",
	"amount", "minutes", "billable", "billing_status",
	"description", "matter", "matter_id",
	"account_id", "performed_by", "handling_lawyer_id",
	"attachment_urls", "occurred_at",
	"submitted_at", "draft_expires_at", "status", "updated_at",
}

func (r *activityRepository) SaveLines(ctx context.Context, lines []*model.ActivityLine, status string, now time.Time) error {
	if len(lines) == 0 {
		return nil
	}

	for _, line := range lines {
		line.Status = status
		switch status {
		case model.StatusDraft:
			expires := now.Add(model.DraftTTL)
			line.DraftExpiresAt = &expires
			line.SubmittedAt = nil
		case model.StatusPending:
			submitted := now
			line.SubmittedAt = &submitted
			line.DraftExpiresAt = nil
		}
	}

	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "batch_id"}, {Name: "line_no"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(&lines).Error
}

func (r *activityRepository) DeleteLinesNotIn(ctx context.Context, batchID uuid.UUID, keep []int) error {
	query := GetDB(ctx, r.db).
		Where("batch_id = ? AND status = ?", batchID, model.StatusDraft)
	if len(keep) > 0 {
		query = query.Where("line_no NOT IN ?", keep)
	}
	return query.Delete(&model.ActivityLine{}).Error
}

func (r *activityRepository) LoadDraftBatch(ctx context.Context, key, userID uuid.UUID, now time.Time) ([]model.ActivityLine, error) {
	db := GetDB(ctx, r.db)

	editable := db.
		Where("created_by = ? AND status = ?", userID, model.StatusDraft).
		Where("draft_expires_at IS NULL OR draft_expires_at > ?", now).
		Order("line_no ASC")

	var lines []model.ActivityLine
	if err := editable.Where("batch_id = ?", key).Find(&lines).Error; err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		return lines, nil
	}

	// Older rows were saved one at a time; fall back to treating the key as a
	// single line id.
	if err := editable.Where("id = ?", key).Limit(1).Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *activityRepository) DeleteDraftBatch(ctx context.Context, batchID, userID uuid.UUID, now time.Time) (*DeleteOutcome, error) {
	db := GetDB(ctx, r.db)
	outcome := &DeleteOutcome{}

	if err := db.Model(&model.ActivityLine{}).
		Where("batch_id = ? AND created_by = ?", batchID, userID).
		Count(&outcome.Requested).Error; err != nil {
		return nil, err
	}

	var deletable []model.ActivityLine
	if err := db.
		Where("batch_id = ? AND created_by = ? AND status = ?", batchID, userID, model.StatusDraft).
		Where("draft_expires_at IS NULL OR draft_expires_at > ?", now).
		Find(&deletable).Error; err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(deletable))
	for _, line := range deletable {
		ids = append(ids, line.ID)
		outcome.Attachments = append(outcome.Attachments, line.AttachmentURLs...)
	}
	if len(ids) == 0 {
		return outcome, nil
	}

	res := db.Where("id IN ?", ids).Delete(&model.ActivityLine{})
	if res.Error != nil {
		return nil, res.Error
	}
	outcome.Deleted = res.RowsAffected
	return outcome, nil
}

func (r *activityRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ActivityLine, error) {
	var line model.ActivityLine
	if err := GetDB(ctx, r.db).First(&line, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *activityRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ActivityLine, error) {
	var line model.ActivityLine
	if err := GetDB(ctx, r.db).
		Preload("Account").Preload("Creator").Preload("Performer").
		First(&line, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *activityRepository) TransitionStatus(ctx context.Context, id uuid.UUID, fromStatus string, seenUpdatedAt time.Time, updates map[string]interface{}) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ActivityLine{}).
		Where("id = ? AND status = ? AND updated_at = ?", id, fromStatus, seenUpdatedAt).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// effectiveStatusScope builds the WHERE clause matching statuses against the
// effective status: an unexpired draft is draft, an expired one is pending.
func effectiveStatusScope(db *gorm.DB, statuses []string, now time.Time) *gorm.DB {
	var plain []string
	wantPending := false
	wantDraft := false
	for _, s := range statuses {
		switch s {
		case model.StatusPending:
			wantPending = true
		case model.StatusDraft:
			wantDraft = true
		default:
			plain = append(plain, s)
		}
	}

	cond := db.Session(&gorm.Session{NewDB: true}).Where("1 = 0")
	if len(plain) > 0 {
		cond = cond.Or("status IN ?", plain)
	}
	if wantPending {
		cond = cond.Or("status = ?", model.StatusPending)
		cond = cond.Or("status = ? AND draft_expires_at IS NOT NULL AND draft_expires_at <= ?", model.StatusDraft, now)
	}
	if wantDraft {
		cond = cond.Or("status = ? AND (draft_expires_at IS NULL OR draft_expires_at > ?)", model.StatusDraft, now)
	}
	return db.Where(cond)
}

func (r *activityRepository) ListQueue(ctx context.Context, statuses []string, search string, now time.Time, page, limit int) ([]model.ActivityLine, int64, error) {
	db := GetDB(ctx, r.db)

	scope := func() *gorm.DB {
		q := effectiveStatusScope(db.Model(&model.ActivityLine{}), statuses, now)
		if search != "" {
			pattern := "%" + search + "%"
			q = q.Where(
				"description LIKE ? OR matter LIKE ? OR account_id IN (?)",
				pattern, pattern,
				db.Session(&gorm.Session{NewDB: true}).Model(&model.Account{}).Select("id").Where("title LIKE ?", pattern),
			)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var lines []model.ActivityLine
	offset := (page - 1) * limit
	if err := scope().
		Preload("Account").Preload("Creator").Preload("Performer").
		Order("occurred_at DESC, created_at DESC").
		Offset(offset).Limit(limit).
		Find(&lines).Error; err != nil {
		return nil, 0, err
	}

	return lines, total, nil
}

func (r *activityRepository) StatusCounts(ctx context.Context, now time.Time) (map[string]int64, error) {
	db := GetDB(ctx, r.db)
	counts := map[string]int64{}

	for _, status := range []string{
		model.StatusDraft, model.StatusPending, model.StatusApproved,
		model.StatusRejected, model.StatusBilled, model.StatusCompleted,
	} {
		var n int64
		q := effectiveStatusScope(db.Model(&model.ActivityLine{}), []string{status}, now)
		if err := q.Count(&n).Error; err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}

func (r *activityRepository) ListDraftsByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.ActivityLine, error) {
	var lines []model.ActivityLine
	err := GetDB(ctx, r.db).
		Preload("Account").
		Where("created_by = ? AND status = ?", userID, model.StatusDraft).
		Where("draft_expires_at IS NULL OR draft_expires_at > ?", now).
		Order("updated_at DESC, line_no ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *activityRepository) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.ActivityLine, error) {
	var lines []model.ActivityLine
	err := GetDB(ctx, r.db).
		Preload("Account").
		Where("created_by = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}
