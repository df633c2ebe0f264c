package repository

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Account{},
		&model.Matter{},
		&model.ActivityLine{},
		&model.AuditLog{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, role string) *model.User {
	t.Helper()
	u := &model.User{
		Username: "u-" + uuid.NewString()[:8],
		Email:    uuid.NewString()[:8] + "@firm.test",
		FullName: "Test User",
		Password: "x",
		Role:     role,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedAccount(t *testing.T, db *gorm.DB, title string) *model.Account {
	t.Helper()
	a := &model.Account{Title: title, Category: model.AccountLitigation}
	require.NoError(t, db.Create(a).Error)
	return a
}

func makeLine(batchID uuid.UUID, lineNo int, accountID, userID uuid.UUID) *model.ActivityLine {
	return &model.ActivityLine{
		BatchID:      batchID,
		LineNo:       lineNo,
		TaskCategory: "appearance_fee",
		EntryClass:   model.EntryClassService,
		Amount:       decimal.NewFromInt(1000),
		Description:  "Venue: - | Case Type: - | Tracker Status: - | Source: activity_log",
		AccountID:    accountID,
		CreatedBy:    userID,
		PerformedBy:  userID,
		OccurredAt:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local),
	}
}

func TestSaveLinesStampsDraftWindow(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	batchID := uuid.New()
	now := time.Now()

	line := makeLine(batchID, 1, account.ID, user.ID)
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{line}, model.StatusDraft, now))

	stored, err := repo.FindByID(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, stored.Status)
	require.NotNil(t, stored.DraftExpiresAt)
	assert.WithinDuration(t, now.Add(model.DraftTTL), *stored.DraftExpiresAt, time.Second)
	assert.Nil(t, stored.SubmittedAt)
}

func TestSaveLinesSubmitStampsSubmittedAt(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	now := time.Now()

	line := makeLine(uuid.New(), 1, account.ID, user.ID)
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{line}, model.StatusPending, now))

	stored, err := repo.FindByID(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	require.NotNil(t, stored.SubmittedAt)
	assert.Nil(t, stored.DraftExpiresAt)
}

// Re-saving the same (batch_id, line_no) overwrites in place instead of
// duplicating the row.
func TestSaveLinesUpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	batchID := uuid.New()
	now := time.Now()

	first := makeLine(batchID, 1, account.ID, user.ID)
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{first}, model.StatusDraft, now))

	second := makeLine(batchID, 1, account.ID, user.ID)
	second.Amount = decimal.NewFromInt(2500)
	second.TaskCategory = "pleading_major"
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{second}, model.StatusDraft, now))

	var count int64
	require.NoError(t, db.Model(&model.ActivityLine{}).Where("batch_id = ?", batchID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stored, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2500).Equal(stored.Amount))
	assert.Equal(t, "pleading_major", stored.TaskCategory)
}

func TestDeleteLinesNotIn(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	batchID := uuid.New()
	now := time.Now()

	lines := []*model.ActivityLine{
		makeLine(batchID, 1, account.ID, user.ID),
		makeLine(batchID, 2, account.ID, user.ID),
		makeLine(batchID, 3, account.ID, user.ID),
	}
	require.NoError(t, repo.SaveLines(ctx, lines, model.StatusDraft, now))

	// Row 2 was cleared in the worksheet.
	require.NoError(t, repo.DeleteLinesNotIn(ctx, batchID, []int{1, 3}))

	remaining, err := repo.LoadDraftBatch(ctx, batchID, user.ID, now)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, 1, remaining[0].LineNo)
	assert.Equal(t, 3, remaining[1].LineNo)
}

func TestLoadDraftBatchFallsBackToLineID(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	now := time.Now()

	line := makeLine(uuid.New(), 1, account.ID, user.ID)
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{line}, model.StatusDraft, now))

	// Key is the row id, not the batch id.
	got, err := repo.LoadDraftBatch(ctx, line.ID, user.ID, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, line.ID, got[0].ID)
}

func TestLoadDraftBatchExcludesExpiredAndForeign(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	owner := seedUser(t, db, model.RoleStaff)
	other := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	batchID := uuid.New()
	now := time.Now()

	// Saved 31 minutes ago; edit window has elapsed.
	line := makeLine(batchID, 1, account.ID, owner.ID)
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{line}, model.StatusDraft, now.Add(-31*time.Minute)))

	got, err := repo.LoadDraftBatch(ctx, batchID, owner.ID, now)
	require.NoError(t, err)
	assert.Empty(t, got, "expired drafts are no longer editable")

	// Fresh draft, but a different author asks for it.
	fresh := makeLine(uuid.New(), 1, account.ID, owner.ID)
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{fresh}, model.StatusDraft, now))
	got, err = repo.LoadDraftBatch(ctx, fresh.BatchID, other.ID, now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// A delete hitting a batch where one row's edit window elapsed removes the
// editable rows only and reports the partial outcome.
func TestDeleteDraftBatchPartial(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	batchID := uuid.New()
	now := time.Now()

	editable := makeLine(batchID, 1, account.ID, user.ID)
	editable.AttachmentURLs = []string{"receipts:activities/x/y/line-1/r.pdf"}
	expired := makeLine(batchID, 2, account.ID, user.ID)

	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{editable}, model.StatusDraft, now))
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{expired}, model.StatusDraft, now.Add(-31*time.Minute)))

	outcome, err := repo.DeleteDraftBatch(ctx, batchID, user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), outcome.Requested)
	assert.Equal(t, int64(1), outcome.Deleted)
	assert.Equal(t, []string{"receipts:activities/x/y/line-1/r.pdf"}, outcome.Attachments)

	// The expired row survived.
	var count int64
	require.NoError(t, db.Model(&model.ActivityLine{}).Where("batch_id = ?", batchID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTransitionStatusGuards(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	approver := seedUser(t, db, model.RoleAccountant)
	account := seedAccount(t, db, "Acme")
	now := time.Now()

	line := makeLine(uuid.New(), 1, account.ID, user.ID)
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{line}, model.StatusPending, now))

	stored, err := repo.FindByID(ctx, line.ID)
	require.NoError(t, err)

	ok, err := repo.TransitionStatus(ctx, stored.ID, model.StatusPending, stored.UpdatedAt, map[string]interface{}{
		"status":      model.StatusApproved,
		"approved_at": time.Now(),
		"approved_by": approver.ID,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// Same guard again: the row moved on, so the stale update must not apply.
	ok, err = repo.TransitionStatus(ctx, stored.ID, model.StatusPending, stored.UpdatedAt, map[string]interface{}{
		"status": model.StatusRejected,
	})
	require.NoError(t, err)
	assert.False(t, ok, "concurrent transition must be reported, not applied")

	final, err := repo.FindByID(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, final.Status)
}

func TestListQueuePendingIncludesExpiredDrafts(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	now := time.Now()

	fresh := makeLine(uuid.New(), 1, account.ID, user.ID)
	expiredDraft := makeLine(uuid.New(), 1, account.ID, user.ID)
	pending := makeLine(uuid.New(), 1, account.ID, user.ID)

	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{fresh}, model.StatusDraft, now))
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{expiredDraft}, model.StatusDraft, now.Add(-31*time.Minute)))
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{pending}, model.StatusPending, now))

	items, total, err := repo.ListQueue(ctx, []string{model.StatusPending}, "", now, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	ids := map[uuid.UUID]bool{}
	for _, it := range items {
		ids[it.ID] = true
	}
	assert.True(t, ids[expiredDraft.ID], "expired draft belongs in the pending view")
	assert.True(t, ids[pending.ID])
	assert.False(t, ids[fresh.ID], "unexpired draft stays out of the queue")
}

func TestStatusCounts(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	now := time.Now()

	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{makeLine(uuid.New(), 1, account.ID, user.ID)}, model.StatusDraft, now))
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{makeLine(uuid.New(), 1, account.ID, user.ID)}, model.StatusDraft, now.Add(-31*time.Minute)))
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{makeLine(uuid.New(), 1, account.ID, user.ID)}, model.StatusPending, now))

	counts, err := repo.StatusCounts(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.StatusDraft])
	assert.Equal(t, int64(2), counts[model.StatusPending], "expired draft counts as pending")
	assert.Equal(t, int64(0), counts[model.StatusApproved])
}

func TestListDraftsAndRecentByUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	user := seedUser(t, db, model.RoleStaff)
	account := seedAccount(t, db, "Acme")
	now := time.Now()

	draft := makeLine(uuid.New(), 1, account.ID, user.ID)
	submitted := makeLine(uuid.New(), 1, account.ID, user.ID)
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{draft}, model.StatusDraft, now))
	require.NoError(t, repo.SaveLines(ctx, []*model.ActivityLine{submitted}, model.StatusPending, now))

	drafts, err := repo.ListDraftsByUser(ctx, user.ID, now)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)

	recent, err := repo.ListRecentByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
