package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type lifecycleFixture struct {
	db      *gorm.DB
	svc     LifecycleService
	repo    repository.ActivityRepository
	events  *fakeBroadcaster
	staff   *model.User
	lawyer  *model.User
	acct    *model.User
	admin   *model.User
	account *model.Account
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	db := newTestDB(t)
	events := &fakeBroadcaster{}
	activityRepo := repository.NewActivityRepository(db)
	f := &lifecycleFixture{
		db:      db,
		repo:    activityRepo,
		events:  events,
		svc:     NewLifecycleService(activityRepo, repository.NewAuditRepository(db), repository.NewTransactionManager(db), events),
		staff:   seedUser(t, db, model.RoleStaff),
		lawyer:  seedUser(t, db, model.RoleLawyer),
		acct:    seedUser(t, db, model.RoleAccountant),
		admin:   seedUser(t, db, model.RoleAdmin),
		account: seedAccount(t, db, "Acme", model.AccountLitigation),
	}
	return f
}

func (f *lifecycleFixture) seedLine(t *testing.T, status string, savedAt time.Time) *model.ActivityLine {
	t.Helper()
	line := &model.ActivityLine{
		BatchID:      uuid.New(),
		LineNo:       1,
		TaskCategory: "appearance_fee",
		EntryClass:   model.EntryClassService,
		Amount:       decimal.NewFromInt(1500),
		Description:  "Venue: - | Case Type: - | Tracker Status: - | Source: activity_log",
		AccountID:    f.account.ID,
		CreatedBy:    f.staff.ID,
		PerformedBy:  f.staff.ID,
		OccurredAt:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local),
	}
	require.NoError(t, f.repo.SaveLines(context.Background(), []*model.ActivityLine{line}, status, savedAt))
	return line
}

func TestApprovePendingLine(t *testing.T) {
	f := newLifecycleFixture(t)
	line := f.seedLine(t, model.StatusPending, time.Now())

	result, err := f.svc.Approve(context.Background(), actorFor(f.acct), line.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, result.Status)
	require.NotNil(t, result.ApprovedAt)
	require.NotNil(t, result.ApprovedBy)
	assert.Equal(t, f.acct.ID, *result.ApprovedBy)

	assert.Equal(t, []string{model.ActionApproveLine}, auditActions(t, f.db, line.ID.String()))
	assert.Equal(t, 1, f.events.count())
}

func TestApproveForbiddenForNonApprovers(t *testing.T) {
	f := newLifecycleFixture(t)
	line := f.seedLine(t, model.StatusPending, time.Now())

	_, err := f.svc.Approve(context.Background(), actorFor(f.staff), line.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Approve(context.Background(), actorFor(f.lawyer), line.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newLifecycleFixture(t)
	line := f.seedLine(t, model.StatusPending, time.Now())

	_, err := f.svc.Reject(context.Background(), actorFor(f.acct), line.ID, "   ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	result, err := f.svc.Reject(context.Background(), actorFor(f.acct), line.ID, "No supporting receipt")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, result.Status)
	assert.Equal(t, "No supporting receipt", result.RejectedReason)
}

// There is no skip-state path: each transition starts from exactly one status.
func TestNoSkipStateTransitions(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	pending := f.seedLine(t, model.StatusPending, time.Now())
	_, err := f.svc.MarkBilled(ctx, actorFor(f.acct), pending.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending cannot jump to billed")
	_, err = f.svc.Complete(ctx, actorFor(f.admin), pending.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending cannot jump to completed")

	approved, err := f.svc.Approve(ctx, actorFor(f.acct), pending.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, actorFor(f.acct), approved.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "approved cannot be approved again")
	_, err = f.svc.Complete(ctx, actorFor(f.admin), approved.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "approved cannot jump to completed")

	billed, err := f.svc.MarkBilled(ctx, actorFor(f.acct), approved.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBilled, billed.Status)
	require.NotNil(t, billed.BillingStatus)
	assert.Equal(t, model.BillingBilled, *billed.BillingStatus)

	completed, err := f.svc.Complete(ctx, actorFor(f.admin), billed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)
}

func TestCompleteRequiresSeniorApprover(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	line := f.seedLine(t, model.StatusPending, time.Now())
	_, err := f.svc.Approve(ctx, actorFor(f.acct), line.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkBilled(ctx, actorFor(f.acct), line.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, actorFor(f.acct), line.ID)
	assert.ErrorIs(t, err, ErrForbidden, "accountants cannot complete")

	_, err = f.svc.Complete(ctx, actorFor(f.admin), line.ID)
	require.NoError(t, err)
}

// Acting on an expired draft promotes it to pending first, in the same
// transaction, then applies the transition. submitted_at is backfilled to
// the moment of the action, never left null behind approved_at.
func TestApproveExpiredDraftPromotesFirst(t *testing.T) {
	f := newLifecycleFixture(t)
	line := f.seedLine(t, model.StatusDraft, time.Now().Add(-2*time.Hour))

	result, err := f.svc.Approve(context.Background(), actorFor(f.acct), line.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, result.Status)
	assert.Nil(t, result.DraftExpiresAt)
	require.NotNil(t, result.SubmittedAt)
	require.NotNil(t, result.ApprovedAt)
	assert.WithinDuration(t, time.Now(), *result.SubmittedAt, 5*time.Second)
	assert.False(t, result.ApprovedAt.Before(*result.SubmittedAt))

	assert.Equal(t,
		[]string{model.ActionPromoteExpiredDraft, model.ActionApproveLine},
		auditActions(t, f.db, line.ID.String()))
}

func TestUnexpiredDraftCannotBeApproved(t *testing.T) {
	f := newLifecycleFixture(t)
	line := f.seedLine(t, model.StatusDraft, time.Now())

	_, err := f.svc.Approve(context.Background(), actorFor(f.acct), line.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionOnMissingLine(t *testing.T) {
	f := newLifecycleFixture(t)
	_, err := f.svc.Approve(context.Background(), actorFor(f.acct), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
