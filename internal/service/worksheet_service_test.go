package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/worksheet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func amt(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

type worksheetFixture struct {
	db      *gorm.DB
	svc     WorksheetService
	store   *fakeStore
	events  *fakeBroadcaster
	staff   *model.User
	lawyer  *model.User
	account *model.Account
}

func newWorksheetFixture(t *testing.T) *worksheetFixture {
	db := newTestDB(t)
	store := newFakeStore()
	events := &fakeBroadcaster{}
	svc := NewWorksheetService(
		repository.NewAccountRepository(db),
		repository.NewMatterRepository(db),
		repository.NewActivityRepository(db),
		repository.NewAuditRepository(db),
		repository.NewTransactionManager(db),
		store,
		events,
		25*time.Millisecond,
		5*time.Millisecond,
	)
	return &worksheetFixture{
		db:      db,
		svc:     svc,
		store:   store,
		events:  events,
		staff:   seedUser(t, db, model.RoleStaff),
		lawyer:  seedUser(t, db, model.RoleLawyer),
		account: seedAccount(t, db, "Acme Corp", model.AccountLitigation),
	}
}

func (f *worksheetFixture) input() WorksheetDTO {
	return WorksheetDTO{
		AccountID:     f.account.ID.String(),
		BillingStatus: model.BillingBillable,
		OccurredOn:    "2026-03-02",
		Lines: []WorksheetLineDTO{
			{LineNo: 1, Category: "appearance_fee", Amount: amt(1500), Minutes: 90, Notes: "Argued the motion"},
		},
	}
}

func (f *worksheetFixture) batchLines(t *testing.T, batchID uuid.UUID) []model.ActivityLine {
	t.Helper()
	var lines []model.ActivityLine
	require.NoError(t, f.db.Where("batch_id = ?", batchID).Order("line_no asc").Find(&lines).Error)
	return lines
}

func TestSaveDraftPersistsBatch(t *testing.T) {
	f := newWorksheetFixture(t)

	result, err := f.svc.SaveDraft(context.Background(), actorFor(f.staff), f.input(), true)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, result.BatchID, "a batch id is assigned on first save")
	assert.Equal(t, model.StatusDraft, result.Status)
	assert.Equal(t, 1, result.SavedLines)

	lines := f.batchLines(t, result.BatchID)
	require.Len(t, lines, 1)
	assert.Equal(t, model.StatusDraft, lines[0].Status)
	assert.NotNil(t, lines[0].DraftExpiresAt)
	assert.Equal(t, 90, lines[0].Minutes)
	assert.Contains(t, lines[0].Description, "Source: activity_log")
	assert.Contains(t, lines[0].Description, "Notes: Argued the motion")

	assert.Equal(t, []string{model.ActionSaveDraftBatch}, auditActions(t, f.db, result.BatchID.String()))
}

func TestSaveDraftRejectsArchivedAccount(t *testing.T) {
	f := newWorksheetFixture(t)
	require.NoError(t, f.db.Model(f.account).Update("is_archived", true).Error)

	_, err := f.svc.SaveDraft(context.Background(), actorFor(f.staff), f.input(), true)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Result.FieldErrors[worksheet.FieldAccount], "Archived accounts")
	assert.Empty(t, f.events.events)
}

func TestSaveDraftReportFlagGatesPartialRows(t *testing.T) {
	f := newWorksheetFixture(t)
	input := f.input()
	input.Lines = append(input.Lines, WorksheetLineDTO{LineNo: 2, Category: "meeting"})

	// Silent mode skips the partial row and still saves the complete one.
	result, err := f.svc.SaveDraft(context.Background(), actorFor(f.staff), input, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SavedLines)

	// Explicit save surfaces the partial row to the actor.
	input.BatchID = result.BatchID.String()
	_, err = f.svc.SaveDraft(context.Background(), actorFor(f.staff), input, true)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Amount required.", verr.Result.RowErrors[2])
}

// A re-save with fewer rows prunes the rows the actor removed.
func TestResavePrunesRemovedRows(t *testing.T) {
	f := newWorksheetFixture(t)
	input := f.input()
	input.Lines = append(input.Lines, WorksheetLineDTO{LineNo: 2, Category: "meeting", Amount: amt(500)})

	first, err := f.svc.SaveDraft(context.Background(), actorFor(f.staff), input, true)
	require.NoError(t, err)
	require.Len(t, f.batchLines(t, first.BatchID), 2)

	input.BatchID = first.BatchID.String()
	input.Lines = input.Lines[:1]
	second, err := f.svc.SaveDraft(context.Background(), actorFor(f.staff), input, true)
	require.NoError(t, err)
	assert.Equal(t, first.BatchID, second.BatchID)

	lines := f.batchLines(t, first.BatchID)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].LineNo)
}

func TestSubmitRequiresHandlingLawyerAndReceipts(t *testing.T) {
	f := newWorksheetFixture(t)
	input := f.input()

	_, err := f.svc.Submit(context.Background(), actorFor(f.staff), input)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Handling Lawyer is required to submit.", verr.Result.FieldErrors[worksheet.FieldHandlingLawyer])

	input.HandlingLawyerID = f.lawyer.ID.String()
	input.Lines = append(input.Lines, WorksheetLineDTO{LineNo: 2, Category: "notary_fee", Amount: amt(200)})
	_, err = f.svc.Submit(context.Background(), actorFor(f.staff), input)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Receipt required.", verr.Result.RowErrors[2])

	input.Lines[1].Attachments = []string{"receipts:activities/a/b/line-2/receipt.pdf"}
	result, err := f.svc.Submit(context.Background(), actorFor(f.staff), input)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, result.Status)
	assert.Equal(t, 2, result.SavedLines)

	lines := f.batchLines(t, result.BatchID)
	for _, line := range lines {
		assert.Equal(t, model.StatusPending, line.Status)
		assert.NotNil(t, line.SubmittedAt)
		assert.Nil(t, line.DraftExpiresAt)
	}
	assert.Equal(t, []string{model.ActionSubmitBatch}, auditActions(t, f.db, result.BatchID.String()))
	assert.Equal(t, 1, f.events.count())
}

func TestDeleteDraftRemovesRowsAndAttachments(t *testing.T) {
	f := newWorksheetFixture(t)
	ctx := context.Background()

	input := f.input()
	input.Lines[0].Attachments = []string{"receipts:activities/u/b/line-1/receipt.pdf"}
	saved, err := f.svc.SaveDraft(ctx, actorFor(f.staff), input, true)
	require.NoError(t, err)

	result, err := f.svc.DeleteDraft(ctx, actorFor(f.staff), saved.BatchID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Requested)
	assert.Equal(t, int64(1), result.Deleted)
	assert.False(t, result.Partial)

	assert.Empty(t, f.batchLines(t, saved.BatchID))
	assert.Contains(t, f.store.removed, "receipts:activities/u/b/line-1/receipt.pdf")
	assert.Contains(t, auditActions(t, f.db, saved.BatchID.String()), model.ActionDeleteDraftBatch)
}

// Rows that crossed the edit window before the delete ran survive it; the
// caller learns the delete was partial.
func TestDeleteDraftPartialOutcome(t *testing.T) {
	f := newWorksheetFixture(t)
	ctx := context.Background()

	input := f.input()
	input.Lines = append(input.Lines, WorksheetLineDTO{LineNo: 2, Category: "meeting", Amount: amt(500)})
	saved, err := f.svc.SaveDraft(ctx, actorFor(f.staff), input, true)
	require.NoError(t, err)

	expired := time.Now().Add(-time.Minute)
	require.NoError(t, f.db.Model(&model.ActivityLine{}).
		Where("batch_id = ? AND line_no = ?", saved.BatchID, 2).
		Update("draft_expires_at", expired).Error)

	result, err := f.svc.DeleteDraft(ctx, actorFor(f.staff), saved.BatchID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Requested)
	assert.Equal(t, int64(1), result.Deleted)
	assert.True(t, result.Partial)

	survivors := f.batchLines(t, saved.BatchID)
	require.Len(t, survivors, 1)
	assert.Equal(t, 2, survivors[0].LineNo)
}

func TestDeleteDraftMissingBatch(t *testing.T) {
	f := newWorksheetFixture(t)
	_, err := f.svc.DeleteDraft(context.Background(), actorFor(f.staff), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

// Reopening a draft shows the note the actor typed, not the rendered summary.
func TestLoadDraftRoundTripsNotes(t *testing.T) {
	f := newWorksheetFixture(t)
	ctx := context.Background()

	saved, err := f.svc.SaveDraft(ctx, actorFor(f.staff), f.input(), true)
	require.NoError(t, err)

	draft, err := f.svc.LoadDraft(ctx, actorFor(f.staff), saved.BatchID)
	require.NoError(t, err)
	assert.Equal(t, saved.BatchID, draft.BatchID)
	assert.Equal(t, "Acme Corp", draft.AccountTitle)
	assert.Equal(t, "2026-03-02", draft.OccurredOn)
	assert.NotNil(t, draft.ExpiresAt)
	require.Len(t, draft.Lines, 1)
	assert.Equal(t, "appearance_fee", draft.Lines[0].Category)
	assert.Equal(t, 90, draft.Lines[0].Minutes)
	assert.Equal(t, "Argued the motion", draft.Lines[0].Notes)
}

func TestLoadDraftForeignActor(t *testing.T) {
	f := newWorksheetFixture(t)
	ctx := context.Background()

	saved, err := f.svc.SaveDraft(ctx, actorFor(f.staff), f.input(), true)
	require.NoError(t, err)

	_, err = f.svc.LoadDraft(ctx, actorFor(f.lawyer), saved.BatchID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMyDraftsGroupsByBatch(t *testing.T) {
	f := newWorksheetFixture(t)
	ctx := context.Background()

	first, err := f.svc.SaveDraft(ctx, actorFor(f.staff), f.input(), true)
	require.NoError(t, err)

	second := f.input()
	second.Lines[0].Notes = "Second sitting"
	other, err := f.svc.SaveDraft(ctx, actorFor(f.staff), second, true)
	require.NoError(t, err)
	require.NotEqual(t, first.BatchID, other.BatchID)

	drafts, err := f.svc.MyDrafts(ctx, actorFor(f.staff))
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	seen := map[uuid.UUID]bool{}
	for _, d := range drafts {
		seen[d.BatchID] = true
		assert.Len(t, d.Lines, 1)
	}
	assert.True(t, seen[first.BatchID])
	assert.True(t, seen[other.BatchID])
}

func TestAutosaveSessionSavesDraft(t *testing.T) {
	f := newWorksheetFixture(t)

	input := f.input()
	input.BatchID = uuid.NewString()

	require.NoError(t, f.svc.QueueAutosave(actorFor(f.staff), input, true))

	batchID := uuid.MustParse(input.BatchID)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if f.svc.AutosaveState(batchID).LastSavedAt != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	state := f.svc.AutosaveState(batchID)
	require.NotNil(t, state.LastSavedAt, "autosave never completed")
	assert.Empty(t, state.LastError)
	require.Len(t, f.batchLines(t, batchID), 1)
}

func TestAutosaveRequiresBatchID(t *testing.T) {
	f := newWorksheetFixture(t)
	err := f.svc.QueueAutosave(actorFor(f.staff), f.input(), false)
	assert.Error(t, err)
}
