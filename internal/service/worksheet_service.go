package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"backend/internal/autosave"
	"backend/internal/catalog"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/storage"
	"backend/internal/worksheet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type WorksheetLineDTO struct {
	LineNo      int              `json:"line_no"`
	Category    string           `json:"category"`
	Amount      *decimal.Decimal `json:"amount"`
	Minutes     int              `json:"minutes"`
	Notes       string           `json:"notes"`
	Attachments []string         `json:"attachments"`
}

// WorksheetDTO is the full worksheet snapshot a client sends on save, submit
// and autosave. BatchID is assigned on first save and echoed back.
type WorksheetDTO struct {
	BatchID          string             `json:"batch_id"`
	AccountID        string             `json:"account_id"`
	MatterID         string             `json:"matter_id"`
	MatterTitle      string             `json:"matter_title"`
	BillingStatus    string             `json:"billing_status"`
	HandlingLawyerID string             `json:"handling_lawyer_id"`
	GeneralNotes     string             `json:"general_notes"`
	OccurredOn       string             `json:"occurred_on"`
	Lines            []WorksheetLineDTO `json:"lines"`
}

type SaveResult struct {
	BatchID    uuid.UUID `json:"batch_id"`
	Status     string    `json:"status"`
	SavedLines int       `json:"saved_lines"`
	SavedAt    time.Time `json:"saved_at"`
}

// DeleteResult distinguishes the full delete from the partial one, where some
// rows crossed the edit window before the delete ran.
type DeleteResult struct {
	Requested int64 `json:"requested"`
	Deleted   int64 `json:"deleted"`
	Partial   bool  `json:"partial"`
}

type DraftLineDTO struct {
	ID          uuid.UUID        `json:"id"`
	LineNo      int              `json:"line_no"`
	Category    string           `json:"category"`
	Amount      *decimal.Decimal `json:"amount"`
	Minutes     int              `json:"minutes"`
	Notes       string           `json:"notes"`
	Attachments []string         `json:"attachments"`
}

type DraftBatchDTO struct {
	BatchID          uuid.UUID      `json:"batch_id"`
	AccountID        uuid.UUID      `json:"account_id"`
	AccountTitle     string         `json:"account_title"`
	MatterID         *uuid.UUID     `json:"matter_id"`
	MatterTitle      string         `json:"matter_title"`
	BillingStatus    string         `json:"billing_status"`
	HandlingLawyerID *uuid.UUID     `json:"handling_lawyer_id"`
	OccurredOn       string         `json:"occurred_on"`
	ExpiresAt        *time.Time     `json:"expires_at"`
	Lines            []DraftLineDTO `json:"lines"`
}

type AutosaveStateDTO struct {
	State       string     `json:"state"`
	LastSavedAt *time.Time `json:"last_saved_at"`
	LastError   string     `json:"last_error,omitempty"`
}

// --- Interface ---

type WorksheetService interface {
	// SaveDraft validates and persists the worksheet as a draft batch. With
	// report set, partial rows fail the save; without it they are skipped, as
	// the autosave path does.
	SaveDraft(ctx context.Context, actor worksheet.ActorContext, input WorksheetDTO, report bool) (*SaveResult, error)
	// Submit validates strictly and moves the whole batch to pending.
	Submit(ctx context.Context, actor worksheet.ActorContext, input WorksheetDTO) (*SaveResult, error)
	// DeleteDraft removes the actor's still-editable rows of the batch and
	// reports whether anything survived.
	DeleteDraft(ctx context.Context, actor worksheet.ActorContext, batchID uuid.UUID) (*DeleteResult, error)
	// LoadDraft reopens a draft batch by batch id, or by a single line id for
	// rows saved before batching existed.
	LoadDraft(ctx context.Context, actor worksheet.ActorContext, key uuid.UUID) (*DraftBatchDTO, error)
	MyDrafts(ctx context.Context, actor worksheet.ActorContext) ([]DraftBatchDTO, error)
	Recent(ctx context.Context, actor worksheet.ActorContext, limit int) ([]model.ActivityLine, error)

	// QueueAutosave replaces the session's pending snapshot and (re)arms the
	// debounced save. Immediate is used right after a receipt upload.
	QueueAutosave(actor worksheet.ActorContext, input WorksheetDTO, immediate bool) error
	AutosaveState(batchID uuid.UUID) AutosaveStateDTO
	// CancelAutosave drops the pending timer, used when the client navigates
	// away without changes worth saving.
	CancelAutosave(batchID uuid.UUID)
}

type worksheetService struct {
	accounts   repository.AccountRepository
	matters    repository.MatterRepository
	activities repository.ActivityRepository
	audits     repository.AuditRepository
	txManager  repository.TransactionManager
	store      storage.ObjectStore
	events     EventBroadcaster

	autosaveDelay     time.Duration
	autosaveImmediate time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*worksheetSession
}

type worksheetSession struct {
	sched *autosave.Scheduler

	mu          sync.Mutex
	actor       worksheet.ActorContext
	snapshot    WorksheetDTO
	lastSavedAt *time.Time
	lastErr     error
}

// NewWorksheetService wires the worksheet operations. The autosave delays
// default to the scheduler's when zero; tests shorten them.
func NewWorksheetService(
	accounts repository.AccountRepository,
	matters repository.MatterRepository,
	activities repository.ActivityRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
	store storage.ObjectStore,
	events EventBroadcaster,
	autosaveDelay, autosaveImmediate time.Duration,
) WorksheetService {
	return &worksheetService{
		accounts:          accounts,
		matters:           matters,
		activities:        activities,
		audits:            audits,
		txManager:         txManager,
		store:             store,
		events:            events,
		autosaveDelay:     autosaveDelay,
		autosaveImmediate: autosaveImmediate,
		sessions:          make(map[uuid.UUID]*worksheetSession),
	}
}

// --- Resolution ---

// resolveBatch turns the wire snapshot into the in-memory batch, loading the
// referenced account and matter so validation and the narrative builder see
// real records.
func (s *worksheetService) resolveBatch(ctx context.Context, input WorksheetDTO) (worksheet.Batch, error) {
	batch := worksheet.Batch{
		BillingStatus: input.BillingStatus,
		MatterTitle:   strings.TrimSpace(input.MatterTitle),
		GeneralNotes:  input.GeneralNotes,
		OccurredOn:    strings.TrimSpace(input.OccurredOn),
	}

	if input.BatchID != "" {
		id, err := uuid.Parse(input.BatchID)
		if err != nil {
			return batch, fmt.Errorf("invalid batch_id: %w", err)
		}
		batch.BatchID = id
	}

	if input.AccountID != "" {
		id, err := uuid.Parse(input.AccountID)
		if err == nil {
			batch.AccountID = id
			account, err := s.accounts.FindByID(ctx, id)
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return batch, fmt.Errorf("failed to load account: %w", err)
				}
			} else {
				batch.Account = account
			}
		}
	}

	if input.MatterID != "" {
		id, err := uuid.Parse(input.MatterID)
		if err == nil {
			batch.MatterID = &id
			matter, err := s.matters.FindByID(ctx, id)
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return batch, fmt.Errorf("failed to load matter: %w", err)
				}
			} else {
				batch.Matter = matter
			}
		}
	}

	if input.HandlingLawyerID != "" {
		if id, err := uuid.Parse(input.HandlingLawyerID); err == nil {
			batch.HandlingLawyerID = &id
		}
	}

	for _, l := range input.Lines {
		batch.Lines = append(batch.Lines, worksheet.LineInput{
			LineNo:      l.LineNo,
			Category:    l.Category,
			Amount:      l.Amount,
			Minutes:     l.Minutes,
			Notes:       l.Notes,
			Attachments: l.Attachments,
		})
	}

	return batch, nil
}

// buildLine assembles one persistable row from the validated batch.
func buildLine(actor worksheet.ActorContext, batch worksheet.Batch, l worksheet.LineInput, occurredAt time.Time) (*model.ActivityLine, error) {
	meta, ok := catalog.Lookup(l.Category)
	if !ok {
		return nil, fmt.Errorf("unknown task category %q", l.Category)
	}

	note := strings.TrimSpace(l.Notes)
	if note == "" {
		note = strings.TrimSpace(batch.GeneralNotes)
	}

	accountCategory := ""
	if batch.Account != nil {
		accountCategory = batch.Account.Category
	}
	description := worksheet.BuildDetails(
		accountCategory, batch.Matter, note, catalog.DisplayLabel(l.Category), meta.EntryClass,
	).Legacy()

	line := &model.ActivityLine{
		BatchID:      batch.BatchID,
		LineNo:       l.LineNo,
		TaskCategory: l.Category,
		EntryClass:   meta.EntryClass,
		Amount:       *l.Amount,
		Minutes:      l.Minutes,
		Billable:     model.BillableFromBillingStatus(batch.BillingStatus),
		Description:  description,

		AccountID:        batch.AccountID,
		CreatedBy:        actor.ID,
		PerformedBy:      actor.ID,
		HandlingLawyerID: batch.HandlingLawyerID,
		MatterID:         batch.MatterID,

		AttachmentURLs: l.Attachments,
		OccurredAt:     occurredAt,
	}

	if meta.FeeCode != "" {
		fee := meta.FeeCode
		line.FeeCode = &fee
	}
	if meta.IsCost() {
		expenseType := meta.ExpenseType
		line.ExpenseType = &expenseType
	}
	if batch.BillingStatus != "" {
		billing := batch.BillingStatus
		line.BillingStatus = &billing
	}

	matterTitle := batch.MatterTitle
	if batch.Matter != nil {
		matterTitle = batch.Matter.Title
	}
	if matterTitle != "" {
		line.Matter = &matterTitle
	}

	return line, nil
}

// --- Save / submit ---

func (s *worksheetService) SaveDraft(ctx context.Context, actor worksheet.ActorContext, input WorksheetDTO, report bool) (*SaveResult, error) {
	return s.persist(ctx, actor, input, model.StatusDraft, report)
}

func (s *worksheetService) Submit(ctx context.Context, actor worksheet.ActorContext, input WorksheetDTO) (*SaveResult, error) {
	batchID, _ := uuid.Parse(input.BatchID)
	s.disableSession(batchID)

	result, err := s.persist(ctx, actor, input, model.StatusPending, true)
	if err != nil {
		s.enableSession(batchID)
		return nil, err
	}

	s.dropSession(result.BatchID)
	if s.events != nil {
		s.events.BroadcastEvent("queue.changed", map[string]interface{}{
			"batch_id": result.BatchID.String(),
			"status":   model.StatusPending,
		})
	}
	return result, nil
}

func (s *worksheetService) persist(ctx context.Context, actor worksheet.ActorContext, input WorksheetDTO, status string, report bool) (*SaveResult, error) {
	batch, err := s.resolveBatch(ctx, input)
	if err != nil {
		return nil, err
	}

	var res worksheet.Result
	if status == model.StatusPending {
		res = worksheet.ValidateForSubmit(batch, report)
	} else {
		res = worksheet.ValidateForDraft(batch, report)
	}
	if !res.OK {
		return nil, NewValidationError(res)
	}

	if batch.BatchID == uuid.Nil {
		batch.BatchID = uuid.New()
	}
	occurredAt, err := worksheet.OccurredAtLocalNoon(batch.OccurredOn)
	if err != nil {
		return nil, err
	}

	lines := make([]*model.ActivityLine, 0, len(res.CompleteLines))
	keep := make([]int, 0, len(res.CompleteLines))
	for _, l := range res.CompleteLines {
		line, err := buildLine(actor, batch, l, occurredAt)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		keep = append(keep, l.LineNo)
	}

	now := time.Now()
	action := model.ActionSaveDraftBatch
	if status == model.StatusPending {
		action = model.ActionSubmitBatch
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.activities.SaveLines(txCtx, lines, status, now); err != nil {
			return fmt.Errorf("failed to save lines: %w", err)
		}
		if err := s.activities.DeleteLinesNotIn(txCtx, batch.BatchID, keep); err != nil {
			return fmt.Errorf("failed to prune removed rows: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"batch_id": batch.BatchID.String(),
			"lines":    len(lines),
			"status":   status,
		})
		entry := model.AuditLog{
			UserID:     &actor.ID,
			Action:     action,
			EntityID:   batch.BatchID.String(),
			EntityName: accountTitle(batch),
			Details:    string(details),
		}
		if err := s.audits.Log(txCtx, &entry); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &SaveResult{
		BatchID:    batch.BatchID,
		Status:     status,
		SavedLines: len(lines),
		SavedAt:    now,
	}, nil
}

func accountTitle(batch worksheet.Batch) string {
	if batch.Account != nil {
		return batch.Account.Title
	}
	return ""
}

// --- Delete ---

func (s *worksheetService) DeleteDraft(ctx context.Context, actor worksheet.ActorContext, batchID uuid.UUID) (*DeleteResult, error) {
	s.disableSession(batchID)

	var outcome *repository.DeleteOutcome
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		outcome, err = s.activities.DeleteDraftBatch(txCtx, batchID, actor.ID, time.Now())
		if err != nil {
			return fmt.Errorf("failed to delete draft batch: %w", err)
		}
		if outcome.Requested == 0 {
			return ErrNotFound
		}

		details, _ := json.Marshal(map[string]interface{}{
			"batch_id":  batchID.String(),
			"requested": outcome.Requested,
			"deleted":   outcome.Deleted,
		})
		entry := model.AuditLog{
			UserID:   &actor.ID,
			Action:   model.ActionDeleteDraftBatch,
			EntityID: batchID.String(),
			Details:  string(details),
		}
		if err := s.audits.Log(txCtx, &entry); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		s.enableSession(batchID)
		return nil, err
	}

	s.dropSession(batchID)

	// Storage cleanup is best effort; the rows are already gone.
	if s.store != nil && len(outcome.Attachments) > 0 {
		byBucket := map[string][]string{}
		for _, ref := range outcome.Attachments {
			bucket, path := storage.SplitBucketAndPath(ref)
			if path != "" {
				byBucket[bucket] = append(byBucket[bucket], path)
			}
		}
		for bucket, paths := range byBucket {
			s.store.Remove(ctx, bucket, paths)
		}
	}

	return &DeleteResult{
		Requested: outcome.Requested,
		Deleted:   outcome.Deleted,
		Partial:   outcome.Deleted < outcome.Requested,
	}, nil
}

// --- Reads ---

func (s *worksheetService) LoadDraft(ctx context.Context, actor worksheet.ActorContext, key uuid.UUID) (*DraftBatchDTO, error) {
	lines, err := s.activities.LoadDraftBatch(ctx, key, actor.ID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load draft batch: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrNotFound
	}
	return s.toDraftBatch(ctx, lines)
}

func (s *worksheetService) MyDrafts(ctx context.Context, actor worksheet.ActorContext) ([]DraftBatchDTO, error) {
	lines, err := s.activities.ListDraftsByUser(ctx, actor.ID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}

	grouped := map[uuid.UUID][]model.ActivityLine{}
	var order []uuid.UUID
	for _, line := range lines {
		if _, seen := grouped[line.BatchID]; !seen {
			order = append(order, line.BatchID)
		}
		grouped[line.BatchID] = append(grouped[line.BatchID], line)
	}

	out := make([]DraftBatchDTO, 0, len(order))
	for _, batchID := range order {
		dto, err := s.toDraftBatch(ctx, grouped[batchID])
		if err != nil {
			return nil, err
		}
		out = append(out, *dto)
	}
	return out, nil
}

func (s *worksheetService) Recent(ctx context.Context, actor worksheet.ActorContext, limit int) ([]model.ActivityLine, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.activities.ListRecentByUser(ctx, actor.ID, limit)
}

func (s *worksheetService) toDraftBatch(ctx context.Context, lines []model.ActivityLine) (*DraftBatchDTO, error) {
	head := lines[0]

	accountCategory := ""
	accountTitle := ""
	if head.Account != nil {
		accountCategory = head.Account.Category
		accountTitle = head.Account.Title
	} else if account, err := s.accounts.FindByID(ctx, head.AccountID); err == nil {
		accountCategory = account.Category
		accountTitle = account.Title
	}

	dto := &DraftBatchDTO{
		BatchID:          head.BatchID,
		AccountID:        head.AccountID,
		AccountTitle:     accountTitle,
		MatterID:         head.MatterID,
		HandlingLawyerID: head.HandlingLawyerID,
		OccurredOn:       head.OccurredAt.Format("2006-01-02"),
		ExpiresAt:        head.DraftExpiresAt,
	}
	if head.Matter != nil {
		dto.MatterTitle = *head.Matter
	}
	if head.BillingStatus != nil {
		dto.BillingStatus = *head.BillingStatus
	}

	for _, line := range lines {
		amount := line.Amount
		dto.Lines = append(dto.Lines, DraftLineDTO{
			ID:          line.ID,
			LineNo:      line.LineNo,
			Category:    line.TaskCategory,
			Amount:      &amount,
			Minutes:     line.Minutes,
			Notes:       worksheet.ExtractNote(line.Description, accountCategory),
			Attachments: line.AttachmentURLs,
		})
	}
	return dto, nil
}

// --- Autosave sessions ---

func (s *worksheetService) QueueAutosave(actor worksheet.ActorContext, input WorksheetDTO, immediate bool) error {
	batchID, err := uuid.Parse(input.BatchID)
	if err != nil || batchID == uuid.Nil {
		return fmt.Errorf("autosave requires a batch_id: %w", err)
	}

	s.mu.Lock()
	sess, ok := s.sessions[batchID]
	if !ok {
		sess = &worksheetSession{}
		sess.sched = autosave.New(autosave.Config{
			Delay:          s.autosaveDelay,
			ImmediateDelay: s.autosaveImmediate,
			Validate: func() bool {
				return s.autosaveValid(sess)
			},
			Save: func(ctx context.Context) error {
				return s.autosaveRun(ctx, sess)
			},
			OnSaved: func(at time.Time) {
				sess.mu.Lock()
				sess.lastSavedAt = &at
				sess.lastErr = nil
				sess.mu.Unlock()
			},
			OnError: func(err error) {
				sess.mu.Lock()
				sess.lastErr = err
				sess.mu.Unlock()
			},
		})
		s.sessions[batchID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	sess.actor = actor
	sess.snapshot = input
	sess.mu.Unlock()

	sess.sched.Schedule(immediate)
	return nil
}

func (s *worksheetService) autosaveValid(sess *worksheetSession) bool {
	sess.mu.Lock()
	snapshot := sess.snapshot
	sess.mu.Unlock()

	batch, err := s.resolveBatch(context.Background(), snapshot)
	if err != nil {
		return false
	}
	return worksheet.ValidateForDraft(batch, false).OK
}

func (s *worksheetService) autosaveRun(ctx context.Context, sess *worksheetSession) error {
	sess.mu.Lock()
	actor := sess.actor
	snapshot := sess.snapshot
	sess.mu.Unlock()

	_, err := s.SaveDraft(ctx, actor, snapshot, false)
	return err
}

func (s *worksheetService) AutosaveState(batchID uuid.UUID) AutosaveStateDTO {
	s.mu.Lock()
	sess, ok := s.sessions[batchID]
	s.mu.Unlock()
	if !ok {
		return AutosaveStateDTO{State: autosave.StateIdle.String()}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	dto := AutosaveStateDTO{
		State:       sess.sched.State().String(),
		LastSavedAt: sess.lastSavedAt,
	}
	if sess.lastErr != nil {
		dto.LastError = sess.lastErr.Error()
	}
	return dto
}

func (s *worksheetService) CancelAutosave(batchID uuid.UUID) {
	s.mu.Lock()
	sess, ok := s.sessions[batchID]
	s.mu.Unlock()
	if ok {
		sess.sched.Cancel()
	}
}

func (s *worksheetService) disableSession(batchID uuid.UUID) {
	s.mu.Lock()
	sess, ok := s.sessions[batchID]
	s.mu.Unlock()
	if ok {
		sess.sched.Disable()
	}
}

func (s *worksheetService) enableSession(batchID uuid.UUID) {
	s.mu.Lock()
	sess, ok := s.sessions[batchID]
	s.mu.Unlock()
	if ok {
		sess.sched.Enable()
	}
}

func (s *worksheetService) dropSession(batchID uuid.UUID) {
	s.mu.Lock()
	sess, ok := s.sessions[batchID]
	delete(s.sessions, batchID)
	s.mu.Unlock()
	if ok {
		sess.sched.Cancel()
	}
}
