package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/catalog"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/worksheet"

	"github.com/shopspring/decimal"
)

// Queue views and the effective statuses behind them. The pending view folds
// in drafts whose edit window has elapsed.
const (
	QueueViewPending  = "pending"
	QueueViewApproved = "approved"
	QueueViewBilled   = "billed"
	QueueViewHistory  = "history"
)

var queueViewStatuses = map[string][]string{
	QueueViewPending:  {model.StatusPending},
	QueueViewApproved: {model.StatusApproved},
	QueueViewBilled:   {model.StatusBilled},
	QueueViewHistory:  {model.StatusRejected, model.StatusCompleted},
}

type QueueFilter struct {
	View   string
	Search string
	Page   int
	Limit  int
}

type QueueItemDTO struct {
	ID            string          `json:"id"`
	BatchID       string          `json:"batch_id"`
	LineNo        int             `json:"line_no"`
	AccountTitle  string          `json:"account_title"`
	Matter        string          `json:"matter"`
	Category      string          `json:"category"`
	CategoryLabel string          `json:"category_label"`
	FeeCode       string          `json:"fee_code"`
	EntryClass    string          `json:"entry_class"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	EnteredBy     string          `json:"entered_by"`
	PerformedBy   string          `json:"performed_by"`
	Status        string          `json:"status"`
	StatusLabel   string          `json:"status_label"`
	AutoPromoted  bool            `json:"auto_promoted"`
	HasReceipt    bool            `json:"has_receipt"`
	Attachments   []string        `json:"attachments"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SubmittedAt   *time.Time      `json:"submitted_at"`
	RejectedFor   string          `json:"rejected_for,omitempty"`
}

type QueueCountsDTO struct {
	Pending   int64 `json:"pending"`
	Approved  int64 `json:"approved"`
	Billed    int64 `json:"billed"`
	Completed int64 `json:"completed"`
	Rejected  int64 `json:"rejected"`
}

type QueueService interface {
	List(ctx context.Context, actor worksheet.ActorContext, filter QueueFilter) ([]QueueItemDTO, int64, error)
	Counts(ctx context.Context, actor worksheet.ActorContext) (*QueueCountsDTO, error)
}

type queueService struct {
	activities repository.ActivityRepository
}

func NewQueueService(activities repository.ActivityRepository) QueueService {
	return &queueService{activities: activities}
}

func (s *queueService) List(ctx context.Context, actor worksheet.ActorContext, filter QueueFilter) ([]QueueItemDTO, int64, error) {
	if !model.IsApprover(actor.Role) {
		return nil, 0, ErrForbidden
	}

	statuses, ok := queueViewStatuses[filter.View]
	if !ok {
		return nil, 0, fmt.Errorf("unknown queue view %q", filter.View)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}

	now := time.Now()
	lines, total, err := s.activities.ListQueue(ctx, statuses, filter.Search, now, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list queue: %w", err)
	}

	items := make([]QueueItemDTO, 0, len(lines))
	for i := range lines {
		items = append(items, toQueueItem(&lines[i], now))
	}
	return items, total, nil
}

func (s *queueService) Counts(ctx context.Context, actor worksheet.ActorContext) (*QueueCountsDTO, error) {
	if !model.IsApprover(actor.Role) {
		return nil, ErrForbidden
	}

	counts, err := s.activities.StatusCounts(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}
	return &QueueCountsDTO{
		Pending:   counts[model.StatusPending],
		Approved:  counts[model.StatusApproved],
		Billed:    counts[model.StatusBilled],
		Completed: counts[model.StatusCompleted],
		Rejected:  counts[model.StatusRejected],
	}, nil
}

func toQueueItem(line *model.ActivityLine, now time.Time) QueueItemDTO {
	item := QueueItemDTO{
		ID:            line.ID.String(),
		BatchID:       line.BatchID.String(),
		LineNo:        line.LineNo,
		Category:      line.TaskCategory,
		CategoryLabel: catalog.DisplayLabel(line.TaskCategory),
		EntryClass:    line.EntryClass,
		Amount:        line.Amount,
		Description:   line.Description,
		Status:        line.EffectiveStatus(now),
		StatusLabel:   line.EffectiveStatusLabel(now),
		AutoPromoted:  line.IsExpiredDraft(now),
		HasReceipt:    len(line.AttachmentURLs) > 0,
		Attachments:   line.AttachmentURLs,
		OccurredAt:    line.OccurredAt,
		SubmittedAt:   line.SubmittedAt,
		RejectedFor:   line.RejectedReason,
	}
	if item.AutoPromoted {
		// The draft window closing is the effective submission time.
		item.SubmittedAt = line.DraftExpiresAt
	}
	if line.FeeCode != nil {
		item.FeeCode = *line.FeeCode
	}
	if line.Matter != nil {
		item.Matter = *line.Matter
	}
	if line.Account != nil {
		item.AccountTitle = line.Account.Title
	}
	if line.Creator != nil {
		item.EnteredBy = line.Creator.DisplayName()
	}
	if line.Performer != nil {
		item.PerformedBy = line.Performer.DisplayName()
	}
	return item
}
