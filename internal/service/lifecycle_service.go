package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/worksheet"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventBroadcaster pushes queue-changed events to connected approval screens.
// Optional; a nil broadcaster disables pushes.
type EventBroadcaster interface {
	BroadcastEvent(event string, payload interface{})
}

// LifecycleService applies the approval transitions. Every transition is
// guarded against concurrent writers and audited in the same transaction; an
// expired draft is first promoted to pending, then acted on, atomically.
type LifecycleService interface {
	Approve(ctx context.Context, actor worksheet.ActorContext, lineID uuid.UUID) (*model.ActivityLine, error)
	Reject(ctx context.Context, actor worksheet.ActorContext, lineID uuid.UUID, reason string) (*model.ActivityLine, error)
	MarkBilled(ctx context.Context, actor worksheet.ActorContext, lineID uuid.UUID) (*model.ActivityLine, error)
	Complete(ctx context.Context, actor worksheet.ActorContext, lineID uuid.UUID) (*model.ActivityLine, error)
}

type lifecycleService struct {
	activities repository.ActivityRepository
	audits     repository.AuditRepository
	txManager  repository.TransactionManager
	events     EventBroadcaster
}

func NewLifecycleService(
	activities repository.ActivityRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
	events EventBroadcaster,
) LifecycleService {
	return &lifecycleService{
		activities: activities,
		audits:     audits,
		txManager:  txManager,
		events:     events,
	}
}

func (s *lifecycleService) Approve(ctx context.Context, actor worksheet.ActorContext, lineID uuid.UUID) (*model.ActivityLine, error) {
	return s.transition(ctx, actor, lineID, model.StatusApproved, "")
}

func (s *lifecycleService) Reject(ctx context.Context, actor worksheet.ActorContext, lineID uuid.UUID, reason string) (*model.ActivityLine, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	return s.transition(ctx, actor, lineID, model.StatusRejected, strings.TrimSpace(reason))
}

func (s *lifecycleService) MarkBilled(ctx context.Context, actor worksheet.ActorContext, lineID uuid.UUID) (*model.ActivityLine, error) {
	return s.transition(ctx, actor, lineID, model.StatusBilled, "")
}

func (s *lifecycleService) Complete(ctx context.Context, actor worksheet.ActorContext, lineID uuid.UUID) (*model.ActivityLine, error) {
	return s.transition(ctx, actor, lineID, model.StatusCompleted, "")
}

// requiredFrom is the only status each transition may leave. There is no
// skip-state path: billed requires approved, completed requires billed.
func requiredFrom(target string) (string, error) {
	switch target {
	case model.StatusApproved, model.StatusRejected:
		return model.StatusPending, nil
	case model.StatusBilled:
		return model.StatusApproved, nil
	case model.StatusCompleted:
		return model.StatusBilled, nil
	}
	return "", fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, target)
}

func allowedRole(target, role string) bool {
	if target == model.StatusCompleted {
		return model.IsSeniorApprover(role)
	}
	return model.IsApprover(role)
}

func transitionAction(target string) string {
	switch target {
	case model.StatusApproved:
		return model.ActionApproveLine
	case model.StatusRejected:
		return model.ActionRejectLine
	case model.StatusBilled:
		return model.ActionBillLine
	case model.StatusCompleted:
		return model.ActionCompleteLine
	}
	return ""
}

func (s *lifecycleService) transition(ctx context.Context, actor worksheet.ActorContext, lineID uuid.UUID, target, reason string) (*model.ActivityLine, error) {
	if !allowedRole(target, actor.Role) {
		return nil, ErrForbidden
	}
	from, err := requiredFrom(target)
	if err != nil {
		return nil, err
	}

	var result *model.ActivityLine
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		line, err := s.activities.FindByID(txCtx, lineID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load activity line: %w", err)
		}

		now := time.Now()

		// Promote first, then act, inside the same transaction. submitted_at
		// is backfilled to now; the audit row keeps the window-close moment.
		if line.IsExpiredDraft(now) && from == model.StatusPending {
			ok, err := s.activities.TransitionStatus(txCtx, line.ID, model.StatusDraft, line.UpdatedAt, map[string]interface{}{
				"status":           model.StatusPending,
				"submitted_at":     now,
				"draft_expires_at": nil,
			})
			if err != nil {
				return fmt.Errorf("failed to promote expired draft: %w", err)
			}
			if !ok {
				return ErrConflict
			}
			if err := s.audit(txCtx, nil, model.ActionPromoteExpiredDraft, line, map[string]interface{}{
				"batch_id":   line.BatchID.String(),
				"expired_at": line.DraftExpiresAt,
			}); err != nil {
				return err
			}
			line, err = s.activities.FindByID(txCtx, line.ID)
			if err != nil {
				return fmt.Errorf("failed to reload promoted line: %w", err)
			}
		}

		if line.Status != from {
			return fmt.Errorf("%w: %s line cannot become %s", ErrInvalidTransition, line.Status, target)
		}

		updates := map[string]interface{}{"status": target}
		switch target {
		case model.StatusApproved:
			updates["approved_at"] = now
			updates["approved_by"] = actor.ID
		case model.StatusRejected:
			updates["rejected_at"] = now
			updates["rejected_by"] = actor.ID
			updates["rejected_reason"] = reason
		case model.StatusBilled:
			updates["billed_at"] = now
			updates["billed_by"] = actor.ID
			updates["billing_status"] = model.BillingBilled
		case model.StatusCompleted:
			updates["completed_at"] = now
			updates["completed_by"] = actor.ID
		}

		ok, err := s.activities.TransitionStatus(txCtx, line.ID, from, line.UpdatedAt, updates)
		if err != nil {
			return fmt.Errorf("failed to apply transition: %w", err)
		}
		if !ok {
			return ErrConflict
		}

		details := map[string]interface{}{
			"from_status": from,
			"to_status":   target,
		}
		if reason != "" {
			details["reason"] = reason
		}
		if err := s.audit(txCtx, &actor.ID, transitionAction(target), line, details); err != nil {
			return err
		}

		result, err = s.activities.FindByIDWithRelations(txCtx, line.ID)
		if err != nil {
			return fmt.Errorf("failed to reload activity line: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.BroadcastEvent("queue.changed", map[string]interface{}{
			"line_id": result.ID.String(),
			"status":  result.Status,
		})
	}
	return result, nil
}

func (s *lifecycleService) audit(ctx context.Context, userID *uuid.UUID, action string, line *model.ActivityLine, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   line.ID.String(),
		EntityName: line.TaskCategory,
		Details:    string(payload),
	}
	if err := s.audits.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
