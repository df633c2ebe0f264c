package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/worksheet"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateAccountDTO struct {
	Title       string `json:"title" binding:"required"`
	Category    string `json:"category" binding:"required"`
	AccountKind string `json:"account_kind"`
}

type AccountFilter struct {
	IncludeArchived bool
	Search          string
	Page            int
	Limit           int
}

type AccountResponse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Category      string `json:"category"`
	CategoryLabel string `json:"category_label"`
	AccountKind   string `json:"account_kind"`
	IsArchived    bool   `json:"is_archived"`
	CreatedAt     string `json:"created_at"`
}

// --- Interface ---

type AccountService interface {
	CreateAccount(ctx context.Context, actor worksheet.ActorContext, req CreateAccountDTO) (*AccountResponse, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*AccountResponse, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]AccountResponse, int64, error)
	// SetArchived flips the archived flag. Archived accounts stay readable but
	// reject new activity; only the admin tier may flip the flag.
	SetArchived(ctx context.Context, actor worksheet.ActorContext, id uuid.UUID, archived bool) error
}

type accountService struct {
	accounts  repository.AccountRepository
	audits    repository.AuditRepository
	txManager repository.TransactionManager
}

func NewAccountService(accounts repository.AccountRepository, audits repository.AuditRepository, txManager repository.TransactionManager) AccountService {
	return &accountService{accounts: accounts, audits: audits, txManager: txManager}
}

func toAccountResponse(a *model.Account) *AccountResponse {
	return &AccountResponse{
		ID:            a.ID.String(),
		Title:         a.Title,
		Category:      model.NormalizeAccountCategory(a.Category),
		CategoryLabel: model.AccountCategoryLabel(a.Category),
		AccountKind:   a.AccountKind,
		IsArchived:    a.IsArchived,
		CreatedAt:     a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *accountService) CreateAccount(ctx context.Context, actor worksheet.ActorContext, req CreateAccountDTO) (*AccountResponse, error) {
	category := model.NormalizeAccountCategory(req.Category)
	switch category {
	case model.AccountLitigation, model.AccountSpecialProject, model.AccountRetainer:
	default:
		return nil, fmt.Errorf("unknown account category %q", req.Category)
	}

	account := &model.Account{
		Title:       strings.TrimSpace(req.Title),
		Category:    category,
		AccountKind: req.AccountKind,
		CreatedBy:   &actor.ID,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.accounts.Create(txCtx, account); err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{"category": category})
		entry := model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionCreateAccount,
			EntityID:   account.ID.String(),
			EntityName: account.Title,
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

	return toAccountResponse(account), nil
}

func (s *accountService) GetAccount(ctx context.Context, id uuid.UUID) (*AccountResponse, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toAccountResponse(account), nil
}

func (s *accountService) ListAccounts(ctx context.Context, filter AccountFilter) ([]AccountResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	accounts, total, err := s.accounts.List(ctx, filter.IncludeArchived, filter.Search, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		res = append(res, *toAccountResponse(&accounts[i]))
	}
	return res, total, nil
}

func (s *accountService) SetArchived(ctx context.Context, actor worksheet.ActorContext, id uuid.UUID, archived bool) error {
	if !model.IsSeniorApprover(actor.Role) {
		return ErrForbidden
	}

	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.accounts.SetArchived(txCtx, id, archived); err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{"archived": archived})
		entry := model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionArchiveAccount,
			EntityID:   id.String(),
			EntityName: account.Title,
			Details:    string(details),
		}
		if err := s.audits.Log(txCtx, &entry); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
}
