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

type CreateMatterDTO struct {
	AccountID string `json:"account_id" binding:"required,uuid"`
	Title     string `json:"title" binding:"required"`

	OfficialCaseNo   string `json:"official_case_no"`
	InternalCaseCode string `json:"internal_case_code"`
	Venue            string `json:"venue"`
	CaseType         string `json:"case_type"`

	SpecialEngagementCode string `json:"special_engagement_code"`

	RetainerContractRef  string `json:"retainer_contract_ref"`
	RetainerPeriodYYYYMM string `json:"retainer_period_yyyymm"`

	HandlingLawyerID string `json:"handling_lawyer_id"`
}

type MatterResponse struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	MatterType       string `json:"matter_type"`
	Title            string `json:"title"`
	Status           string `json:"status"`
	LegacyIdentifier string `json:"legacy_identifier"`

	OfficialCaseNo   string `json:"official_case_no,omitempty"`
	InternalCaseCode string `json:"internal_case_code,omitempty"`
	Venue            string `json:"venue,omitempty"`
	CaseType         string `json:"case_type,omitempty"`

	SpecialEngagementCode string `json:"special_engagement_code,omitempty"`

	RetainerContractRef  string `json:"retainer_contract_ref,omitempty"`
	RetainerPeriodYYYYMM string `json:"retainer_period_yyyymm,omitempty"`
}

// --- Interface ---

type MatterService interface {
	// CreateMatter adds a structured engagement under an account; the matter
	// type is inherited from the account's category.
	CreateMatter(ctx context.Context, actor worksheet.ActorContext, req CreateMatterDTO) (*MatterResponse, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]MatterResponse, error)
	SetStatus(ctx context.Context, actor worksheet.ActorContext, id uuid.UUID, status string) error
}

type matterService struct {
	matters   repository.MatterRepository
	accounts  repository.AccountRepository
	audits    repository.AuditRepository
	txManager repository.TransactionManager
}

func NewMatterService(
	matters repository.MatterRepository,
	accounts repository.AccountRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
) MatterService {
	return &matterService{matters: matters, accounts: accounts, audits: audits, txManager: txManager}
}

func toMatterResponse(m *model.Matter) *MatterResponse {
	return &MatterResponse{
		ID:               m.ID.String(),
		AccountID:        m.AccountID.String(),
		MatterType:       m.MatterType,
		Title:            m.Title,
		Status:           m.Status,
		LegacyIdentifier: m.LegacyIdentifier(),

		OfficialCaseNo:   m.OfficialCaseNo,
		InternalCaseCode: m.InternalCaseCode,
		Venue:            m.Venue,
		CaseType:         m.CaseType,

		SpecialEngagementCode: m.SpecialEngagementCode,

		RetainerContractRef:  m.RetainerContractRef,
		RetainerPeriodYYYYMM: m.RetainerPeriodYYYYMM,
	}
}

func (s *matterService) CreateMatter(ctx context.Context, actor worksheet.ActorContext, req CreateMatterDTO) (*MatterResponse, error) {
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("invalid account_id: %w", err)
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if account.IsArchived {
		return nil, fmt.Errorf("archived accounts cannot receive new matters")
	}

	matter := &model.Matter{
		AccountID:  accountID,
		MatterType: model.NormalizeAccountCategory(account.Category),
		Title:      strings.TrimSpace(req.Title),
		Status:     model.MatterActive,

		OfficialCaseNo:   strings.TrimSpace(req.OfficialCaseNo),
		InternalCaseCode: strings.TrimSpace(req.InternalCaseCode),
		Venue:            strings.TrimSpace(req.Venue),
		CaseType:         strings.TrimSpace(req.CaseType),

		SpecialEngagementCode: strings.TrimSpace(req.SpecialEngagementCode),

		RetainerContractRef:  strings.TrimSpace(req.RetainerContractRef),
		RetainerPeriodYYYYMM: strings.TrimSpace(req.RetainerPeriodYYYYMM),
	}
	if req.HandlingLawyerID != "" {
		if id, err := uuid.Parse(req.HandlingLawyerID); err == nil {
			matter.HandlingLawyerID = &id
		}
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.matters.Create(txCtx, matter); err != nil {
			return fmt.Errorf("failed to create matter: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"account_id":  accountID.String(),
			"matter_type": matter.MatterType,
		})
		entry := model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionCreateMatter,
			EntityID:   matter.ID.String(),
			EntityName: matter.Title,
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

	return toMatterResponse(matter), nil
}

func (s *matterService) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]MatterResponse, error) {
	matters, err := s.matters.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	res := make([]MatterResponse, 0, len(matters))
	for i := range matters {
		res = append(res, *toMatterResponse(&matters[i]))
	}
	return res, nil
}

func (s *matterService) SetStatus(ctx context.Context, actor worksheet.ActorContext, id uuid.UUID, status string) error {
	if status != model.MatterActive && status != model.MatterClosed {
		return fmt.Errorf("unknown matter status %q", status)
	}

	matter, err := s.matters.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	matter.Status = status
	return s.matters.Update(ctx, matter)
}
