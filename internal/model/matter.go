package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Matter status enum constants
const (
	MatterActive = "active"
	MatterClosed = "closed"
)

// Matter is a structured engagement under an account carrying the strict
// identifiers the narrative builder reads. Which identifier fields are
// populated depends on MatterType.
type Matter struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	Account   *Account  `gorm:"foreignKey:AccountID" json:"account,omitempty"`

	MatterType string `gorm:"type:varchar(30);not null;index" json:"matter_type"` // litigation, special_project, retainer
	Title      string `gorm:"type:varchar(255);not null" json:"title"`
	Status     string `gorm:"type:varchar(20);not null;default:'active'" json:"status"`

	// Litigation
	OfficialCaseNo   string `gorm:"type:varchar(100)" json:"official_case_no"`
	InternalCaseCode string `gorm:"type:varchar(100)" json:"internal_case_code"`
	Venue            string `gorm:"type:varchar(255)" json:"venue"`
	CaseType         string `gorm:"type:varchar(100)" json:"case_type"`

	// Special project
	SpecialEngagementCode string `gorm:"type:varchar(100)" json:"special_engagement_code"`

	// Retainer
	RetainerContractRef  string `gorm:"type:varchar(100)" json:"retainer_contract_ref"`
	RetainerPeriodYYYYMM string `gorm:"type:varchar(6)" json:"retainer_period_yyyymm"`

	HandlingLawyerID *uuid.UUID `gorm:"type:uuid" json:"handling_lawyer_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (m *Matter) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// LegacyIdentifier is the matter's strict identifier string, per type.
// Litigation uses the official case number, special projects the engagement
// code, retainers "ref-period" when both halves are present.
func (m *Matter) LegacyIdentifier() string {
	switch NormalizeAccountCategory(m.MatterType) {
	case AccountLitigation:
		return m.OfficialCaseNo
	case AccountSpecialProject:
		return m.SpecialEngagementCode
	case AccountRetainer:
		if m.RetainerContractRef != "" && m.RetainerPeriodYYYYMM != "" {
			return m.RetainerContractRef + "-" + m.RetainerPeriodYYYYMM
		}
		return m.RetainerContractRef
	}
	return ""
}
