package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionSaveDraftBatch      = "SAVE_DRAFT_BATCH"
	ActionSubmitBatch         = "SUBMIT_BATCH"
	ActionDeleteDraftBatch    = "DELETE_DRAFT_BATCH"
	ActionPromoteExpiredDraft = "PROMOTE_EXPIRED_DRAFT"
	ActionApproveLine         = "APPROVE_LINE"
	ActionRejectLine          = "REJECT_LINE"
	ActionBillLine            = "BILL_LINE"
	ActionCompleteLine        = "COMPLETE_LINE"
	ActionUploadReceipt       = "UPLOAD_RECEIPT"
	ActionCreateAccount       = "CREATE_ACCOUNT"
	ActionArchiveAccount      = "ARCHIVE_ACCOUNT"
	ActionCreateMatter        = "CREATE_MATTER"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/batch key)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:text" json:"details"`                       // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
