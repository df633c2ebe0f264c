package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ActivityStatus enum constants
const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusBilled    = "billed"
	StatusCompleted = "completed"
)

// EntryClass enum constants
const (
	EntryClassService = "service"
	EntryClassOpex    = "opex"
	EntryClassMeeting = "meeting"
	EntryClassMisc    = "misc"
)

// BillingStatus enum constants (optional worksheet field)
const (
	BillingBillable    = "billable"
	BillingNonBillable = "non_billable"
	BillingBilled      = "billed"
)

// DraftTTL is how long a saved draft stays editable before it is treated
// as awaiting approval.
const DraftTTL = 30 * time.Minute

// ActivityLine is one billable-service or cost/OPE entry. Lines entered in the
// same worksheet session share a batch_id; (batch_id, line_no) is the natural
// key the repository upserts on, so re-saving a line overwrites in place.
type ActivityLine struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_batch_line,priority:1" json:"batch_id"`
	LineNo  int       `gorm:"not null;uniqueIndex:idx_batch_line,priority:2" json:"line_no"`

	// Classification
	TaskCategory string  `gorm:"type:varchar(50);not null;index" json:"task_category"`
	FeeCode      *string `gorm:"type:varchar(10)" json:"fee_code"`
	EntryClass   string  `gorm:"type:varchar(20);not null" json:"entry_class"` // service, opex, meeting, misc
	ExpenseType  *string `gorm:"type:varchar(20)" json:"expense_type"`         // set for cost lines only

	// Value
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Minutes       int             `gorm:"not null;default:0" json:"minutes"`
	Billable      bool            `gorm:"default:false" json:"billable"`
	BillingStatus *string         `gorm:"type:varchar(20)" json:"billing_status"`

	// Narrative
	Description string     `gorm:"type:text" json:"description"` // legacy pipe-delimited summary
	Matter      *string    `gorm:"type:varchar(255)" json:"matter"`
	MatterID    *uuid.UUID `gorm:"type:uuid;index" json:"matter_id"`

	// Parties
	AccountID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"account_id"`
	Account          *Account   `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	CreatedBy        uuid.UUID  `gorm:"type:uuid;not null;index" json:"created_by"`
	Creator          *User      `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	PerformedBy      uuid.UUID  `gorm:"type:uuid;not null" json:"performed_by"`
	Performer        *User      `gorm:"foreignKey:PerformedBy" json:"performer,omitempty"`
	HandlingLawyerID *uuid.UUID `gorm:"type:uuid" json:"handling_lawyer_id"` // required once pending

	// Evidence: opaque storage paths ("bucket:path" or "path"), nil means no receipt
	AttachmentURLs []string `gorm:"serializer:json;type:text" json:"attachment_urls"`

	// Timing — each stamped exactly once by the transition that produces it
	OccurredAt     time.Time  `gorm:"not null" json:"occurred_at"` // normalized to local noon
	SubmittedAt    *time.Time `json:"submitted_at"`
	DraftExpiresAt *time.Time `gorm:"index" json:"draft_expires_at"` // set iff status=draft
	ApprovedAt     *time.Time `json:"approved_at"`
	RejectedAt     *time.Time `json:"rejected_at"`
	BilledAt       *time.Time `json:"billed_at"`
	CompletedAt    *time.Time `json:"completed_at"`

	ApprovedBy     *uuid.UUID `gorm:"type:uuid" json:"approved_by"`
	RejectedBy     *uuid.UUID `gorm:"type:uuid" json:"rejected_by"`
	RejectedReason string     `gorm:"type:text" json:"rejected_reason"`
	BilledBy       *uuid.UUID `gorm:"type:uuid" json:"billed_by"`
	CompletedBy    *uuid.UUID `gorm:"type:uuid" json:"completed_by"`

	Status    string    `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns the ID application-side, portable across the postgres
// and sqlite drivers.
func (a *ActivityLine) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether no transition leaves the given status.
func IsTerminal(status string) bool {
	return status == StatusRejected || status == StatusCompleted
}

// IsExpiredDraft reports whether the line is a draft whose edit window has
// elapsed as of now.
func (a *ActivityLine) IsExpiredDraft(now time.Time) bool {
	return a.Status == StatusDraft && a.DraftExpiresAt != nil && !a.DraftExpiresAt.After(now)
}

// EffectiveStatus is the status read views act on: an expired draft counts as
// pending without its stored status being mutated. Kept separate from the
// persisted status so both can be asserted on independently.
func (a *ActivityLine) EffectiveStatus(now time.Time) string {
	if a.IsExpiredDraft(now) {
		return StatusPending
	}
	return a.Status
}

// EffectiveStatusLabel is the display form; auto-promoted drafts are marked.
func (a *ActivityLine) EffectiveStatusLabel(now time.Time) string {
	if a.IsExpiredDraft(now) {
		return "pending (auto)"
	}
	return a.Status
}

// BillableFromBillingStatus derives the billable flag the way the worksheet
// does: billable and billed count, non-billable and unset do not.
func BillableFromBillingStatus(billingStatus string) bool {
	return billingStatus == BillingBillable || billingStatus == BillingBilled
}
