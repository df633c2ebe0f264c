// Package worksheet holds the in-memory shape of one activity-entry session
// and the pure validation rules that decide whether it can be saved as a
// draft or submitted for approval.
package worksheet

import (
	"fmt"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActorContext identifies who is driving an engine call. It is passed
// explicitly into every operation instead of being read from ambient state.
type ActorContext struct {
	ID          uuid.UUID
	Role        string
	DisplayName string
}

// LineInput is one worksheet row before persistence. Amount is nil when the
// cell is empty; a present negative amount is invalid, not empty.
type LineInput struct {
	LineNo      int              `json:"line_no"`
	Category    string           `json:"category"`
	Amount      *decimal.Decimal `json:"amount"`
	Minutes     int              `json:"minutes"`
	Notes       string           `json:"notes"`
	Attachments []string         `json:"attachments"`
}

// IsBlank reports whether the row carries no data at all. Blank rows are
// ignored by validation and never persisted.
func (l LineInput) IsBlank() bool {
	return l.Category == "" && l.Amount == nil && l.Notes == "" && len(l.Attachments) == 0
}

// Batch is the full worksheet state: parent fields shared by every line plus
// the rows themselves. Account and Matter are the resolved records for the
// selected ids, loaded by the caller so validation stays pure.
type Batch struct {
	BatchID          uuid.UUID
	AccountID        uuid.UUID
	Account          *model.Account
	MatterID         *uuid.UUID
	Matter           *model.Matter
	MatterTitle      string // free-text fallback when no structured matter is selected
	BillingStatus    string
	HandlingLawyerID *uuid.UUID
	GeneralNotes     string
	OccurredOn       string // YYYY-MM-DD
	Lines            []LineInput
}

// OccurredAtLocalNoon parses a YYYY-MM-DD worksheet date as local noon, so
// the selected date remains stable across time zones.
func OccurredAtLocalNoon(ymd string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", ymd, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", ymd, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.Local), nil
}
