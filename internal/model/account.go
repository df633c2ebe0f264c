package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account category enum constants
const (
	AccountLitigation     = "litigation"
	AccountSpecialProject = "special_project"
	AccountRetainer       = "retainer"
)

// Account is a client/engagement that activity lines are logged against.
// Archived accounts are kept for history but reject new activity.
type Account struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string     `gorm:"type:varchar(255);not null" json:"title"`
	Category    string     `gorm:"type:varchar(30);not null;index" json:"category"` // litigation, special_project, retainer
	AccountKind string     `gorm:"type:varchar(30)" json:"account_kind"`            // company, personal
	IsArchived  bool       `gorm:"default:false;index" json:"is_archived"`
	CreatedBy   *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// NormalizeAccountCategory folds legacy spellings ("Special Project",
// "litig.", "special-project") onto the canonical enum values.
func NormalizeAccountCategory(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	switch {
	case strings.Contains(s, "special"):
		return AccountSpecialProject
	case strings.Contains(s, "litig"):
		return AccountLitigation
	case strings.Contains(s, "retainer"):
		return AccountRetainer
	}
	return strings.ReplaceAll(s, " ", "_")
}

// AccountCategoryLabel returns the display form of a category value.
func AccountCategoryLabel(raw string) string {
	switch NormalizeAccountCategory(raw) {
	case AccountRetainer:
		return "Retainer"
	case AccountLitigation:
		return "Litigation"
	case AccountSpecialProject:
		return "Special Project"
	}
	return strings.TrimSpace(raw)
}
