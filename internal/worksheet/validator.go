package worksheet

import (
	"backend/internal/catalog"

	"github.com/google/uuid"
)

// Field error keys, matching the worksheet's parent fields.
const (
	FieldAccount        = "account_id"
	FieldMatter         = "matter_id"
	FieldOccurredOn     = "occurred_on"
	FieldHandlingLawyer = "handling_lawyer_id"
	FieldEntries        = "entries"
)

// Result is the outcome of validating a batch. CompleteLines are the rows
// eligible for persistence regardless of whether the batch as a whole passed.
// FieldErrors/RowErrors carry the human-readable messages the UI renders next
// to the offending field or row.
type Result struct {
	OK            bool
	CompleteLines []LineInput
	FieldErrors   map[string]string
	RowErrors     map[int]string
}

func newResult() Result {
	return Result{
		OK:          true,
		FieldErrors: map[string]string{},
		RowErrors:   map[int]string{},
	}
}

func (r *Result) fieldError(field, msg string) {
	if _, dup := r.FieldErrors[field]; !dup {
		r.FieldErrors[field] = msg
	}
	r.OK = false
}

// lineComplete: a row qualifies for persistence only with a category and a
// non-negative amount.
func lineComplete(l LineInput) bool {
	return l.Category != "" && l.Amount != nil && !l.Amount.IsNegative()
}

// ValidateForDraft decides whether the batch can be saved as a draft: parent
// account (not archived) and date must be set, a selected matter must belong
// to the selected account, and at least one row must be complete.
//
// Partially filled rows are flagged in RowErrors but do not stop complete
// rows from being collected. When report is false (the silent mode that gates
// buttons and autosave) those flags are advisory and do not fail the batch;
// when report is true they do, so the actor fixes them before an explicit
// save.
func ValidateForDraft(b Batch, report bool) Result {
	res := newResult()

	if b.AccountID == uuid.Nil {
		res.fieldError(FieldAccount, "Select an account.")
	} else if b.Account != nil && b.Account.IsArchived {
		res.fieldError(FieldAccount, "Archived accounts cannot receive new activities. Unarchive first.")
	}

	if b.Matter != nil && b.Matter.AccountID != b.AccountID {
		res.fieldError(FieldMatter, "Selected matter does not belong to this account.")
	}

	if b.OccurredOn == "" {
		res.fieldError(FieldOccurredOn, "Select a date.")
	} else if _, err := OccurredAtLocalNoon(b.OccurredOn); err != nil {
		res.fieldError(FieldOccurredOn, "Select a valid date.")
	}

	for _, l := range b.Lines {
		if l.IsBlank() {
			continue
		}
		switch {
		case lineComplete(l):
			res.CompleteLines = append(res.CompleteLines, l)
		case l.Category != "" && l.Amount == nil:
			res.RowErrors[l.LineNo] = "Amount required."
		case l.Amount != nil && l.Amount.IsNegative():
			res.RowErrors[l.LineNo] = "Amount must be a valid number."
		case l.Category == "":
			res.RowErrors[l.LineNo] = "Pick a category or clear the row."
		}
	}

	if len(res.CompleteLines) == 0 {
		res.fieldError(FieldEntries, "Add at least one entry row (category + amount).")
	}

	if report && len(res.RowErrors) > 0 {
		res.OK = false
	}

	return res
}

// ValidateForSubmit is a superset of draft validation: it additionally
// requires a handling lawyer and a receipt on every complete line whose
// category demands one. Any violation invalidates the whole submission;
// there is no partial submit.
func ValidateForSubmit(b Batch, report bool) Result {
	res := ValidateForDraft(b, report)

	if b.HandlingLawyerID == nil || *b.HandlingLawyerID == uuid.Nil {
		res.fieldError(FieldHandlingLawyer, "Handling Lawyer is required to submit.")
	}

	for _, l := range res.CompleteLines {
		meta, ok := catalog.Lookup(l.Category)
		if !ok {
			res.RowErrors[l.LineNo] = "Unknown category."
			res.OK = false
			continue
		}
		if meta.NeedsReceipt && len(l.Attachments) == 0 {
			res.RowErrors[l.LineNo] = "Receipt required."
			res.OK = false
		}
	}

	return res
}
