package worksheet

import (
	"strings"

	"backend/internal/model"
)

// The persisted description column is a legacy pipe-delimited summary. The
// engine works with typed detail variants and renders the legacy string only
// at the persistence boundary; ExtractNote recovers the free-text note when a
// draft is reopened.

const narrativeSource = "Source: activity_log"

// Details is one typed narrative variant.
type Details interface {
	// Legacy renders the pipe-delimited description string.
	Legacy() string
}

// LitigationDetails describes a line on a litigation matter.
type LitigationDetails struct {
	Venue          string
	CaseType       string
	TrackerStatus  string
	OfficialCaseNo string
	Notes          string
}

func (d LitigationDetails) Legacy() string {
	parts := []string{
		"Venue: " + orDash(d.Venue),
		"Case Type: " + orDash(d.CaseType),
		"Tracker Status: " + orDash(d.TrackerStatus),
	}
	if d.OfficialCaseNo != "" {
		parts = append(parts, "Official Case No: "+d.OfficialCaseNo)
	}
	if d.Notes != "" {
		parts = append(parts, "Notes: "+d.Notes)
	}
	parts = append(parts, narrativeSource)
	return strings.Join(parts, " | ")
}

// SpecialProjectDetails describes a line on a special-project matter.
type SpecialProjectDetails struct {
	Update  string
	Remarks string
}

func (d SpecialProjectDetails) Legacy() string {
	parts := []string{
		"Special Project Tracker",
		"Link: -",
		"Handling: -",
		"Update: " + orDash(d.Update),
		"Tracker: -",
		"Remarks: " + orDash(d.Remarks),
		narrativeSource,
	}
	return strings.Join(parts, " | ")
}

// RetainerDetails describes a line on a retainer matter. IsOPE switches the
// heading between the activity and cost variants.
type RetainerDetails struct {
	IsOPE       bool
	ContractRef string
	Period      string
	Notes       string
}

func (d RetainerDetails) Legacy() string {
	head := "Retainer Activity"
	if d.IsOPE {
		head = "Retainer OPE"
	}
	parts := []string{
		head + " | Invoice: -",
		"Assignee: -",
		"Location: -",
		"Handling: -",
	}
	if d.ContractRef != "" {
		parts = append(parts, "Contract Ref: "+d.ContractRef)
	}
	if d.Period != "" {
		parts = append(parts, "Period: "+d.Period)
	}
	if d.Notes != "" {
		parts = append(parts, "Notes: "+d.Notes)
	}
	parts = append(parts, narrativeSource)
	return strings.Join(parts, " | ")
}

// PlainNote is the fallback for accounts without a tracker-connected
// category: just the note, or the category label when the note is empty.
type PlainNote struct {
	Text     string
	Fallback string
}

func (d PlainNote) Legacy() string {
	if d.Text != "" {
		return d.Text
	}
	if d.Fallback != "" {
		return d.Fallback
	}
	return "Activity"
}

// BuildDetails assembles the typed narrative for one line from the account
// category, the selected matter (may be nil), the row note and the entry
// class.
func BuildDetails(accountCategory string, matter *model.Matter, note, fallbackLabel, entryClass string) Details {
	note = strings.TrimSpace(note)

	switch model.NormalizeAccountCategory(accountCategory) {
	case model.AccountLitigation:
		d := LitigationDetails{Notes: note}
		if matter != nil {
			d.Venue = strings.TrimSpace(matter.Venue)
			d.CaseType = strings.TrimSpace(matter.CaseType)
			d.TrackerStatus = litigationStatusLabel(matter.Status)
			d.OfficialCaseNo = strings.TrimSpace(matter.OfficialCaseNo)
		} else {
			d.TrackerStatus = "-"
		}
		return d
	case model.AccountSpecialProject:
		return SpecialProjectDetails{Update: note, Remarks: note}
	case model.AccountRetainer:
		d := RetainerDetails{IsOPE: entryClass == model.EntryClassOpex, Notes: note}
		if matter != nil {
			d.ContractRef = strings.TrimSpace(matter.RetainerContractRef)
			d.Period = strings.TrimSpace(matter.RetainerPeriodYYYYMM)
		}
		return d
	}
	return PlainNote{Text: note, Fallback: fallbackLabel}
}

func litigationStatusLabel(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case model.MatterActive:
		return "In progress"
	case model.MatterClosed:
		return "Closed"
	case "":
		return "-"
	}
	return strings.TrimSpace(status)
}

// parseDescriptionMap splits a legacy description into its "Key: value"
// segments, lower-casing keys.
func parseDescriptionMap(description string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(description, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, ":")
		if idx <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:idx]))
		out[key] = strings.TrimSpace(part[idx+1:])
	}
	return out
}

// ExtractNote recovers the free-text note from a legacy description so a
// reopened draft shows what the actor originally typed. Descriptions that
// were never structured come back whole.
func ExtractNote(description, accountCategory string) string {
	raw := strings.TrimSpace(description)
	if raw == "" {
		return ""
	}

	m := parseDescriptionMap(raw)
	lower := strings.ToLower(raw)

	switch model.NormalizeAccountCategory(accountCategory) {
	case model.AccountLitigation:
		_, hasVenue := m["venue"]
		_, hasCaseType := m["case type"]
		_, hasTracker := m["tracker status"]
		if hasVenue || hasCaseType || hasTracker {
			return m["notes"]
		}
		return raw
	case model.AccountSpecialProject:
		_, hasRemarks := m["remarks"]
		_, hasUpdate := m["update"]
		if !strings.Contains(lower, "special project tracker") && !hasRemarks && !hasUpdate {
			return raw
		}
		if r := m["remarks"]; r != "" && r != "-" {
			return r
		}
		if u := m["update"]; u != "-" {
			return u
		}
		return ""
	case model.AccountRetainer:
		_, hasInvoice := m["invoice"]
		_, hasAssignee := m["assignee"]
		structured := strings.Contains(lower, "retainer ope") ||
			strings.Contains(lower, "retainer activity") ||
			hasInvoice || hasAssignee
		if !structured {
			return raw
		}
		if n := m["notes"]; n != "-" {
			return n
		}
		return ""
	}
	return raw
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
