// Package catalog is the static table mapping an activity category to its
// billing metadata. Pure lookups, no side effects; an unknown key is simply
// absent.
package catalog

import "backend/internal/model"

// Group enum constants
const (
	GroupActivity = "activity"
	GroupOPE      = "ope"
)

// ExpenseType enum constants for cost lines
const (
	ExpenseCourier   = "courier"
	ExpensePrinting  = "printing"
	ExpenseEnvelope  = "envelope"
	ExpenseTransport = "transport"
	ExpenseNotary    = "notary"
	ExpenseManhour   = "manhour"
)

// Meta is the billing metadata of one activity category.
type Meta struct {
	Key          string
	Label        string
	FeeCode      string // empty when the category has no fee code
	NeedsReceipt bool
	Group        string // activity or ope
	EntryClass   string // service, opex, meeting, misc
	ExpenseType  string // set for cost lines only
}

// IsCost reports whether the category produces a cost/OPE line rather than a
// billable-service line.
func (m Meta) IsCost() bool {
	return m.Group == GroupOPE
}

// Receipt required by default for OPE expense categories (except man hour).
var categories = []Meta{
	{Key: "appearance_fee", Label: "Appearance", FeeCode: "AF", NeedsReceipt: false, Group: GroupActivity, EntryClass: model.EntryClassService},
	{Key: "pleading_major", Label: "Pleading", FeeCode: "PF", NeedsReceipt: false, Group: GroupActivity, EntryClass: model.EntryClassService},
	{Key: "meeting", Label: "Meeting", NeedsReceipt: false, Group: GroupActivity, EntryClass: model.EntryClassMeeting},
	{Key: "miscellaneous", Label: "Miscellaneous", NeedsReceipt: false, Group: GroupActivity, EntryClass: model.EntryClassMisc},
	{Key: "notary_fee", Label: "Notary", FeeCode: "NF", NeedsReceipt: true, Group: GroupOPE, EntryClass: model.EntryClassOpex, ExpenseType: ExpenseNotary},
	{Key: "ope_printing", Label: "Printing", FeeCode: "OPE", NeedsReceipt: true, Group: GroupOPE, EntryClass: model.EntryClassOpex, ExpenseType: ExpensePrinting},
	{Key: "ope_envelope", Label: "Envelope", FeeCode: "OPE", NeedsReceipt: true, Group: GroupOPE, EntryClass: model.EntryClassOpex, ExpenseType: ExpenseEnvelope},
	{Key: "ope_lbc", Label: "Courier", FeeCode: "OPE", NeedsReceipt: true, Group: GroupOPE, EntryClass: model.EntryClassOpex, ExpenseType: ExpenseCourier},
	{Key: "ope_transpo", Label: "Transpo", FeeCode: "OPE", NeedsReceipt: true, Group: GroupOPE, EntryClass: model.EntryClassOpex, ExpenseType: ExpenseTransport},
	{Key: "ope_manhours", Label: "Man Hour", FeeCode: "OPE", NeedsReceipt: false, Group: GroupOPE, EntryClass: model.EntryClassOpex, ExpenseType: ExpenseManhour},
}

var byKey = func() map[string]Meta {
	m := make(map[string]Meta, len(categories))
	for _, c := range categories {
		m[c.Key] = c
	}
	return m
}()

// Display overrides where the worksheet label differs from the list label.
var displayLabel = map[string]string{
	"ope_lbc": "Courier",
}

// Lookup returns the metadata for a category key.
func Lookup(key string) (Meta, bool) {
	m, ok := byKey[key]
	return m, ok
}

// All returns every category in worksheet order.
func All() []Meta {
	out := make([]Meta, len(categories))
	copy(out, categories)
	return out
}

// DisplayLabel is the user-facing label for a category key; unknown keys fall
// back to the key itself.
func DisplayLabel(key string) string {
	if l, ok := displayLabel[key]; ok {
		return l
	}
	if m, ok := byKey[key]; ok {
		return m.Label
	}
	return key
}

// Bundle is a worksheet row template: picking it pre-fills one row per
// category.
type Bundle struct {
	Key        string   `json:"key"`
	Label      string   `json:"label"`
	Categories []string `json:"categories"`
}

var bundles = []Bundle{
	{Key: "notary_print_env", Label: "Notary + Printing + Envelope", Categories: []string{"notary_fee", "ope_printing", "ope_envelope"}},
	{Key: "delivery", Label: "Delivery bundle (Courier + Transpo)", Categories: []string{"ope_lbc", "ope_transpo"}},
	{Key: "court_appearance", Label: "Court appearance (Appearance + Transpo + Printing)", Categories: []string{"appearance_fee", "ope_transpo", "ope_printing"}},
}

// Bundles returns the available row templates.
func Bundles() []Bundle {
	out := make([]Bundle, len(bundles))
	copy(out, bundles)
	return out
}
