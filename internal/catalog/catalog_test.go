package catalog

import (
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	meta, ok := Lookup("appearance_fee")
	require.True(t, ok)
	assert.Equal(t, "AF", meta.FeeCode)
	assert.Equal(t, model.EntryClassService, meta.EntryClass)
	assert.False(t, meta.IsCost())
	assert.False(t, meta.NeedsReceipt)

	_, ok = Lookup("no_such_category")
	assert.False(t, ok)
}

func TestReceiptRequirements(t *testing.T) {
	needsReceipt := map[string]bool{
		"appearance_fee": false,
		"pleading_major": false,
		"meeting":        false,
		"miscellaneous":  false,
		"notary_fee":     true,
		"ope_printing":   true,
		"ope_envelope":   true,
		"ope_lbc":        true,
		"ope_transpo":    true,
		"ope_manhours":   false, // the one OPE category without a receipt gate
	}

	for key, want := range needsReceipt {
		meta, ok := Lookup(key)
		require.True(t, ok, key)
		assert.Equal(t, want, meta.NeedsReceipt, key)
	}
}

func TestCostLinesCarryExpenseType(t *testing.T) {
	for _, meta := range All() {
		if meta.IsCost() {
			assert.NotEmpty(t, meta.ExpenseType, meta.Key)
			assert.Equal(t, model.EntryClassOpex, meta.EntryClass, meta.Key)
		} else {
			assert.Empty(t, meta.ExpenseType, meta.Key)
		}
	}
}

func TestDisplayLabel(t *testing.T) {
	assert.Equal(t, "Courier", DisplayLabel("ope_lbc"))
	assert.Equal(t, "Appearance", DisplayLabel("appearance_fee"))
	assert.Equal(t, "mystery", DisplayLabel("mystery"))
}

func TestBundlesReferenceKnownCategories(t *testing.T) {
	for _, b := range Bundles() {
		require.NotEmpty(t, b.Categories, b.Key)
		for _, key := range b.Categories {
			_, ok := Lookup(key)
			assert.True(t, ok, "%s references unknown category %s", b.Key, key)
		}
	}
}
