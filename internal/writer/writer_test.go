package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cognisys/memorybank/internal/store"
)

func TestNewIDIsSortableAndUnique(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b) // ids minted later sort after earlier ones
	assert.Len(t, a, 26) // ULID canonical string length
}

func TestApplyPatchOnlyTouchesSetFields(t *testing.T) {
	b := store.Block{Text: "original", State: store.StateDraft, Tags: []string{"a"}}
	newText := "updated"

	applyPatch(&b, Patch{Text: &newText})

	assert.Equal(t, "updated", b.Text)
	assert.Equal(t, store.StateDraft, b.State)
	assert.Equal(t, store.StringList{"a"}, b.Tags)
}

func TestUpsertPropertyRejectsZeroOrMultipleValues(t *testing.T) {
	w := New(nil)
	text := "value"
	number := 1.5

	err := w.UpsertProperty(nil, nil, store.Property{BlockID: "b1", Name: "p", ValueText: &text, ValueNumber: &number})
	assert.Error(t, err)

	err = w.UpsertProperty(nil, nil, store.Property{BlockID: "b1", Name: "p"})
	assert.Error(t, err)
}

func TestPatchExpectedVersionOrCurrent(t *testing.T) {
	p := Patch{ExpectedVersion: 3}
	assert.Equal(t, 3, p.ExpectedVersionOrCurrent(7))

	p2 := Patch{}
	assert.Equal(t, 7, p2.ExpectedVersionOrCurrent(7))
}
