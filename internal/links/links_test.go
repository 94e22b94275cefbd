package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeAcceptsCanonicalAndAlias(t *testing.T) {
	r, err := Canonicalize("depends_on")
	require.NoError(t, err)
	assert.Equal(t, RelDependsOn, r)

	r, err = Canonicalize("depends-on")
	require.NoError(t, err)
	assert.Equal(t, RelDependsOn, r)
}

func TestCanonicalizeRejectsUnknown(t *testing.T) {
	_, err := Canonicalize("frobnicates")
	assert.Error(t, err)
}

func TestInverseLookup(t *testing.T) {
	inv, ok := Inverse(RelDependsOn)
	assert.True(t, ok)
	assert.Equal(t, RelBlocks, inv)

	inv, ok = Inverse(RelRelatedTo)
	assert.True(t, ok)
	assert.Equal(t, RelRelatedTo, inv)

	_, ok = Inverse(RelReferences)
	assert.False(t, ok)
}

func TestNewManagerIsStateless(t *testing.T) {
	assert.NotNil(t, NewManager())
}

func TestCyclicRelationsOnlyCoverDependencySubgraph(t *testing.T) {
	assert.True(t, cyclicRelations[RelDependsOn])
	assert.True(t, cyclicRelations[RelBlocks])
	assert.False(t, cyclicRelations[RelRelatedTo])
	assert.False(t, cyclicRelations[RelChildOf])
}
