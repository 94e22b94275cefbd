package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

const taskSchemaV1 = `{
  "type": "object",
  "properties": {"status": {"type": "string"}},
  "required": ["status"]
}`

func TestRegisterRejectsNonSequentialVersion(t *testing.T) {
	r := &Registry{latest: map[string]int{"task": 1}}
	err := r.Register(nil, "task", 3, json.RawMessage(taskSchemaV1))
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "task@2", cacheKey("task", 2))
}

func TestAvailableTypesSortedByName(t *testing.T) {
	r := &Registry{latest: map[string]int{"knowledge": 1, "bug": 2, "epic": 1}}
	types := r.AvailableTypes()
	assert.Equal(t, []TypeVersion{{Type: "bug", Version: 2}, {Type: "epic", Version: 1}, {Type: "knowledge", Version: 1}}, types)
}
