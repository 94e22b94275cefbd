package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonSource normalizes the two shapes a MySQL JSON column can arrive as
// through database/sql: the driver may hand back either a []byte or a
// string depending on query path.
func jsonSource(src any) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column source type %T", src)
	}
}

// StringList is a Go representation of a JSON array column (spec §6
// memory_blocks.tags). It implements driver.Valuer/sql.Scanner so it can
// cross the goqu/database-sql boundary as a genuine JSON value instead of
// the unsupported bare []string.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, fmt.Errorf("store: marshaling StringList: %w", err)
	}
	return string(b), nil
}

func (s *StringList) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}
	b, err := jsonSource(src)
	if err != nil {
		return fmt.Errorf("store: scanning StringList: %w", err)
	}
	if len(b) == 0 {
		*s = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("store: unmarshaling StringList: %w", err)
	}
	*s = out
	return nil
}

// JSONMap is a Go representation of a JSON object column (spec §6
// memory_blocks.metadata, block_links.link_metadata). Same rationale as
// StringList: it gives database/sql a Valuer/Scanner to call instead of
// failing on a bare map[string]any.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("store: marshaling JSONMap: %w", err)
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, err := jsonSource(src)
	if err != nil {
		return fmt.Errorf("store: scanning JSONMap: %w", err)
	}
	if len(b) == 0 {
		*m = nil
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("store: unmarshaling JSONMap: %w", err)
	}
	*m = out
	return nil
}

// Value marshals the pair as a JSON object, or NULL when neither side was
// ever set — an unrated block has no confidence row, not a zeroed one.
func (c Confidence) Value() (driver.Value, error) {
	if c.Human == nil && c.AI == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("store: marshaling Confidence: %w", err)
	}
	return string(b), nil
}

func (c *Confidence) Scan(src any) error {
	if src == nil {
		*c = Confidence{}
		return nil
	}
	b, err := jsonSource(src)
	if err != nil {
		return fmt.Errorf("store: scanning Confidence: %w", err)
	}
	if len(b) == 0 {
		*c = Confidence{}
		return nil
	}
	var out Confidence
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("store: unmarshaling Confidence: %w", err)
	}
	*c = out
	return nil
}
