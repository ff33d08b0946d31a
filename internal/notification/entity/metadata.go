package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is free-form JSON a producer attaches to a notification. It is
// stored in a jsonb column and handed back to clients untouched; digest rows
// also record their item and group counts here.
// @swaggertype object
type Metadata map[string]any

// Value implements driver.Valuer. A nil map is stored as an empty object so
// the column never holds SQL NULL.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case map[string]any:
		*m = Metadata(v)
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("entity: cannot scan %T into Metadata", src)
	}

	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("entity: decode metadata: %w", err)
	}
	*m = out
	return nil
}
