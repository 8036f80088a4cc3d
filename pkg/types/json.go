package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a list of strings persisted as a JSONB array.
type StringList []string

// Value marshals the list, writing an empty array instead of null.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes a JSONB array into the list.
func (l *StringList) Scan(value interface{}) error {
	var out []string
	if err := ScanJSON(value, &out, "string list"); err != nil {
		return err
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// MarshalJSONValue encodes v for a JSONB column.
func MarshalJSONValue(v any) (driver.Value, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// ScanJSON decodes a driver value holding JSON text into dest. A NULL leaves dest untouched.
func ScanJSON(value interface{}, dest any, name string) error {
	if value == nil {
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%s: unsupported scan type %T", name, value)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
