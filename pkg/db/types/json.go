package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// FeatureSet is a boolean feature map persisted as JSON text.
type FeatureSet map[string]bool

// Enabled reports whether a feature flag is switched on.
func (f FeatureSet) Enabled(name string) bool {
	return f[name]
}

// Names returns the enabled feature names in sorted order.
func (f FeatureSet) Names() []string {
	out := make([]string, 0, len(f))
	for name, on := range f {
		if on {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Covers reports whether every feature enabled in other is enabled in f.
func (f FeatureSet) Covers(other FeatureSet) bool {
	for name, on := range other {
		if on && !f[name] {
			return false
		}
	}
	return true
}

func (f *FeatureSet) Scan(src any) error {
	return scanJSON(src, f, func() { *f = FeatureSet{} })
}

func (f FeatureSet) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]bool(f))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// GormDataType keeps the column portable between postgres jsonb and sqlite text.
func (FeatureSet) GormDataType() string {
	return "text"
}

// StringList is a string slice persisted as a JSON array.
type StringList []string

// Contains reports whether value is present.
func (s StringList) Contains(value string) bool {
	for _, candidate := range s {
		if candidate == value {
			return true
		}
	}
	return false
}

func (s *StringList) Scan(src any) error {
	return scanJSON(src, s, func() { *s = StringList{} })
}

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (StringList) GormDataType() string {
	return "text"
}

func scanJSON(src any, dst any, empty func()) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		empty()
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		empty()
		return nil
	}
	return json.Unmarshal(raw, dst)
}
