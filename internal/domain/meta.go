package domain

import (
	"reflect"
	"time"
)

// RunMeta describes the current simulation run. Only LastUpdated takes part
// in reconciliation; Fields are passed through to viewers untouched.
type RunMeta struct {
	LastUpdated time.Time      `json:"lastUpdated"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// IsZero reports whether nothing is known about the run.
func (m RunMeta) IsZero() bool {
	return m.LastUpdated.IsZero() && len(m.Fields) == 0
}

// Merge shallowly merges patch into m. Nil field values and a zero
// LastUpdated never erase a known value.
func (m RunMeta) Merge(patch RunMeta) RunMeta {
	out := RunMeta{LastUpdated: m.LastUpdated}
	if len(m.Fields) > 0 || len(patch.Fields) > 0 {
		out.Fields = make(map[string]any, len(m.Fields)+len(patch.Fields))
	}
	for k, v := range m.Fields {
		out.Fields[k] = v
	}
	for k, v := range patch.Fields {
		if v == nil {
			continue
		}
		out.Fields[k] = v
	}
	if !patch.LastUpdated.IsZero() {
		out.LastUpdated = patch.LastUpdated
	}
	return out
}

// Equal compares two metas structurally.
func (m RunMeta) Equal(o RunMeta) bool {
	if !m.LastUpdated.Equal(o.LastUpdated) {
		return false
	}
	if len(m.Fields) == 0 && len(o.Fields) == 0 {
		return true
	}
	return reflect.DeepEqual(m.Fields, o.Fields)
}
