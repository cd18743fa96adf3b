// Package serialization provides the generic serialized document model
// shared by project documents, templates and version-control snapshots.
//
// A Data node has a type, a flat property map and ordered children. The
// same tree round-trips through the JSON and YAML codecs.
package serialization

import (
	"encoding/json"
	"strconv"
)

// Data is one node of a serialized document.
type Data struct {
	Type       string         `json:"type" yaml:"type"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	Children   []*Data        `json:"children,omitempty" yaml:"children,omitempty"`
}

// New returns an empty node of the given type.
func New(typ string) *Data {
	return &Data{Type: typ}
}

// IsValid reports whether d is a usable node.
func (d *Data) IsValid() bool {
	return d != nil && d.Type != ""
}

// HasType reports whether d is a node of type typ.
func (d *Data) HasType(typ string) bool {
	return d.IsValid() && d.Type == typ
}

// ChildWithName returns the first direct child of type typ, or nil.
func (d *Data) ChildWithName(typ string) *Data {
	if d == nil {
		return nil
	}
	for _, c := range d.Children {
		if c.HasType(typ) {
			return c
		}
	}
	return nil
}

// ChildrenWithType returns the direct children of type typ, in order.
func (d *Data) ChildrenWithType(typ string) []*Data {
	if d == nil {
		return nil
	}
	var out []*Data
	for _, c := range d.Children {
		if c.HasType(typ) {
			out = append(out, c)
		}
	}
	return out
}

// AppendChild adds c as the last child of d. Invalid children are ignored.
func (d *Data) AppendChild(c *Data) *Data {
	if c.IsValid() {
		d.Children = append(d.Children, c)
	}
	return d
}

// Set stores a property and returns d for chaining.
func (d *Data) Set(key string, value any) *Data {
	if d.Properties == nil {
		d.Properties = make(map[string]any)
	}
	d.Properties[key] = value
	return d
}

// Has reports whether the property key is present.
func (d *Data) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.Properties[key]
	return ok
}

// String returns a string property or def.
func (d *Data) String(key, def string) string {
	if d == nil {
		return def
	}
	switch v := d.Properties[key].(type) {
	case string:
		return v
	case nil:
		return def
	default:
		if f, ok := toFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return def
	}
}

// Float returns a numeric property or def.
func (d *Data) Float(key string, def float64) float64 {
	if d == nil {
		return def
	}
	if f, ok := toFloat(d.Properties[key]); ok {
		return f
	}
	return def
}

// Int returns an integer property or def. Fractions are truncated.
func (d *Data) Int(key string, def int) int {
	if d == nil {
		return def
	}
	if f, ok := toFloat(d.Properties[key]); ok {
		return int(f)
	}
	return def
}

// Bool returns a boolean property or def.
func (d *Data) Bool(key string, def bool) bool {
	if d == nil {
		return def
	}
	switch v := d.Properties[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
