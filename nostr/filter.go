package nostr

import (
	"encoding/json"
)

// Filter is a NIP-01 subscription filter. A relay must return events
// matching every present selector (AND across selectors, OR within a
// list). Tags holds the dynamic "#<tag>" selectors (e.g. #e, #p, #t);
// any single letter a-z/A-Z is a legal key.
type Filter struct {
	IDs      []string
	Authors  []string
	Kinds    []int
	Tags     map[string][]string
	Since    *int64
	Until    *int64
	Limit    int
	hasLimit bool
}

// WithLimit sets Limit and marks it present, since zero is a legal limit
// distinct from "no limit selector".
func (f *Filter) WithLimit(n int) *Filter {
	f.Limit = n
	f.hasLimit = true
	return f
}

// AddTag appends an allowed value to the "#<tag>" selector, where tag is
// a single letter.
func (f *Filter) AddTag(tag, value string) *Filter {
	if f.Tags == nil {
		f.Tags = make(map[string][]string)
	}
	f.Tags[tag] = append(f.Tags[tag], value)
	return f
}

// MarshalJSON encodes the filter as the wire object, omitting any
// selector that is absent rather than encoding it as null.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, 4+len(f.Tags))
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for tag, values := range f.Tags {
		m["#"+tag] = values
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.hasLimit {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a wire filter object, recovering any "#<tag>"
// selector into Tags while treating known keys specially.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	*f = Filter{}
	for key, raw := range m {
		switch key {
		case "ids":
			if err := json.Unmarshal(raw, &f.IDs); err != nil {
				return err
			}
		case "authors":
			if err := json.Unmarshal(raw, &f.Authors); err != nil {
				return err
			}
		case "kinds":
			if err := json.Unmarshal(raw, &f.Kinds); err != nil {
				return err
			}
		case "since":
			var v int64
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			f.Since = &v
		case "until":
			var v int64
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			f.Until = &v
		case "limit":
			var v int
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			f.Limit = v
			f.hasLimit = true
		default:
			if len(key) == 2 && key[0] == '#' {
				var values []string
				if err := json.Unmarshal(raw, &values); err != nil {
					return err
				}
				if f.Tags == nil {
					f.Tags = make(map[string][]string)
				}
				f.Tags[key[1:]] = values
			}
		}
	}
	return nil
}

// Equal reports value equality across all selectors, including the
// dynamic tag map.
func (f Filter) Equal(other Filter) bool {
	if !stringSliceEqual(f.IDs, other.IDs) || !stringSliceEqual(f.Authors, other.Authors) {
		return false
	}
	if !intSliceEqual(f.Kinds, other.Kinds) {
		return false
	}
	if !ptrInt64Equal(f.Since, other.Since) || !ptrInt64Equal(f.Until, other.Until) {
		return false
	}
	if f.hasLimit != other.hasLimit || (f.hasLimit && f.Limit != other.Limit) {
		return false
	}
	if len(f.Tags) != len(other.Tags) {
		return false
	}
	for k, v := range f.Tags {
		if !stringSliceEqual(v, other.Tags[k]) {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ptrInt64Equal(a, b *int64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
