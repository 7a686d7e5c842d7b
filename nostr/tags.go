package nostr

// Value returns the value of the first tag named name, or "" if absent.
// A tag's value is its second element; a bare [name] tag counts as
// present with an empty value.
func (t Tags) Value(name string) string {
	for _, tag := range t {
		if len(tag) >= 1 && tag[0] == name {
			if len(tag) >= 2 {
				return tag[1]
			}
			return ""
		}
	}
	return ""
}

// Values returns the values of every tag named name, in outer order.
func (t Tags) Values(name string) []string {
	var out []string
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name {
			out = append(out, tag[1])
		}
	}
	return out
}

// Has reports whether any tag is named name.
func (t Tags) Has(name string) bool {
	for _, tag := range t {
		if len(tag) >= 1 && tag[0] == name {
			return true
		}
	}
	return false
}
