package matcher

import "sort"

// ClaimSet is an immutable snapshot of claimed expenditure IDs. Passes receive
// the snapshot of everything claimed before them and return a new set of their
// own claims; combining sets always allocates rather than mutating, so the
// at-most-once invariant stays testable per pass.
type ClaimSet struct {
	ids map[string]struct{}
}

// NewClaimSet returns an empty claim set.
func NewClaimSet() ClaimSet {
	return ClaimSet{ids: map[string]struct{}{}}
}

// ClaimSetOf builds a claim set from explicit IDs.
func ClaimSetOf(ids ...string) ClaimSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return ClaimSet{ids: m}
}

// Has reports whether id has been claimed.
func (c ClaimSet) Has(id string) bool {
	_, ok := c.ids[id]
	return ok
}

// Len returns the number of claimed IDs.
func (c ClaimSet) Len() int {
	return len(c.ids)
}

// Union returns a new set containing the claims of both sets.
func (c ClaimSet) Union(other ClaimSet) ClaimSet {
	m := make(map[string]struct{}, len(c.ids)+len(other.ids))
	for id := range c.ids {
		m[id] = struct{}{}
	}
	for id := range other.ids {
		m[id] = struct{}{}
	}
	return ClaimSet{ids: m}
}

// IDs returns the claimed IDs in sorted order.
func (c ClaimSet) IDs() []string {
	out := make([]string, 0, len(c.ids))
	for id := range c.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
