package engine

// Filter selects resources by exact equality on group, name, and type.
// Empty fields match everything; set fields are combined with AND. There
// is no substring or pattern matching: a filter that names a group
// selects exactly that group.
type Filter struct {
	// Group matches Resource.Group exactly when set.
	Group string `json:"group,omitempty"`

	// Name matches Resource.Name exactly when set.
	Name string `json:"name,omitempty"`

	// Type matches Resource.Type exactly when set.
	Type string `json:"type,omitempty"`
}

// Empty reports whether the filter matches every resource.
func (f Filter) Empty() bool {
	return f.Group == "" && f.Name == "" && f.Type == ""
}

// Matches reports whether the resource passes the filter.
func (f Filter) Matches(r *Resource) bool {
	if r == nil {
		return false
	}
	if f.Group != "" && r.Group != f.Group {
		return false
	}
	if f.Name != "" && r.Name != f.Name {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	return true
}

// Validate always succeeds today; it exists so the planner has a single
// place to reject malformed filters if fields grow constraints.
func (f Filter) Validate() error {
	return nil
}
