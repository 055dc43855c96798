package engine

import "sort"

// DefaultInstallOrder is the priority assigned to resource types that do
// not appear in an InstallOrderTable. It sorts after every registered
// type on create and before them on update and delete.
const DefaultInstallOrder = 5000

// SortDirection selects ascending or descending priority order.
type SortDirection int

const (
	// Ascending sorts low priorities first (create order).
	Ascending SortDirection = iota

	// Descending sorts high priorities first (update and delete order).
	Descending
)

// InstallOrderTable maps resource type tags to install priorities.
// Lower priorities are created earlier. Tables are values passed to the
// planner rather than package state, so callers with different backends
// can carry different orderings side by side.
type InstallOrderTable map[string]int

// Priority returns the install priority for a type tag, or
// DefaultInstallOrder when the type is not registered.
func (t InstallOrderTable) Priority(typeTag string) int {
	if p, ok := t[typeTag]; ok {
		return p
	}
	return DefaultInstallOrder
}

// Merge returns a new table combining the receiver with overrides.
// Entries in overrides win.
func (t InstallOrderTable) Merge(overrides InstallOrderTable) InstallOrderTable {
	merged := make(InstallOrderTable, len(t)+len(overrides))
	for k, v := range t {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// SortByInstallOrder stable-sorts resources by install priority in the
// given direction. Resources with equal priority keep their relative
// input order. The input slice is sorted in place and returned.
func SortByInstallOrder(resources []*Resource, table InstallOrderTable, dir SortDirection) []*Resource {
	sort.SliceStable(resources, func(i, j int) bool {
		pi := table.Priority(resources[i].Type)
		pj := table.Priority(resources[j].Type)
		if dir == Descending {
			return pi > pj
		}
		return pi < pj
	})
	return resources
}
