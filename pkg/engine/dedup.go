package engine

// Dedup removes duplicate resources from a plan sequence, keeping the
// first occurrence of each (type, name, group) identity and preserving
// order otherwise. It is idempotent: deduplicating twice changes
// nothing. The input slice is not modified.
func Dedup(resources []*Resource) []*Resource {
	out := make([]*Resource, 0, len(resources))
	seen := make(map[ResourceKey]struct{}, len(resources))
	for _, r := range resources {
		if r == nil {
			continue
		}
		key := r.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
