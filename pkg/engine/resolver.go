package engine

import (
	"fmt"
	"strings"
)

// ResolveMode selects the direction of dependency ordering.
type ResolveMode int

const (
	// CreateOrder places every dependency before its dependents. Used
	// for create and update runs.
	CreateOrder ResolveMode = iota

	// DeleteOrder places every dependent before its dependencies, so a
	// resource is torn down before anything it relies on. Used for
	// delete runs.
	DeleteOrder
)

func (m ResolveMode) String() string {
	if m == DeleteOrder {
		return "delete-order"
	}
	return "create-order"
}

// Resolve orders resources so that dependency constraints hold for the
// given mode, preserving the relative input order of unconstrained
// resources. Dependencies referenced through DependsOn but absent from
// the input are pulled into the result next to their first dependent.
//
// The sort is a stable Kahn's algorithm: each round emits the earliest
// remaining resource whose constraints are satisfied. When no resource
// can be emitted the remaining set contains a cycle, which is returned
// as a permanent planning error naming the cycle path.
func Resolve(resources []*Resource, mode ResolveMode) ([]*Resource, error) {
	r := newResolver(resources)
	return r.sort(mode)
}

// node is one resolver work item. deps index into the resolver's node
// slice and point from a resource to its dependencies.
type node struct {
	res  *Resource
	deps []int
	done bool
}

type resolver struct {
	nodes []node
	index map[ResourceKey]int
	// byTypeName resolves dependency references that carry no group
	// label against stamped in-plan resources.
	byTypeName map[[2]string]int
}

func newResolver(resources []*Resource) *resolver {
	r := &resolver{
		index:      make(map[ResourceKey]int, len(resources)),
		byTypeName: make(map[[2]string]int, len(resources)),
	}
	// Register the in-plan resources first so group-less dependency
	// references bind to their stamped in-plan entries rather than
	// being pulled in as duplicates.
	for _, res := range resources {
		r.register(res)
	}
	// Pull absent dependencies next to their first dependent, then
	// wire the edges.
	var ordered []int
	for _, res := range resources {
		if res == nil {
			continue
		}
		ordered = r.pull(ordered, r.index[res.Key()])
	}
	// Rebuild the node slice in pulled order so the stable sort scans
	// resources in their final seed positions.
	r.reorder(ordered)
	for i := range r.nodes {
		r.wireEdges(i)
	}
	return r
}

// register adds a resource as a node, folding duplicate identities into
// the existing node, and returns its index.
func (r *resolver) register(res *Resource) int {
	if res == nil {
		return -1
	}
	key := res.Key()
	if i, ok := r.index[key]; ok {
		return i
	}
	i := len(r.nodes)
	r.nodes = append(r.nodes, node{res: res})
	r.index[key] = i
	tn := [2]string{res.Type, res.Name}
	if _, ok := r.byTypeName[tn]; !ok {
		r.byTypeName[tn] = i
	}
	return i
}

// lookup finds the node for a dependency reference. References without a
// group label match the stamped in-plan resource of the same type and
// name.
func (r *resolver) lookup(dep *Resource) (int, bool) {
	if i, ok := r.index[dep.Key()]; ok {
		return i, true
	}
	if dep.Group == "" {
		if i, ok := r.byTypeName[[2]string{dep.Type, dep.Name}]; ok {
			return i, true
		}
	}
	return 0, false
}

// pull appends node i to the order, first pulling in any of its
// dependencies that are not registered yet so they land immediately
// before their first dependent. done doubles as the "already placed"
// marker here and is reset before sorting.
func (r *resolver) pull(ordered []int, i int) []int {
	if i < 0 || r.nodes[i].done {
		return ordered
	}
	r.nodes[i].done = true
	for _, dep := range r.nodes[i].res.DependsOn {
		if dep == nil {
			continue
		}
		if _, ok := r.lookup(dep); !ok {
			j := r.register(dep.Clone())
			ordered = r.pull(ordered, j)
		}
	}
	return append(ordered, i)
}

// reorder rewrites the node slice and index maps into pulled order.
func (r *resolver) reorder(ordered []int) {
	nodes := make([]node, 0, len(ordered))
	index := make(map[ResourceKey]int, len(ordered))
	byTypeName := make(map[[2]string]int, len(ordered))
	for _, old := range ordered {
		n := r.nodes[old]
		n.done = false
		i := len(nodes)
		nodes = append(nodes, n)
		index[n.res.Key()] = i
		tn := [2]string{n.res.Type, n.res.Name}
		if _, ok := byTypeName[tn]; !ok {
			byTypeName[tn] = i
		}
	}
	r.nodes = nodes
	r.index = index
	r.byTypeName = byTypeName
}

// wireEdges connects node i to its dependencies. Every dependency is
// registered by now; self references are dropped.
func (r *resolver) wireEdges(i int) {
	for _, dep := range r.nodes[i].res.DependsOn {
		if dep == nil {
			continue
		}
		j, ok := r.lookup(dep)
		if !ok || j == i {
			continue
		}
		r.nodes[i].deps = append(r.nodes[i].deps, j)
	}
}

// ready reports whether node i can be emitted: in CreateOrder all of its
// dependencies are done; in DeleteOrder everything depending on it is.
func (r *resolver) ready(i int, mode ResolveMode) bool {
	if mode == CreateOrder {
		for _, d := range r.nodes[i].deps {
			if !r.nodes[d].done {
				return false
			}
		}
		return true
	}
	for j := range r.nodes {
		if r.nodes[j].done || j == i {
			continue
		}
		for _, d := range r.nodes[j].deps {
			if d == i {
				return false
			}
		}
	}
	return true
}

func (r *resolver) sort(mode ResolveMode) ([]*Resource, error) {
	out := make([]*Resource, 0, len(r.nodes))
	remaining := len(r.nodes)
	for remaining > 0 {
		emitted := false
		for i := range r.nodes {
			if r.nodes[i].done || !r.ready(i, mode) {
				continue
			}
			r.nodes[i].done = true
			out = append(out, r.nodes[i].res)
			remaining--
			emitted = true
			break
		}
		if !emitted {
			return nil, NewPermanentError(
				fmt.Sprintf("dependency cycle: %s", r.cyclePath()), nil).
				WithCode(ErrCodeCycle)
		}
	}
	return out, nil
}

// cyclePath walks dependency edges among unemitted nodes until one
// repeats and renders the loop for the error message.
func (r *resolver) cyclePath() string {
	for i := range r.nodes {
		if r.nodes[i].done {
			continue
		}
		if path := r.walkCycle(i); path != "" {
			return path
		}
	}
	return "unknown"
}

func (r *resolver) walkCycle(start int) string {
	seen := make(map[int]int)
	var path []int
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			path = append(path[at:], cur)
			break
		}
		seen[cur] = len(path)
		path = append(path, cur)
		next := -1
		for _, d := range r.nodes[cur].deps {
			if !r.nodes[d].done {
				next = d
				break
			}
		}
		if next == -1 {
			return ""
		}
		cur = next
	}
	names := make([]string, len(path))
	for i, n := range path {
		names[i] = r.nodes[n].res.String()
	}
	return strings.Join(names, " -> ")
}
