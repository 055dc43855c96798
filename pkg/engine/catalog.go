package engine

import "fmt"

// CatalogEntry is one top-level entry of a catalog. Exactly one of the
// fields is set; Flatten rejects entries that set none or several. Using
// a closed struct variant instead of an open interface keeps the set of
// things a catalog can hold explicit.
type CatalogEntry struct {
	// Resource is a single standalone resource.
	Resource *Resource

	// Group is a named collection of resources.
	Group *ResourceGroup

	// Apps is a named collection of apps that expand into resources.
	Apps *AppGroup
}

func (e CatalogEntry) validate() error {
	n := 0
	if e.Resource != nil {
		n++
	}
	if e.Group != nil {
		n++
	}
	if e.Apps != nil {
		n++
	}
	if n != 1 {
		return NewPermanentError(
			fmt.Sprintf("catalog entry must set exactly one of resource, group, apps; got %d", n), nil).
			WithCode(ErrCodeValidation)
	}
	return nil
}

// Catalog is the declared universe of resources for one workspace. It is
// the planner's input: entries are flattened, filtered, and stamped into
// a flat resource list per run.
type Catalog struct {
	// DefaultGroup is stamped onto standalone resources without a group.
	DefaultGroup string

	// Settings is attached to every flattened resource.
	Settings *WorkspaceSettings

	// Build is forwarded to apps when they expand.
	Build BuildContext

	// Entries are the catalog contents, in declaration order.
	Entries []CatalogEntry
}

// AddResource appends a standalone resource entry.
func (c *Catalog) AddResource(r *Resource) {
	c.Entries = append(c.Entries, CatalogEntry{Resource: r})
}

// AddGroup appends a resource group entry.
func (c *Catalog) AddGroup(g *ResourceGroup) {
	c.Entries = append(c.Entries, CatalogEntry{Group: g})
}

// AddApps appends an app group entry.
func (c *Catalog) AddApps(a *AppGroup) {
	c.Entries = append(c.Entries, CatalogEntry{Apps: a})
}

// Flatten collects the resources that participate in a run for the given
// operation and filter, in declaration order. Disabled groups, apps, and
// resources are skipped, as are resources whose skip flag for the
// operation is set or that fail the filter.
//
// Flatten never mutates catalog entries: every selected resource is a
// copy, stamped with its group label (when it has none), the catalog
// environment, and the shared settings. Flattening the same catalog
// twice yields independent, identical results.
func (c *Catalog) Flatten(op Operation, f Filter) ([]*Resource, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var out []*Resource
	for i, entry := range c.Entries {
		if err := entry.validate(); err != nil {
			return nil, err
		}
		switch {
		case entry.Resource != nil:
			out = c.appendResource(out, entry.Resource, c.DefaultGroup, op, f)

		case entry.Group != nil:
			g := entry.Group
			if g.Disabled {
				continue
			}
			for _, r := range g.Resources {
				out = c.appendResource(out, r, g.Name, op, f)
			}

		case entry.Apps != nil:
			ag := entry.Apps
			if ag.Disabled {
				continue
			}
			for _, app := range ag.Apps {
				if app == nil || !app.Enabled() {
					continue
				}
				expanded, err := app.Resources(c.Build)
				if err != nil {
					return nil, NewPermanentError(
						fmt.Sprintf("expanding app %q in entry %d", app.Name(), i), err).
						WithCode(ErrCodeValidation)
				}
				group := app.Name()
				if ag.Name != "" {
					group = ag.Name
				}
				for _, r := range expanded {
					out = c.appendResource(out, r, group, op, f)
				}
			}
		}
	}
	return out, nil
}

// appendResource stamps and filters one resource, appending a copy when
// it participates in the run. The caller's resource is never mutated.
func (c *Catalog) appendResource(out []*Resource, r *Resource, group string, op Operation, f Filter) []*Resource {
	if r == nil {
		return out
	}
	cp := r.Clone()
	if cp.Group == "" {
		cp.Group = group
	}
	if cp.Env == "" && c.Settings != nil {
		cp.Env = c.Settings.Env
	}
	cp.Settings = c.Settings
	if !cp.ShouldRun(op, f) {
		return out
	}
	return append(out, cp)
}
