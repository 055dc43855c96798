package engine

import (
	"fmt"
	"time"
)

// Operation is the lifecycle operation applied to resources during a run.
type Operation string

const (
	// OperationCreate creates resources that do not exist yet.
	OperationCreate Operation = "create"

	// OperationRead refreshes the active snapshot of a resource.
	OperationRead Operation = "read"

	// OperationUpdate patches existing resources toward their declared state.
	OperationUpdate Operation = "update"

	// OperationDelete tears resources down.
	OperationDelete Operation = "delete"
)

// Validate checks if the operation is valid.
func (o Operation) Validate() error {
	switch o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete:
		return nil
	default:
		return NewPermanentError(fmt.Sprintf("invalid operation: %q", string(o)), nil).
			WithCode(ErrCodeValidation)
	}
}

// IsDestructive returns true if the operation removes resources.
func (o Operation) IsDestructive() bool {
	return o == OperationDelete
}

// Direction returns the install-order sort direction for the operation.
// Creation builds foundations first (ascending priority); update and
// delete work from the leaves back down (descending priority).
func (o Operation) Direction() SortDirection {
	if o == OperationCreate {
		return Ascending
	}
	return Descending
}

// ResolveMode returns the dependency resolution mode for the operation.
func (o Operation) ResolveMode() ResolveMode {
	if o == OperationDelete {
		return DeleteOrder
	}
	return CreateOrder
}

// WorkspaceSettings carries shared run settings attached to every
// resource during catalog flattening. The engine itself only reads the
// continue-on-failure flags; the rest is for drivers.
type WorkspaceSettings struct {
	// Workspace is the root directory for snapshot output files.
	Workspace string `json:"workspace,omitempty"`

	// Env is the deployment environment (dev, stg, prd).
	Env string `json:"env,omitempty"`

	// ContinueOnCreateFailure continues a create run past failed resources.
	ContinueOnCreateFailure bool `json:"continue_on_create_failure"`

	// ContinueOnUpdateFailure continues an update run past failed resources.
	ContinueOnUpdateFailure bool `json:"continue_on_update_failure"`

	// ContinueOnDeleteFailure continues a delete run past failed resources.
	ContinueOnDeleteFailure bool `json:"continue_on_delete_failure"`
}

// ContinueOn returns the continue-on-failure policy for an operation.
func (s *WorkspaceSettings) ContinueOn(op Operation) bool {
	if s == nil {
		return false
	}
	switch op {
	case OperationCreate:
		return s.ContinueOnCreateFailure
	case OperationUpdate:
		return s.ContinueOnUpdateFailure
	case OperationDelete:
		return s.ContinueOnDeleteFailure
	default:
		return false
	}
}

// BuildContext carries per-run build inputs forwarded to apps when they
// expand into resources. Its contents are opaque to the engine.
type BuildContext struct {
	// Network is the shared network name for container-like backends.
	Network string `json:"network,omitempty"`

	// Namespace is the target namespace for cluster-like backends.
	Namespace string `json:"namespace,omitempty"`

	// Labels are stamped onto generated resources by apps.
	Labels map[string]string `json:"labels,omitempty"`
}

// ResourceKey is the identity of a resource within a plan.
type ResourceKey struct {
	Type  string
	Name  string
	Group string
}

// String renders the key as "type/name" (plus group when set).
func (k ResourceKey) String() string {
	if k.Group == "" {
		return k.Type + "/" + k.Name
	}
	return k.Type + "/" + k.Name + "@" + k.Group
}

// Resource is a single declared unit of infrastructure. Resources are
// created by the caller (or a manifest) before a run; the engine copies
// them during flattening and mutates only its own copies.
type Resource struct {
	// ID is an optional unique identifier. Identity for planning
	// purposes is the (Type, Name, Group) triple, not the ID.
	ID string `json:"id,omitempty"`

	// Name is the resource name (required).
	Name string `json:"name" validate:"required"`

	// Type is the resource type tag (e.g. "docker.network", "aws.rds").
	Type string `json:"type" validate:"required"`

	// Group is the resource group label; stamped from the enclosing
	// group during flattening when unset.
	Group string `json:"group,omitempty"`

	// Env is the deployment environment the resource belongs to.
	Env string `json:"env,omitempty"`

	// DependsOn lists resources that must exist before this one is
	// created and must outlive it on delete. References are weak: the
	// engine never creates or destroys the referenced resources' owners.
	DependsOn []*Resource `json:"-"`

	// Disabled excludes the resource from every run.
	Disabled bool `json:"disabled,omitempty"`

	// Lifecycle skip flags.
	SkipCreate bool `json:"skip_create,omitempty"`
	SkipRead   bool `json:"skip_read,omitempty"`
	SkipUpdate bool `json:"skip_update,omitempty"`
	SkipDelete bool `json:"skip_delete,omitempty"`

	// Protected marks the resource for policy-level deletion protection.
	Protected bool `json:"protected,omitempty"`

	// Force makes the driver recreate or overwrite the live resource.
	Force bool `json:"force,omitempty"`

	// UseCache lets the driver reuse a cached active snapshot.
	UseCache bool `json:"use_cache,omitempty"`

	// Pull makes image-like drivers refresh their source artifact.
	Pull bool `json:"pull,omitempty"`

	// ActiveSnapshot is the live state captured by the driver after a
	// successful operation. Opaque to the engine.
	ActiveSnapshot any `json:"-"`

	// Settings is the shared run configuration attached during
	// flattening.
	Settings *WorkspaceSettings `json:"-"`
}

// Key returns the plan identity of the resource.
func (r *Resource) Key() ResourceKey {
	return ResourceKey{Type: r.Type, Name: r.Name, Group: r.Group}
}

// String implements fmt.Stringer.
func (r *Resource) String() string {
	return r.Type + "/" + r.Name
}

// Equal reports whether two resources are the same plan entry: the same
// pointer, or an equal (Type, Name, Group) triple.
func (r *Resource) Equal(other *Resource) bool {
	if r == other {
		return true
	}
	if other == nil {
		return false
	}
	return r.Key() == other.Key()
}

// Clone returns a shallow copy of the resource with its own DependsOn
// slice. Dependency pointers are shared: they are weak references into
// the same catalog.
func (r *Resource) Clone() *Resource {
	cp := *r
	if len(r.DependsOn) > 0 {
		cp.DependsOn = make([]*Resource, len(r.DependsOn))
		copy(cp.DependsOn, r.DependsOn)
	}
	return &cp
}

// skips returns the skip flag for an operation.
func (r *Resource) skips(op Operation) bool {
	switch op {
	case OperationCreate:
		return r.SkipCreate
	case OperationRead:
		return r.SkipRead
	case OperationUpdate:
		return r.SkipUpdate
	case OperationDelete:
		return r.SkipDelete
	default:
		return false
	}
}

// ShouldRun reports whether the resource participates in a run for the
// given operation under the given filter.
func (r *Resource) ShouldRun(op Operation, f Filter) bool {
	if r.Disabled || r.skips(op) {
		return false
	}
	return f.Matches(r)
}

// ResourceGroup is a named, disable-able container of resources.
// Flattening stamps the group name onto members that have none.
type ResourceGroup struct {
	// Name is the group name, stamped onto ungrouped members.
	Name string `json:"name" validate:"required"`

	// Disabled excludes the whole group from every run.
	Disabled bool `json:"disabled,omitempty"`

	// Resources are the group members, in declaration order.
	Resources []*Resource `json:"resources,omitempty"`
}

// App is an external collaborator that expands into resources, such as
// a packaged application producing an image, a volume, and a container.
type App interface {
	// Name returns the app name, used as a group label for its resources.
	Name() string

	// Enabled reports whether the app participates in runs.
	Enabled() bool

	// Resources expands the app into its constituent resources.
	Resources(build BuildContext) ([]*Resource, error)
}

// AppGroup is a named, disable-able container of apps.
type AppGroup struct {
	// Name is the group name, stamped onto resources of ungrouped apps.
	Name string `json:"name" validate:"required"`

	// Disabled excludes the whole group from every run.
	Disabled bool `json:"disabled,omitempty"`

	// Apps are the group members, in declaration order.
	Apps []App `json:"-"`
}

// ExecutionPlan is the final ordered, deduplicated sequence of resources
// for one run. Within a plan every dependency precedes its dependent for
// create and update, and follows it for delete.
type ExecutionPlan struct {
	// ID is the unique plan identifier.
	ID string `json:"id"`

	// Operation is the lifecycle operation the plan applies.
	Operation Operation `json:"operation"`

	// Resources is the execution order.
	Resources []*Resource `json:"resources"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`
}

// Len returns the number of resources in the plan.
func (p *ExecutionPlan) Len() int {
	return len(p.Resources)
}

// Empty reports whether the plan has no work.
func (p *ExecutionPlan) Empty() bool {
	return p == nil || len(p.Resources) == 0
}

// Index returns the position of the resource with the given key, or -1.
func (p *ExecutionPlan) Index(key ResourceKey) int {
	for i, r := range p.Resources {
		if r.Key() == key {
			return i
		}
	}
	return -1
}

// RunResult summarizes one executed run. A dry run or a declined
// confirmation yields the zero value, which is a successful no-op.
type RunResult struct {
	// Attempted is the number of resources in the confirmed plan.
	Attempted int `json:"attempted"`

	// Succeeded is the number of resources whose operation succeeded.
	Succeeded int `json:"succeeded"`
}

// Complete reports whether every attempted resource succeeded.
func (r RunResult) Complete() bool {
	return r.Succeeded == r.Attempted
}
