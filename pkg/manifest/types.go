package manifest

import (
	"strconv"
	"time"
)

// Workspace is the shared configuration block of a manifest.
type Workspace struct {
	// Name identifies the workspace.
	Name string `json:"name" validate:"required"`

	// Env is the deployment environment (dev, stg, prd).
	Env string `json:"env,omitempty"`

	// Dir is the workspace root directory for output files.
	Dir string `json:"dir,omitempty"`

	// DefaultGroup is stamped onto standalone resources without a group.
	DefaultGroup string `json:"default_group,omitempty"`

	// Network is forwarded to apps through the build context.
	Network string `json:"network,omitempty"`

	// Partial-failure policies per operation.
	ContinueOnCreateFailure bool `json:"continue_on_create_failure,omitempty"`
	ContinueOnUpdateFailure bool `json:"continue_on_update_failure,omitempty"`
	ContinueOnDeleteFailure bool `json:"continue_on_delete_failure,omitempty"`

	// InstallOrder overrides install priorities per resource type.
	InstallOrder map[string]int `json:"install_order,omitempty"`
}

// ResourceSpec is one declared resource in a manifest. Dependencies are
// referenced by "type/name" and resolved when the catalog is built.
type ResourceSpec struct {
	// Type is the resource type tag (e.g. "docker.network").
	Type string `json:"type" validate:"required"`

	// Name is the resource name.
	Name string `json:"name" validate:"required"`

	// Group overrides the enclosing group label.
	Group string `json:"group,omitempty"`

	// Env overrides the workspace environment for this resource.
	Env string `json:"env,omitempty"`

	// DependsOn lists dependencies as "type/name" references.
	DependsOn []string `json:"depends_on,omitempty" validate:"dive,contains=/"`

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
}

// GroupSpec is a named collection of resources in a manifest.
type GroupSpec struct {
	// Name is the group name, stamped onto ungrouped members.
	Name string `json:"name" validate:"required"`

	// Disabled excludes the whole group from every run.
	Disabled bool `json:"disabled,omitempty"`

	// Resources are the group members, in declaration order.
	Resources []ResourceSpec `json:"resources,omitempty" validate:"dive"`
}

// Manifest is a parsed, validated manifest: the workspace block plus the
// declared groups and standalone resources.
type Manifest struct {
	// Workspace is the shared configuration block.
	Workspace Workspace `json:"workspace" validate:"required"`

	// Groups are the declared resource groups, in order.
	Groups []GroupSpec `json:"groups,omitempty" validate:"dive"`

	// Resources are standalone resources outside any group.
	Resources []ResourceSpec `json:"resources,omitempty" validate:"dive"`

	// SourceFiles are the manifest files this was parsed from.
	SourceFiles []string `json:"-"`

	// ParsedAt is when the manifest was parsed.
	ParsedAt time.Time `json:"-"`
}

// ValidationError is one manifest problem with its source position.
type ValidationError struct {
	// File is the source file, when known.
	File string `json:"file,omitempty"`

	// Line is the source line, when known.
	Line int `json:"line,omitempty"`

	// Path is the manifest path of the failing field.
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.File != "" {
		if e.Line > 0 {
			return formatPos(e.File, e.Line) + ": " + msg
		}
		return e.File + ": " + msg
	}
	return msg
}

func formatPos(file string, line int) string {
	return file + ":" + strconv.Itoa(line)
}
