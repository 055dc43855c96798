package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"

	"github.com/openmend/openmend/pkg/engine"
	"github.com/openmend/openmend/pkg/telemetry"
)

// Parser parses CUE manifests into validated Manifest values.
type Parser struct {
	ctx       *cue.Context
	validator *validator.Validate
	logger    *telemetry.Logger
}

// NewParser creates a new manifest parser.
func NewParser() *Parser {
	return &Parser{
		ctx:       cuecontext.New(),
		validator: validator.New(),
		logger:    telemetry.NopLogger(),
	}
}

// WithLogger attaches a logger to the parser.
func (p *Parser) WithLogger(logger *telemetry.Logger) *Parser {
	if logger != nil {
		p.logger = logger.NewComponentLogger("manifest")
	}
	return p
}

// Load parses and validates a manifest from a CUE file or a directory of
// CUE files. Parse and validation problems are returned as
// ValidationErrors carrying source positions where CUE provides them.
func (p *Parser) Load(ctx context.Context, source string) (*Manifest, error) {
	_ = ctx

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("stat manifest source %s: %w", source, err)
	}

	var val cue.Value
	var files []string
	if info.IsDir() {
		val, files, err = p.loadDirectory(source)
	} else {
		val, err = p.loadFile(source)
		files = []string{source}
	}
	if err != nil {
		return nil, err
	}
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	var m Manifest
	if err := val.Decode(&m); err != nil {
		return nil, convertCUEErrors(err)
	}
	m.SourceFiles = files
	m.ParsedAt = time.Now()

	if err := p.validate(&m); err != nil {
		return nil, err
	}

	p.logger.WithField("source", source).
		Infof("manifest loaded: %d groups, %d standalone resources",
			len(m.Groups), len(m.Resources))
	return &m, nil
}

// loadDirectory loads a directory as a CUE package.
func (p *Parser) loadDirectory(dir string) (cue.Value, []string, error) {
	instances := load.Instances([]string{dir}, nil)
	if len(instances) == 0 {
		return cue.Value{}, nil, ValidationError{
			File:    dir,
			Message: "no CUE files found",
		}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, convertCUEErrors(inst.Err)
	}
	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, convertCUEErrors(err)
	}
	var files []string
	for _, f := range inst.Files {
		if f.Filename != "" {
			files = append(files, f.Filename)
		}
	}
	return val, files, nil
}

// loadFile compiles a single CUE file.
func (p *Parser) loadFile(path string) (cue.Value, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	return val, nil
}

// validate runs struct validation over the decoded manifest.
func (p *Parser) validate(m *Manifest) error {
	if err := p.validator.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return ValidationError{
				Path:    first.Namespace(),
				Message: fmt.Sprintf("failed %q validation", first.Tag()),
			}
		}
		return err
	}
	return nil
}

// convertCUEErrors flattens a CUE error list into a ValidationError with
// the first error's position.
func convertCUEErrors(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	pos := first.Position()
	return ValidationError{
		File:    pos.Filename(),
		Line:    pos.Line(),
		Message: first.Error(),
	}
}

// BuildCatalog turns a manifest into an engine catalog plus the install
// order table and workspace settings it declares. Dependency references
// are resolved by "type/name" across the whole manifest; an unresolved
// reference is a validation error.
func BuildCatalog(m *Manifest) (*engine.Catalog, engine.InstallOrderTable, error) {
	settings := &engine.WorkspaceSettings{
		Workspace:               m.Workspace.Dir,
		Env:                     m.Workspace.Env,
		ContinueOnCreateFailure: m.Workspace.ContinueOnCreateFailure,
		ContinueOnUpdateFailure: m.Workspace.ContinueOnUpdateFailure,
		ContinueOnDeleteFailure: m.Workspace.ContinueOnDeleteFailure,
	}

	catalog := &engine.Catalog{
		DefaultGroup: m.Workspace.DefaultGroup,
		Settings:     settings,
		Build:        engine.BuildContext{Network: m.Workspace.Network},
	}

	// First pass: materialize every resource so dependency references
	// can bind regardless of declaration order.
	byRef := make(map[string]*engine.Resource)
	specs := make(map[*engine.Resource]ResourceSpec)

	register := func(spec ResourceSpec) (*engine.Resource, error) {
		r := &engine.Resource{
			Name:       spec.Name,
			Type:       spec.Type,
			Group:      spec.Group,
			Env:        spec.Env,
			Disabled:   spec.Disabled,
			SkipCreate: spec.SkipCreate,
			SkipRead:   spec.SkipRead,
			SkipUpdate: spec.SkipUpdate,
			SkipDelete: spec.SkipDelete,
			Protected:  spec.Protected,
			Force:      spec.Force,
			UseCache:   spec.UseCache,
			Pull:       spec.Pull,
		}
		ref := spec.Type + "/" + spec.Name
		if _, dup := byRef[ref]; dup {
			return nil, ValidationError{
				Path:    ref,
				Message: "duplicate resource declaration",
			}
		}
		byRef[ref] = r
		specs[r] = spec
		return r, nil
	}

	var groups []*engine.ResourceGroup
	for _, g := range m.Groups {
		eg := &engine.ResourceGroup{Name: g.Name, Disabled: g.Disabled}
		for _, spec := range g.Resources {
			r, err := register(spec)
			if err != nil {
				return nil, nil, err
			}
			eg.Resources = append(eg.Resources, r)
		}
		groups = append(groups, eg)
	}

	var standalone []*engine.Resource
	for _, spec := range m.Resources {
		r, err := register(spec)
		if err != nil {
			return nil, nil, err
		}
		standalone = append(standalone, r)
	}

	// Second pass: wire dependency edges.
	for r, spec := range specs {
		for _, ref := range spec.DependsOn {
			dep, ok := byRef[ref]
			if !ok {
				return nil, nil, ValidationError{
					Path:    spec.Type + "/" + spec.Name,
					Message: fmt.Sprintf("depends_on %q does not match any declared resource", ref),
				}
			}
			if dep == r {
				return nil, nil, ValidationError{
					Path:    spec.Type + "/" + spec.Name,
					Message: "resource depends on itself",
				}
			}
			r.DependsOn = append(r.DependsOn, dep)
		}
	}

	for _, g := range groups {
		catalog.AddGroup(g)
	}
	for _, r := range standalone {
		catalog.AddResource(r)
	}

	table := engine.InstallOrderTable{}
	for typeTag, prio := range m.Workspace.InstallOrder {
		table[typeTag] = prio
	}
	return catalog, table, nil
}
