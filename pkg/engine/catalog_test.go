package engine

import (
	"errors"
	"testing"
)

type fakeApp struct {
	name      string
	disabled  bool
	resources []*Resource
	err       error
	calls     int
	lastBuild BuildContext
}

func (a *fakeApp) Name() string  { return a.name }
func (a *fakeApp) Enabled() bool { return !a.disabled }

func (a *fakeApp) Resources(build BuildContext) ([]*Resource, error) {
	a.calls++
	a.lastBuild = build
	return a.resources, a.err
}

func TestCatalogFlatten_StampsGroupOnUngroupedMembers(t *testing.T) {
	grouped := &Resource{Type: "t", Name: "grouped", Group: "explicit"}
	ungrouped := &Resource{Type: "t", Name: "ungrouped"}

	c := &Catalog{}
	c.AddGroup(&ResourceGroup{
		Name:      "web",
		Resources: []*Resource{grouped, ungrouped},
	})

	got, err := c.Flatten(OperationCreate, Filter{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 resources, got %d", len(got))
	}
	if got[0].Group != "explicit" {
		t.Errorf("Expected explicit group to survive, got %q", got[0].Group)
	}
	if got[1].Group != "web" {
		t.Errorf("Expected group stamp 'web', got %q", got[1].Group)
	}
}

func TestCatalogFlatten_DoesNotMutateInputs(t *testing.T) {
	r := &Resource{Type: "t", Name: "r"}
	c := &Catalog{
		Settings: &WorkspaceSettings{Env: "dev"},
	}
	c.AddGroup(&ResourceGroup{Name: "g", Resources: []*Resource{r}})

	first, err := c.Flatten(OperationCreate, Filter{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if r.Group != "" || r.Env != "" || r.Settings != nil {
		t.Errorf("Flatten mutated the declared resource: %+v", r)
	}
	if first[0] == r {
		t.Errorf("Expected a copy, got the declared resource itself")
	}

	second, err := c.Flatten(OperationCreate, Filter{})
	if err != nil {
		t.Fatalf("Expected no error on second flatten, got: %v", err)
	}
	if len(second) != len(first) {
		t.Errorf("Expected identical results, got %d then %d", len(first), len(second))
	}
	if second[0].Group != "g" || second[0].Env != "dev" {
		t.Errorf("Second flatten stamped wrong values: %+v", second[0])
	}
}

func TestCatalogFlatten_SkipsDisabled(t *testing.T) {
	c := &Catalog{}
	c.AddGroup(&ResourceGroup{
		Name:     "off",
		Disabled: true,
		Resources: []*Resource{
			{Type: "t", Name: "hidden"},
		},
	})
	c.AddGroup(&ResourceGroup{
		Name: "on",
		Resources: []*Resource{
			{Type: "t", Name: "visible"},
			{Type: "t", Name: "off", Disabled: true},
			{Type: "t", Name: "nocreate", SkipCreate: true},
		},
	})

	got, err := c.Flatten(OperationCreate, Filter{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertOrder(t, got, "visible")

	// The skip flag is per operation: the same catalog still deletes it.
	got, err = c.Flatten(OperationDelete, Filter{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertOrder(t, got, "visible", "nocreate")
}

func TestCatalogFlatten_ExpandsApps(t *testing.T) {
	app := &fakeApp{
		name: "web",
		resources: []*Resource{
			{Type: "docker.image", Name: "web-img"},
			{Type: "docker.container", Name: "web-ctr"},
		},
	}
	off := &fakeApp{name: "off", disabled: true}

	c := &Catalog{Build: BuildContext{Network: "appnet"}}
	c.AddApps(&AppGroup{Name: "apps", Apps: []App{app, off}})

	got, err := c.Flatten(OperationCreate, Filter{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertOrder(t, got, "web-img", "web-ctr")
	if got[0].Group != "apps" {
		t.Errorf("Expected app resources stamped with group 'apps', got %q", got[0].Group)
	}
	if app.lastBuild.Network != "appnet" {
		t.Errorf("Expected build context forwarded, got %+v", app.lastBuild)
	}
	if off.calls != 0 {
		t.Errorf("Expected disabled app never expanded, got %d calls", off.calls)
	}
}

func TestCatalogFlatten_AppErrorAbortsSelection(t *testing.T) {
	app := &fakeApp{name: "broken", err: errors.New("image build failed")}
	c := &Catalog{}
	c.AddApps(&AppGroup{Name: "apps", Apps: []App{app}})

	_, err := c.Flatten(OperationCreate, Filter{})
	if err == nil {
		t.Fatal("Expected app expansion error, got nil")
	}
	if !IsPermanent(err) {
		t.Errorf("Expected permanent selection error, got %v", err)
	}
}

func TestCatalogFlatten_DefaultGroupForStandaloneResources(t *testing.T) {
	c := &Catalog{DefaultGroup: "main"}
	c.AddResource(&Resource{Type: "t", Name: "solo"})

	got, err := c.Flatten(OperationCreate, Filter{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got[0].Group != "main" {
		t.Errorf("Expected default group 'main', got %q", got[0].Group)
	}
}

func TestCatalogFlatten_RejectsMalformedEntry(t *testing.T) {
	c := &Catalog{Entries: []CatalogEntry{{}}}
	_, err := c.Flatten(OperationCreate, Filter{})
	if err == nil {
		t.Fatal("Expected error for empty catalog entry, got nil")
	}

	c = &Catalog{Entries: []CatalogEntry{{
		Resource: &Resource{Type: "t", Name: "r"},
		Group:    &ResourceGroup{Name: "g"},
	}}}
	_, err = c.Flatten(OperationCreate, Filter{})
	if err == nil {
		t.Fatal("Expected error for ambiguous catalog entry, got nil")
	}
}

func TestCatalogFlatten_InvalidOperation(t *testing.T) {
	c := &Catalog{}
	_, err := c.Flatten(Operation("destroy"), Filter{})
	if err == nil {
		t.Fatal("Expected error for invalid operation, got nil")
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeValidation {
		t.Errorf("Expected validation error, got %v", err)
	}
}
