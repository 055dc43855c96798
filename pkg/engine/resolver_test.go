package engine

import (
	"errors"
	"testing"
)

func named(typeTag, name string, deps ...*Resource) *Resource {
	return &Resource{Type: typeTag, Name: name, DependsOn: deps}
}

func planNames(t *testing.T, resources []*Resource) []string {
	t.Helper()
	names := make([]string, len(resources))
	for i, r := range resources {
		names[i] = r.Name
	}
	return names
}

func assertOrder(t *testing.T, got []*Resource, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d resources, got %d: %v", len(want), len(got), planNames(t, got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("Expected %q at position %d, got %q", name, i, got[i].Name)
		}
	}
}

func TestResolve_Empty(t *testing.T) {
	got, err := Resolve(nil, CreateOrder)
	if err != nil {
		t.Fatalf("Expected no error for empty input, got: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected 0 resources, got %d", len(got))
	}
}

func TestResolve_NoDependenciesKeepsInputOrder(t *testing.T) {
	in := []*Resource{
		named("net", "a"),
		named("vol", "b"),
		named("box", "c"),
	}

	for _, mode := range []ResolveMode{CreateOrder, DeleteOrder} {
		got, err := Resolve(in, mode)
		if err != nil {
			t.Fatalf("Expected no error in %s, got: %v", mode, err)
		}
		assertOrder(t, got, "a", "b", "c")
	}
}

func TestResolve_CreateOrder_DependencyFirst(t *testing.T) {
	network := named("docker.network", "net")
	container := named("docker.container", "app", network)

	got, err := Resolve([]*Resource{container, network}, CreateOrder)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertOrder(t, got, "net", "app")
}

func TestResolve_DeleteOrder_DependentFirst(t *testing.T) {
	network := named("docker.network", "net")
	container := named("docker.container", "app", network)

	got, err := Resolve([]*Resource{network, container}, DeleteOrder)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertOrder(t, got, "app", "net")
}

func TestResolve_Chain(t *testing.T) {
	a := named("t", "a")
	b := named("t", "b", a)
	c := named("t", "c", b)

	got, err := Resolve([]*Resource{c, a, b}, CreateOrder)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertOrder(t, got, "a", "b", "c")

	got, err = Resolve([]*Resource{a, b, c}, DeleteOrder)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertOrder(t, got, "c", "b", "a")
}

func TestResolve_Diamond_StableAmongReady(t *testing.T) {
	base := named("t", "base")
	left := named("t", "left", base)
	right := named("t", "right", base)
	top := named("t", "top", left, right)

	got, err := Resolve([]*Resource{top, left, right, base}, CreateOrder)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	// left and right have no ordering constraint between them, so they
	// keep their input order.
	assertOrder(t, got, "base", "left", "right", "top")
}

func TestResolve_AbsentDependencyPulledIn(t *testing.T) {
	network := named("docker.network", "net")
	container := named("docker.container", "app", network)

	got, err := Resolve([]*Resource{container, named("t", "other")}, CreateOrder)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	// The network is not in the input; it lands right before its first
	// dependent, ahead of unrelated resources declared later.
	assertOrder(t, got, "net", "app", "other")
}

func TestResolve_AbsentDependencyPulledTransitively(t *testing.T) {
	base := named("t", "base")
	mid := named("t", "mid", base)
	top := named("t", "top", mid)

	got, err := Resolve([]*Resource{top}, CreateOrder)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertOrder(t, got, "base", "mid", "top")
}

func TestResolve_GrouplessReferenceMatchesStampedResource(t *testing.T) {
	// The dependency reference has no group, but the in-plan resource
	// was stamped during flattening. The reference must bind to it
	// instead of pulling in a duplicate.
	ref := named("docker.network", "net")
	stamped := named("docker.network", "net")
	stamped.Group = "prod"
	container := named("docker.container", "app", ref)
	container.Group = "prod"

	got, err := Resolve([]*Resource{container, stamped}, CreateOrder)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 resources, got %d: %v", len(got), planNames(t, got))
	}
	if got[0] != stamped {
		t.Errorf("Expected stamped network first, got %v", got[0])
	}
}

func TestResolve_DuplicateIdentitiesFold(t *testing.T) {
	a1 := named("t", "a")
	a2 := named("t", "a")
	b := named("t", "b", a2)

	got, err := Resolve([]*Resource{a1, b}, CreateOrder)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertOrder(t, got, "a", "b")
}

func TestResolve_SelfReferenceIgnored(t *testing.T) {
	a := named("t", "a")
	a.DependsOn = []*Resource{a}

	got, err := Resolve([]*Resource{a}, CreateOrder)
	if err != nil {
		t.Fatalf("Expected no error for self reference, got: %v", err)
	}
	assertOrder(t, got, "a")
}

func TestResolve_CycleIsPlanningError(t *testing.T) {
	a := named("t", "a")
	b := named("t", "b", a)
	a.DependsOn = []*Resource{b}

	for _, mode := range []ResolveMode{CreateOrder, DeleteOrder} {
		_, err := Resolve([]*Resource{a, b}, mode)
		if err == nil {
			t.Fatalf("Expected cycle error in %s, got nil", mode)
		}
		var engErr *EngineError
		if !errors.As(err, &engErr) {
			t.Fatalf("Expected EngineError, got %T", err)
		}
		if engErr.Code != ErrCodeCycle {
			t.Errorf("Expected code %s, got %s", ErrCodeCycle, engErr.Code)
		}
		if !IsPermanent(err) {
			t.Errorf("Expected cycle error to be permanent")
		}
	}
}
