package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dockerOrder = InstallOrderTable{
	"docker.network":   1,
	"docker.image":     2,
	"docker.volume":    3,
	"docker.container": 4,
}

func TestPlanner_CreatePlan_DependencyAndPriorityOrder(t *testing.T) {
	network := &Resource{Type: "docker.network", Name: "n"}
	container := &Resource{Type: "docker.container", Name: "c", DependsOn: []*Resource{network}}

	c := &Catalog{}
	c.AddGroup(&ResourceGroup{Name: "app", Resources: []*Resource{network, container}})

	plan, err := NewPlanner(dockerOrder).Plan(context.Background(), c, Filter{}, OperationCreate)
	require.NoError(t, err)
	require.Equal(t, 2, plan.Len())
	assert.Equal(t, "n", plan.Resources[0].Name)
	assert.Equal(t, "c", plan.Resources[1].Name)
	assert.Equal(t, OperationCreate, plan.Operation)
	assert.NotEmpty(t, plan.ID)
}

func TestPlanner_DeletePlan_DependentTornDownFirst(t *testing.T) {
	network := &Resource{Type: "docker.network", Name: "n"}
	container := &Resource{Type: "docker.container", Name: "c", DependsOn: []*Resource{network}}

	c := &Catalog{}
	c.AddGroup(&ResourceGroup{Name: "app", Resources: []*Resource{network, container}})

	plan, err := NewPlanner(dockerOrder).Plan(context.Background(), c, Filter{}, OperationDelete)
	require.NoError(t, err)
	require.Equal(t, 2, plan.Len())
	assert.Equal(t, "c", plan.Resources[0].Name)
	assert.Equal(t, "n", plan.Resources[1].Name)
}

func TestPlanner_GroupFilterDisambiguatesSameName(t *testing.T) {
	c := &Catalog{}
	c.AddGroup(&ResourceGroup{Name: "prod", Resources: []*Resource{
		{Type: "docker.network", Name: "n"},
	}})
	c.AddGroup(&ResourceGroup{Name: "dev", Resources: []*Resource{
		{Type: "docker.network", Name: "n"},
	}})

	plan, err := NewPlanner(dockerOrder).Plan(context.Background(), c,
		Filter{Name: "n", Group: "prod"}, OperationCreate)
	require.NoError(t, err)
	require.Equal(t, 1, plan.Len())
	assert.Equal(t, "prod", plan.Resources[0].Group)
}

func TestPlanner_FilterSoundness(t *testing.T) {
	c := &Catalog{}
	c.AddGroup(&ResourceGroup{Name: "web", Resources: []*Resource{
		{Type: "docker.network", Name: "net"},
		{Type: "docker.container", Name: "api"},
	}})
	c.AddGroup(&ResourceGroup{Name: "db", Resources: []*Resource{
		{Type: "docker.container", Name: "postgres"},
	}})

	plan, err := NewPlanner(dockerOrder).Plan(context.Background(), c,
		Filter{Group: "web"}, OperationCreate)
	require.NoError(t, err)
	for _, r := range plan.Resources {
		assert.Equal(t, "web", r.Group, "plan contains resource outside the filtered group: %s", r)
	}
	assert.Equal(t, 2, plan.Len())
}

func TestPlanner_DedupAcrossGroups(t *testing.T) {
	shared := &Resource{Type: "docker.network", Name: "shared", Group: "infra"}

	c := &Catalog{}
	c.AddGroup(&ResourceGroup{Name: "a", Resources: []*Resource{shared, {Type: "docker.container", Name: "a1"}}})
	c.AddGroup(&ResourceGroup{Name: "b", Resources: []*Resource{shared, {Type: "docker.container", Name: "b1"}}})

	plan, err := NewPlanner(dockerOrder).Plan(context.Background(), c, Filter{}, OperationCreate)
	require.NoError(t, err)

	count := 0
	for _, r := range plan.Resources {
		if r.Name == "shared" {
			count++
		}
	}
	assert.Equal(t, 1, count, "shared resource planned more than once")
	assert.Equal(t, 3, plan.Len())
}

func TestPlanner_CycleFailsPlanning(t *testing.T) {
	a := &Resource{Type: "t", Name: "a"}
	b := &Resource{Type: "t", Name: "b", DependsOn: []*Resource{a}}
	a.DependsOn = []*Resource{b}

	c := &Catalog{}
	c.AddGroup(&ResourceGroup{Name: "g", Resources: []*Resource{a, b}})

	_, err := NewPlanner(nil).Plan(context.Background(), c, Filter{}, OperationCreate)
	require.Error(t, err)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, ErrCodeCycle, engErr.Code)
}

func TestPlanner_NilCatalog(t *testing.T) {
	_, err := NewPlanner(nil).Plan(context.Background(), nil, Filter{}, OperationCreate)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestPlanner_EmptySelectionYieldsEmptyPlan(t *testing.T) {
	c := &Catalog{}
	c.AddGroup(&ResourceGroup{Name: "g", Resources: []*Resource{
		{Type: "t", Name: "r", SkipCreate: true},
	}})

	plan, err := NewPlanner(nil).Plan(context.Background(), c, Filter{}, OperationCreate)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestPlanner_UpdateUsesDescendingPriorityAndCreateOrderDeps(t *testing.T) {
	base := &Resource{Type: "docker.network", Name: "net"}
	ctr := &Resource{Type: "docker.container", Name: "ctr", DependsOn: []*Resource{base}}

	c := &Catalog{}
	c.AddGroup(&ResourceGroup{Name: "g", Resources: []*Resource{base, ctr}})

	plan, err := NewPlanner(dockerOrder).Plan(context.Background(), c, Filter{}, OperationUpdate)
	require.NoError(t, err)
	// Descending priority puts the container first, but the dependency
	// constraint still forces the network ahead of it.
	require.Equal(t, 2, plan.Len())
	assert.Equal(t, "net", plan.Resources[0].Name)
	assert.Equal(t, "ctr", plan.Resources[1].Name)
}
