package policy

import (
	"context"
	"testing"

	"github.com/openmend/openmend/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deletePlan(resources ...*engine.Resource) *engine.ExecutionPlan {
	return &engine.ExecutionPlan{
		ID:        "test-plan",
		Operation: engine.OperationDelete,
		Resources: resources,
	}
}

func TestEvaluatePlanAllowsCleanDelete(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	plan := deletePlan(
		&engine.Resource{Type: "docker.container", Name: "api"},
		&engine.Resource{Type: "docker.network", Name: "net"},
	)

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Empty(t, result.Blocking())
	assert.Contains(t, result.EvaluatedPolicies, "protected-resources")
}

func TestProtectedResourceBlocksDelete(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	plan := deletePlan(
		&engine.Resource{Type: "docker.volume", Name: "data", Protected: true},
	)

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	blocking := result.Blocking()
	require.Len(t, blocking, 1)
	assert.Equal(t, "protected-resources", blocking[0].Policy)
	assert.Equal(t, "docker.volume/data", blocking[0].Resource)
	assert.Contains(t, blocking[0].Message, "protected")
}

func TestProtectedResourceDoesNotBlockCreate(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	plan := &engine.ExecutionPlan{
		ID:        "test-plan",
		Operation: engine.OperationCreate,
		Resources: []*engine.Resource{
			{Type: "docker.volume", Name: "data", Protected: true},
		},
	}

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestBlastRadiusBlocksAutoConfirmedMassDelete(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	var resources []*engine.Resource
	for i := 0; i < 4; i++ {
		resources = append(resources, &engine.Resource{
			Type: "docker.container",
			Name: string(rune('a' + i)),
		})
	}
	plan := deletePlan(resources...)

	result, err := e.EvaluatePlan(context.Background(), plan, &Context{
		AutoConfirm:    true,
		MaxDestructive: 3,
	})
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	blocking := result.Blocking()
	require.Len(t, blocking, 1)
	assert.Equal(t, "blast-radius", blocking[0].Policy)
}

func TestBlastRadiusAllowsInteractiveMassDelete(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	var resources []*engine.Resource
	for i := 0; i < 4; i++ {
		resources = append(resources, &engine.Resource{
			Type: "docker.container",
			Name: string(rune('a' + i)),
		})
	}
	plan := deletePlan(resources...)

	result, err := e.EvaluatePlan(context.Background(), plan, &Context{
		AutoConfirm:    false,
		MaxDestructive: 3,
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestEnvDriftWarnsButDoesNotBlock(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	plan := &engine.ExecutionPlan{
		ID:        "test-plan",
		Operation: engine.OperationCreate,
		Resources: []*engine.Resource{
			{Type: "docker.container", Name: "api", Env: "staging"},
		},
	}

	result, err := e.EvaluatePlan(context.Background(), plan, &Context{Env: "prod"})
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	require.Len(t, result.Violations, 1)
	assert.Equal(t, "env-drift", result.Violations[0].Policy)
	assert.Equal(t, string(SeverityWarning), result.Violations[0].Severity)
}

func TestDisabledPolicySkipped(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)
	require.NoError(t, e.DisablePolicy("protected-resources"))

	plan := deletePlan(
		&engine.Resource{Type: "docker.volume", Name: "data", Protected: true},
	)

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.NotContains(t, result.EvaluatedPolicies, "protected-resources")
}

func TestAddPolicyCustomRule(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	err = e.AddPolicy(context.Background(), Policy{
		Name:     "no-postgres",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package openmend.policies.no_postgres

import rego.v1

deny contains violation if {
	some resource in input.plan.resources
	resource.type == "docker.container"
	resource.name == "postgres"
	violation := {
		"message": "postgres containers are managed by the database team",
		"resource": sprintf("%s/%s", [resource.type, resource.name]),
	}
}
`,
	})
	require.NoError(t, err)

	plan := &engine.ExecutionPlan{
		ID:        "test-plan",
		Operation: engine.OperationCreate,
		Resources: []*engine.Resource{
			{Type: "docker.container", Name: "postgres"},
		},
	}

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	blocking := result.Blocking()
	require.Len(t, blocking, 1)
	assert.Equal(t, "no-postgres", blocking[0].Policy)
	assert.Equal(t, string(SeverityError), blocking[0].Severity)
}

func TestAddPolicyRejectsBadRego(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	err = e.AddPolicy(context.Background(), Policy{
		Name:    "broken",
		Enabled: true,
		Rego:    "this is not rego",
	})
	assert.Error(t, err)
}

func TestAsConfirmerBlocksPolicyViolation(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	plan := deletePlan(
		&engine.Resource{Type: "docker.volume", Name: "data", Protected: true},
	)

	confirmer := e.AsConfirmer(nil, nil)
	ok, err := confirmer.Confirm(context.Background(), plan)
	assert.False(t, ok)
	require.Error(t, err)

	var engErr *engine.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.ErrCodeValidation, engErr.Code)
	assert.Contains(t, engErr.Error(), "protected-resources")
}

func TestAsConfirmerDelegatesWhenAllowed(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	plan := deletePlan(&engine.Resource{Type: "docker.network", Name: "net"})

	delegated := false
	next := engine.ConfirmerFunc(func(ctx context.Context, p *engine.ExecutionPlan) (bool, error) {
		delegated = true
		return false, nil
	})

	ok, err := e.AsConfirmer(next, nil).Confirm(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, delegated)
}

func TestAsConfirmerApprovesWithoutNext(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	plan := deletePlan(&engine.Resource{Type: "docker.network", Name: "net"})

	ok, err := e.AsConfirmer(nil, nil).Confirm(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetAndListPolicies(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	p, err := e.GetPolicy("blast-radius")
	require.NoError(t, err)
	assert.Equal(t, SeverityError, p.Severity)

	_, err = e.GetPolicy("missing")
	assert.Error(t, err)

	names := make(map[string]bool)
	for _, p := range e.ListPolicies() {
		names[p.Name] = true
	}
	assert.True(t, names["protected-resources"])
	assert.True(t, names["blast-radius"])
	assert.True(t, names["env-drift"])
}

func TestReloadDropsCustomPolicies(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	require.NoError(t, e.AddPolicy(context.Background(), Policy{
		Name:    "custom",
		Enabled: true,
		Rego:    "package openmend.policies.custom\n\nimport rego.v1\n",
	}))

	require.NoError(t, e.ReloadPolicies(context.Background()))

	_, err = e.GetPolicy("custom")
	assert.Error(t, err)
	_, err = e.GetPolicy("protected-resources")
	assert.NoError(t, err)
}

func TestEvaluatePlanNilPlan(t *testing.T) {
	e, err := NewEngine(nil)
	require.NoError(t, err)

	_, err = e.EvaluatePlan(context.Background(), nil, nil)
	assert.Error(t, err)
}
