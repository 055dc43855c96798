package policy

import (
	"time"
)

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		protectedResourcesPolicy(),
		blastRadiusPolicy(),
		envDriftPolicy(),
	}
}

// protectedResourcesPolicy blocks deletion of resources marked protected.
func protectedResourcesPolicy() Policy {
	return Policy{
		Name:        "protected-resources",
		Description: "Resources marked protected cannot be deleted",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "delete"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openmend.policies.protected_resources

import rego.v1

# Deletion of a protected resource is never admissible
deny contains violation if {
	input.plan.operation == "delete"
	some resource in input.plan.resources
	resource.protected
	violation := {
		"message": sprintf("resource %s/%s is protected and cannot be deleted", [resource.type, resource.name]),
		"severity": "critical",
		"resource": sprintf("%s/%s", [resource.type, resource.name]),
	}
}
`,
	}
}

// blastRadiusPolicy blocks large destructive plans that skip interactive
// confirmation.
func blastRadiusPolicy() Policy {
	return Policy{
		Name:        "blast-radius",
		Description: "Destructive plans above the size threshold require interactive confirmation",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety", "delete"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openmend.policies.blast_radius

import rego.v1

# Auto-confirmed deletions must stay under the blast radius threshold
deny contains violation if {
	input.plan.operation == "delete"
	input.context.auto_confirm
	count(input.plan.resources) > input.context.max_destructive
	violation := {
		"message": sprintf("plan deletes %d resources, above the auto-confirm threshold of %d", [count(input.plan.resources), input.context.max_destructive]),
		"severity": "error",
	}
}
`,
	}
}

// envDriftPolicy warns when a plan mixes resources from another environment.
func envDriftPolicy() Policy {
	return Policy{
		Name:        "env-drift",
		Description: "Resources pinned to a different environment than the run",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"hygiene"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openmend.policies.env_drift

import rego.v1

deny contains violation if {
	input.context.env != ""
	some resource in input.plan.resources
	resource.env != ""
	resource.env != input.context.env
	violation := {
		"message": sprintf("resource %s/%s is pinned to env %q but the run targets %q", [resource.type, resource.name, resource.env, input.context.env]),
		"severity": "warning",
		"resource": sprintf("%s/%s", [resource.type, resource.name]),
	}
}
`,
	}
}
