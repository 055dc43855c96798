package policy

import (
	"time"

	"github.com/openmend/openmend/pkg/engine"
)

// Severity classifies how serious a policy violation is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations at this severity prevent execution.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a named Rego rule set evaluated against execution plans.
type Policy struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Rego        string                 `json:"rego"`
	Severity    Severity               `json:"severity"`
	Enabled     bool                   `json:"enabled"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Violation is a single deny result produced by a policy.
type Violation struct {
	Policy   string `json:"policy"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Resource string `json:"resource,omitempty"`
}

// Result is the outcome of evaluating all enabled policies against a plan.
type Result struct {
	Allowed           bool          `json:"allowed"`
	Violations        []Violation   `json:"violations,omitempty"`
	Warnings          []string      `json:"warnings,omitempty"`
	EvaluatedPolicies []string      `json:"evaluated_policies,omitempty"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Blocking returns the violations that made the plan inadmissible.
func (r *Result) Blocking() []Violation {
	var blocking []Violation
	for _, v := range r.Violations {
		if Severity(v.Severity).Blocking() {
			blocking = append(blocking, v)
		}
	}
	return blocking
}

// Input is the document handed to Rego evaluation.
type Input struct {
	Plan    *engine.ExecutionPlan `json:"plan"`
	Context *Context              `json:"context"`
}

// Context carries run-level facts policies may condition on.
type Context struct {
	Operation      string    `json:"operation"`
	Env            string    `json:"env,omitempty"`
	AutoConfirm    bool      `json:"auto_confirm"`
	MaxDestructive int       `json:"max_destructive"`
	Timestamp      time.Time `json:"timestamp"`
}

// Bundle groups policies for distribution as a single JSON document.
type Bundle struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Policies []Policy `json:"policies"`
}
