package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/openmend/openmend/pkg/engine"
	"github.com/openmend/openmend/pkg/telemetry"
)

// DefaultMaxDestructive is the blast-radius threshold applied when the
// evaluation context does not set one.
const DefaultMaxDestructive = 10

// Engine compiles Rego policies and evaluates them against execution plans
// before any driver runs.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	store    storage.Store
	logger   *telemetry.Logger
	builtins []Policy
}

// compiledPolicy pairs a policy with its parsed and prepared form.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the builtin policies loaded.
func NewEngine(logger *telemetry.Logger) (*Engine, error) {
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    inmem.New(),
		logger:   logger.NewComponentLogger("policy-engine"),
		builtins: BuiltinPolicies(),
	}

	if err := e.loadBuiltins(context.Background()); err != nil {
		return nil, fmt.Errorf("loading builtin policies: %w", err)
	}

	return e, nil
}

// EvaluatePlan runs every enabled policy against the plan. A violation at
// error or critical severity marks the result as not allowed; evaluation
// errors degrade to warnings so a broken policy cannot brick the engine.
func (e *Engine) EvaluatePlan(ctx context.Context, plan *engine.ExecutionPlan, pctx *Context) (*Result, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan must not be nil")
	}

	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if pctx == nil {
		pctx = &Context{}
	}
	if pctx.Operation == "" {
		pctx.Operation = string(plan.Operation)
	}
	if pctx.MaxDestructive <= 0 {
		pctx.MaxDestructive = DefaultMaxDestructive
	}
	pctx.Timestamp = time.Now()

	input := &Input{Plan: plan, Context: pctx}

	var violations []Violation
	var warnings []string
	evaluated := make([]string, 0, len(e.policies))

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		evaluated = append(evaluated, cp.policy.Name)

		found, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.WithError(err).
				WithField("policy", cp.policy.Name).
				WithPlanID(plan.ID).
				Error("policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		violations = append(violations, found...)
	}

	allowed := true
	for i := range violations {
		if Severity(violations[i].Severity).Blocking() {
			allowed = false
			break
		}
	}

	duration := time.Since(start)
	e.logger.WithPlanID(plan.ID).
		WithFields(map[string]interface{}{
			"violations": len(violations),
			"allowed":    allowed,
			"duration":   duration.String(),
		}).
		Debug("plan policy evaluation completed")

	return &Result{
		Allowed:           allowed,
		Violations:        violations,
		Warnings:          warnings,
		EvaluatedPolicies: evaluated,
		EvaluatedAt:       time.Now(),
		Duration:          duration,
	}, nil
}

// AsConfirmer adapts the engine into a plan confirmer. Blocked plans return
// an error so the run never reaches a driver; admissible plans are delegated
// to next, or approved outright when next is nil.
func (e *Engine) AsConfirmer(next engine.Confirmer, pctx *Context) engine.Confirmer {
	return engine.ConfirmerFunc(func(ctx context.Context, plan *engine.ExecutionPlan) (bool, error) {
		result, err := e.EvaluatePlan(ctx, plan, pctx)
		if err != nil {
			return false, err
		}
		if !result.Allowed {
			blocking := result.Blocking()
			msgs := make([]string, 0, len(blocking))
			for _, v := range blocking {
				msgs = append(msgs, fmt.Sprintf("%s: %s", v.Policy, v.Message))
			}
			return false, engine.NewPermanentError("plan blocked by policy: "+strings.Join(msgs, "; "), nil).
				WithCode(engine.ErrCodeValidation)
		}
		if next == nil {
			return true, nil
		}
		return next.Confirm(ctx, plan)
	})
}

// LoadPolicies loads and compiles policy files from the given paths.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("loading policies: %w", err)
	}

	for i := range policies {
		if err := e.compile(ctx, &policies[i]); err != nil {
			return fmt.Errorf("compiling policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.WithField("count", len(policies)).Info("policies loaded")
	return nil
}

// AddPolicy compiles and registers a single policy, replacing any policy
// with the same name.
func (e *Engine) AddPolicy(ctx context.Context, p Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compile(ctx, &p)
}

// evaluatePolicy queries the deny set of a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(cp.policy.Rego))

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rego evaluation: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, e.toViolation(cp.policy, d))
		}
	}

	return violations, nil
}

// packageName extracts the package path from Rego source.
func packageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "openmend.policies"
}

// toViolation converts a deny result into a Violation. Object results may
// override severity and name the offending resource.
func (e *Engine) toViolation(p *Policy, result interface{}) Violation {
	v := Violation{
		Policy:   p.Name,
		Severity: string(p.Severity),
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = sev
		}
		if res, ok := r["resource"].(string); ok {
			v.Resource = res
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}

	return v
}

// compile parses a policy and prepares its query for reuse. Callers hold
// the write lock.
func (e *Engine) compile(ctx context.Context, p *Policy) error {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return fmt.Errorf("parsing policy: %w", err)
	}

	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Store(e.store),
		rego.Query("data"),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("preparing query: %w", err)
	}

	e.policies[p.Name] = &compiledPolicy{
		policy:   p,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.WithField("policy", p.Name).Debug("policy compiled")
	return nil
}

// loadBuiltins compiles the builtin policy set. Callers hold the write lock
// or have exclusive access.
func (e *Engine) loadBuiltins(ctx context.Context) error {
	for i := range e.builtins {
		if err := e.compile(ctx, &e.builtins[i]); err != nil {
			return fmt.Errorf("builtin policy %s: %w", e.builtins[i].Name, err)
		}
	}
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, ok := e.policies[name]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all registered policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	return nil
}

// ReloadPolicies drops all registered policies and recompiles the builtins.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies = make(map[string]*compiledPolicy)
	return e.loadBuiltins(ctx)
}
