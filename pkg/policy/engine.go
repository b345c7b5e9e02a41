package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/openfroyo/hydra/pkg/config"
)

// ErrPolicyNotFound is returned when a named policy is not loaded.
var ErrPolicyNotFound = errors.New("policy not found")

// Modes of PolicyConfig.Mode.
const (
	ModeEnforcing = "enforcing"
	ModeAdvisory  = "advisory"
)

// RejectedError is returned by Admit when blocking violations were found.
type RejectedError struct {
	Result *Result
}

func (e *RejectedError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("pipeline rejected by policy: %s", strings.Join(msgs, "; "))
}

// Engine compiles Rego policies and evaluates pipelines against them.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	store    storage.Store
	logger   zerolog.Logger
	loader   *Loader
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    inmem.New(),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	e.loader = NewLoader(e.logger)

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}
	return e, nil
}

// Evaluate evaluates every enabled policy against a pipeline.
func (e *Engine) Evaluate(ctx context.Context, p *config.Pipeline) (*Result, error) {
	return e.EvaluateWith(ctx, p, &Context{Operation: "validate"})
}

// EvaluateWith is Evaluate with an explicit evaluation context.
func (e *Engine) EvaluateWith(ctx context.Context, p *config.Pipeline, pctx *Context) (*Result, error) {
	if p == nil {
		return nil, errors.New("nil pipeline")
	}
	startTime := time.Now()

	input, err := buildInput(p, pctx)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedAt: startTime}
	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", name).
				Str("pipeline", p.Name).
				Msg("Policy evaluation failed")
			result.Errors = append(result.Errors, fmt.Sprintf("policy %s evaluation failed: %v", name, err))
			continue
		}

		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Violations = append(result.Violations, v)
				result.Allowed = false
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}
	result.Duration = time.Since(startTime)

	e.logger.Debug().
		Str("pipeline", p.Name).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Pipeline policy evaluation completed")

	return result, nil
}

// Admit loads the pipeline's own policy paths, evaluates the pipeline and
// rejects it with a *RejectedError when blocking violations were found in
// enforcing mode. Warnings and advisory-mode violations are logged.
func (e *Engine) Admit(ctx context.Context, p *config.Pipeline, operation string) (*Result, error) {
	mode := ModeEnforcing
	if p.Policy != nil {
		if p.Policy.Mode != "" {
			mode = p.Policy.Mode
		}
		if len(p.Policy.Paths) > 0 {
			paths := make([]string, 0, len(p.Policy.Paths))
			for _, path := range p.Policy.Paths {
				paths = append(paths, p.Resolve(path))
			}
			if err := e.LoadPolicies(ctx, paths); err != nil {
				return nil, err
			}
		}
	}

	result, err := e.EvaluateWith(ctx, p, &Context{Source: p.Source, Operation: operation})
	if err != nil {
		return nil, err
	}

	for _, w := range result.Warnings {
		e.logger.Warn().Str("policy", w.Policy).Str("task", w.Task).Msg(w.Message)
	}
	if result.Allowed {
		return result, nil
	}
	if mode == ModeAdvisory {
		for _, v := range result.Violations {
			e.logger.Warn().Str("policy", v.Policy).Str("task", v.Task).Msg(v.Message)
		}
		return result, nil
	}
	return result, &RejectedError{Result: result}
}

func buildInput(p *config.Pipeline, pctx *Context) (*Input, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pipeline: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode pipeline: %w", err)
	}

	if pctx == nil {
		pctx = &Context{}
	}
	if pctx.Timestamp.IsZero() {
		pctx.Timestamp = time.Now()
	}

	return &Input{Pipeline: doc, Order: executionOrder(p), Context: pctx}, nil
}

// executionOrder lists tasks in frame order.
func executionOrder(p *config.Pipeline) []OrderedTask {
	if !p.UsesPaths() {
		order := make([]OrderedTask, 0, len(p.Tasks))
		for _, t := range p.Tasks {
			order = append(order, OrderedTask{Path: t.Path, Type: t.Type})
		}
		return order
	}

	types := make(map[string]string, len(p.Tasks))
	for _, t := range p.Tasks {
		types[t.Path] = t.Type
	}
	order := make([]OrderedTask, 0, len(p.Execute))
	for _, path := range p.Execute {
		order = append(order, OrderedTask{Path: path, Type: types[path]})
	}
	return order
}

// LoadPolicies loads policy files and directories. Policies replace loaded
// policies of the same name.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// Watch reloads the policies under paths whenever they change.
func (e *Engine) Watch(ctx context.Context, paths []string) error {
	return e.loader.Watch(ctx, paths, func(policies []Policy) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i := range policies {
			if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
				return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
			}
		}
		return nil
	})
}

// StopWatching stops a Watch.
func (e *Engine) StopWatching() error {
	return e.loader.StopWatching()
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
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
			violations = append(violations, createViolation(cp.policy, d))
		}
	}
	return violations, nil
}

// createViolation creates a Violation from a deny entry. Entries are either
// strings or objects with message, severity and task keys.
func createViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if task, ok := v["task"].(string); ok {
			violation.Task = task
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compileAndStorePolicy compiles a policy and stores it. The caller holds
// the write lock.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", policy.Name)
	}
	if policy.Severity == "" {
		policy.Severity = SeverityWarning
	}

	r := rego.New(
		rego.ParsedModule(module),
		rego.Store(e.store),
		rego.Query(module.Package.Path.String()+".deny"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", module.Package.Path.String()).
		Msg("Policy compiled successfully")

	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(ctx, &builtins[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// ReloadPolicies drops every loaded policy except the built-ins.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies = make(map[string]*compiledPolicy)
	e.loader.ClearCache()
	return e.loadBuiltinPolicies(ctx)
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

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
