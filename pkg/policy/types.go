package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that reject the pipeline.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity rejects a pipeline.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are read from the
	// deny set of its package.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not set one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with hydra. They survive reloads.
	Builtin bool `json:"builtin,omitempty"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Task is the path of the offending task, if any.
	Task string `json:"task,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	if v.Task != "" {
		return v.Policy + ": " + v.Task + ": " + v.Message
	}
	return v.Policy + ": " + v.Message
}

// Result represents the result of evaluating a pipeline.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists error and critical findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists info and warning findings. They never block.
	Warnings []Violation `json:"warnings,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policies were evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as input.
type Input struct {
	// Pipeline is the pipeline in its JSON form.
	Pipeline map[string]interface{} `json:"pipeline"`

	// Order lists tasks in the order a frame runs them: the execute list
	// when the pipeline has one, otherwise the task list.
	Order []OrderedTask `json:"order"`

	// Context provides evaluation context.
	Context *Context `json:"context"`
}

// OrderedTask is one entry of Input.Order.
type OrderedTask struct {
	Path string `json:"path"`

	// Type is empty when an execute entry names no task.
	Type string `json:"type,omitempty"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Source is the file the pipeline was loaded from.
	Source string `json:"source,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the command requesting admission, e.g. "run" or "validate".
	Operation string `json:"operation,omitempty"`
}
