package deploy

import (
	"errors"
	"fmt"
)

// Kind classifies a deployment failure.
type Kind string

const (
	// KindConfiguration is a malformed or out-of-range configuration value.
	KindConfiguration Kind = "configuration"
	// KindSubmission is a transaction the chain client refused before inclusion.
	KindSubmission Kind = "submission"
	// KindConfirmation is a transaction that was dropped or reverted.
	KindConfirmation Kind = "confirmation"
	// KindTimeout is a confirmation that did not arrive within the step bound.
	KindTimeout Kind = "timeout"
	// KindDependency is a step skipped because an upstream step failed.
	KindDependency Kind = "dependency"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Plan construction errors.
var (
	ErrEmptyPlan         = errors.New("plan has no steps")
	ErrDuplicateContract = errors.New("duplicate contract in plan")
	ErrUnknownDependency = errors.New("step depends on unknown contract")
	ErrSelfDependency    = errors.New("step depends on itself")
	ErrCyclicDependency  = errors.New("cyclic dependency in plan")
)

// DeploymentError is the single error type returned by Orchestrator.Run.
// Contract is empty for configuration errors that precede any step.
type DeploymentError struct {
	Kind     Kind
	Contract string
	Err      error
}

// Error implements the error interface.
func (e *DeploymentError) Error() string {
	if e.Contract == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error deploying %s: %v", e.Kind, e.Contract, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DeploymentError) Unwrap() error {
	return e.Err
}

// Is matches another *DeploymentError by kind, and by contract when the target names one.
// This lets callers write errors.Is(err, &DeploymentError{Kind: KindTimeout}).
func (e *DeploymentError) Is(target error) bool {
	t, ok := target.(*DeploymentError)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Contract != "" && t.Contract != e.Contract {
		return false
	}
	return t.Kind != "" || t.Contract != ""
}

func newConfigurationError(format string, args ...any) *DeploymentError {
	return &DeploymentError{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of a deployment error, or "" when err is not one.
func KindOf(err error) Kind {
	var derr *DeploymentError
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return ""
}
