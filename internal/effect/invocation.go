package effect

import (
	"context"
	"encoding/json"
)

// Kind discriminates the Invocation variants.
type Kind int

const (
	// KindEffect is an ordinary effect invocation executed through the engine.
	KindEffect Kind = iota + 1

	// KindSystemParams asks the saga driver for ambient values. It is never
	// executed and never recorded in history.
	KindSystemParams
)

// String returns a stable name for logs.
func (k Kind) String() string {
	switch k {
	case KindEffect:
		return "effect"
	case KindSystemParams:
		return "system_params"
	default:
		return "unknown"
	}
}

// Invocation is a sealed interface over the values a workflow yields:
// a Step (from Descriptor.Bind) or SystemParams.
type Invocation interface {
	Kind() Kind
	Name() string
	isInvocation()
}

// Step is an effect descriptor bound to concrete arguments, with its type
// parameters erased so the engine can drive any effect.
type Step interface {
	Invocation

	// Args returns the bound arguments.
	Args() any

	// Execute invokes the effect.
	Execute(ctx context.Context) (any, error)

	// Probe invokes the probe with the same arguments as the effect.
	Probe(ctx context.Context) (ProbeOutcome[any], error)

	// Rollback invokes the rollback with the bound arguments.
	// result is nil for steps that did not succeed.
	Rollback(ctx context.Context, succeeded bool, result any) error

	// EncodeResult serializes a result for the call event.
	EncodeResult(result any) (json.RawMessage, error)

	// DecodeResult restores a result recorded in a call event.
	DecodeResult(raw json.RawMessage) (any, error)
}

// SystemParamsName is the reserved name of the system parameters pseudo-effect.
const SystemParamsName = "getSystemParams"

// SystemParams is the marker invocation asking the driver to resolve
// ambient values (saga id, runtime parameters) instead of running an effect.
// It has no effect, probe or rollback body.
type SystemParams struct{}

func (SystemParams) isInvocation() {}

// Kind implements Invocation.
func (SystemParams) Kind() Kind { return KindSystemParams }

// Name implements Invocation.
func (SystemParams) Name() string { return SystemParamsName }
