package effect

import "context"

// ProbeOutcome reports whether an effect's side effect is already observable.
// It has two variants: Succeeded, carrying the observed result, and
// CallNeeded, meaning the effect must be (re-)executed.
type ProbeOutcome[R any] struct {
	succeeded bool
	result    R
}

// Succeeded reports that the side effect already happened and produced result.
func Succeeded[R any](result R) ProbeOutcome[R] {
	return ProbeOutcome[R]{succeeded: true, result: result}
}

// CallNeeded reports that there is no evidence of a prior successful invocation.
func CallNeeded[R any]() ProbeOutcome[R] {
	return ProbeOutcome[R]{}
}

// Result returns the observed result and true for the Succeeded variant.
func (o ProbeOutcome[R]) Result() (R, bool) {
	return o.result, o.succeeded
}

// AlwaysCall is a probe for effects that cannot detect their own prior
// execution; the engine re-executes them after a crash.
func AlwaysCall[A, R any](context.Context, A) (ProbeOutcome[R], error) {
	return CallNeeded[R](), nil
}

// NoRollback is a rollback for effects that need no compensation.
func NoRollback[A, R any](context.Context, bool, R, A) error {
	return nil
}
