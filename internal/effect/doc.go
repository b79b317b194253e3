// Package effect defines the workflow author's side of sagalog: effect
// descriptors, their bound invocations, probe outcomes and the serializable
// failure payload recorded for failed calls.
//
// A Descriptor binds a named effect function to a probe (the idempotency
// check used after a crash between recording a precall and recording the
// call) and a rollback (the compensation registered once the step's outcome
// is known). Descriptors are immutable; Bind produces a Step carrying the
// concrete arguments for one invocation.
//
// Every function receives the step's context.Context as its cancellation
// token. An effect that observes cancellation should return an error
// wrapping context.Canceled or context.DeadlineExceeded so the engine can
// leave the step's outcome unrecorded.
package effect
