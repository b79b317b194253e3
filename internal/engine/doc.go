// Package engine implements the per-step execution protocol of sagalog.
//
// ExecuteStep reconciles a step against its recorded history and then takes
// exactly one of three paths:
//
// Completed: the step's precall and call are both recorded. The recorded
// outcome is replayed without invoking the effect, the probe or the
// publisher. A recorded failure is re-raised as the decoded error value.
//
// Fresh: no history. A precall event is published, the effect runs, and a
// call event carrying the outcome is published.
//
// InFlight: a precall was recorded but the call never was (the process died
// in between). The probe decides: if the side effect is already observable
// the call is published from the probe's result and the effect is not
// invoked; otherwise the effect runs as on the Fresh path without a second
// precall.
//
// ERROR POLICY:
//
// A failing effect is recorded as a failed call and its error returned
// unchanged, so later replays reproduce the failure instead of retrying it.
// Cancellation (context.Canceled or context.DeadlineExceeded) is the one
// exception: nothing is recorded, leaving the step Fresh or InFlight for the
// next attempt.
//
// ROLLBACK REGISTRATION:
//
// Every terminal outcome (success, recorded failure, cancellation, replay)
// registers exactly one rollback action. The action calls the descriptor's
// rollback with the step's bound arguments, the real succeeded flag and the
// result (nil when the step did not succeed). The engine never runs or
// orders rollback actions; that belongs to the registrar (see package
// rollback).
//
// The engine holds no per-saga state and takes no locks. Callers must not
// run two ExecuteStep calls for the same step instance concurrently.
package engine
