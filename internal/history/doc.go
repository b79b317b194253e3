// Package history reconciles a step instance's recorded events with the
// step the workflow is about to run.
//
// Each step instance owns two slots: a precall slot and a call slot.
// Reconcile reads both from a forward-only Iterator and classifies the step:
//
//	precall  call     state
//	absent   absent   Fresh      no history; execute from scratch
//	present  absent   InFlight   crashed between precall and call; probe first
//	present  present  Completed  replay the recorded outcome, no I/O
//
// A recorded event whose type or step identity differs from what the
// current workflow expects means the history belongs to a different
// workflow definition (steps reordered or renamed between runs). That is
// fatal and reported as *UnexpectedEventError.
package history
