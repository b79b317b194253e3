// Package testutil provides deterministic fakes for the engine's
// collaborators: a recording publisher, a scripted effect and an ordered
// journal of their calls.
package testutil
