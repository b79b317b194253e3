package engine

import (
	"context"

	"github.com/roach88/sagalog/internal/ir"
	"github.com/roach88/sagalog/internal/rollback"
)

// Publisher durably records a history event before the engine proceeds.
type Publisher interface {
	Publish(ctx context.Context, ev ir.Event) error
}

// PublishFunc adapts a function to Publisher.
type PublishFunc func(ctx context.Context, ev ir.Event) error

// Publish implements Publisher.
func (f PublishFunc) Publish(ctx context.Context, ev ir.Event) error {
	return f(ctx, ev)
}

// RollbackRegistrar receives the rollback action for each step outcome.
// The engine calls it exactly once per terminal outcome.
// (*rollback.Stack).Register satisfies it.
type RollbackRegistrar func(rollback.Action)
