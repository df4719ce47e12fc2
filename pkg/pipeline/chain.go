package pipeline

import (
	"context"
	"log/slog"
)

// Step is one stage of a chain. Completes is the stage the context reaches
// when Run succeeds. Rollback, when set, compensates the step's side effect
// and is invoked if a later step fails.
type Step struct {
	Name      string
	Completes Stage
	Run       func(ctx context.Context, pc *Context) error
	Rollback  func(ctx context.Context, pc *Context) error
}

// Chain executes steps in order for one operation type.
type Chain struct {
	op     OperationType
	steps  []Step
	logger *slog.Logger
}

func NewChain(op OperationType, logger *slog.Logger, steps ...Step) *Chain {
	return &Chain{op: op, steps: steps, logger: logger}
}

// Run drives pc through the chain. On step failure the compensations of all
// completed steps run in reverse order, the context lands in ROLLED_BACK,
// and the step's error is returned. Rollback failures are logged and do not
// mask the original error.
func (c *Chain) Run(ctx context.Context, pc *Context) error {
	pc.Operation = c.op

	for i, step := range c.steps {
		if err := step.Run(ctx, pc); err != nil {
			pc.err = err
			c.logger.Warn("chain step failed",
				"operation", string(c.op),
				"step", step.Name,
				"stage", pc.Stage().String(),
				"trace_id", pc.TraceID,
				"error", err)
			c.unwind(ctx, pc, i-1)
			return err
		}
		if err := pc.advance(step.Completes); err != nil {
			pc.err = err
			c.unwind(ctx, pc, i)
			return err
		}
	}

	return pc.advance(StageCompleted)
}

// unwind runs rollbacks for steps [0..last] in reverse order.
func (c *Chain) unwind(ctx context.Context, pc *Context, last int) {
	for i := last; i >= 0; i-- {
		step := c.steps[i]
		if step.Rollback == nil {
			continue
		}
		if err := step.Rollback(ctx, pc); err != nil {
			c.logger.Error("chain rollback failed",
				"operation", string(c.op),
				"step", step.Name,
				"trace_id", pc.TraceID,
				"error", err)
		}
	}
	pc.stage = StageRolledBack
}
