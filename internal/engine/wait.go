package engine

import (
	"context"
	"time"

	"github.com/ponderpaw/readalong/internal/playbook"
)

// waitRunner resolves after the action's fixed duration. Cancellable and
// skippable; the countdown runs on the wall clock.
type waitRunner struct{}

func (waitRunner) run(ctx context.Context, spec playbook.ActionSpec, rc runContext) error {
	if err := rc.pause.Wait(ctx); err != nil {
		return err
	}
	d := time.Duration(0)
	if spec.Wait != nil {
		d = spec.Wait.Duration
	}
	rc.logger.Debug("wait action", "key", spec.Key, "duration", d)
	return sleep(ctx, d, rc.skip)
}

// unknownRunner handles unrecognized action types: it logs the kind and
// resolves after a short grace delay so a malformed playbook still makes
// visible forward progress.
type unknownRunner struct {
	grace time.Duration
}

func (u unknownRunner) run(ctx context.Context, spec playbook.ActionSpec, rc runContext) error {
	if err := rc.pause.Wait(ctx); err != nil {
		return err
	}
	rc.logger.Warn("unrecognized action type, resolving after grace delay",
		"key", spec.Key,
		"type", spec.RawType,
		"grace", u.grace,
	)
	return sleep(ctx, u.grace, rc.skip)
}
