package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ponderpaw/readalong/internal/observe"
	"github.com/ponderpaw/readalong/internal/playbook"
	"github.com/ponderpaw/readalong/pkg/conversation"
)

// agentRunner wraps one bounded AI conversation turn.
//
// A background timer ends the turn at the action's duration bound; an explicit
// skip ends it immediately and cancels the timer. On either path, and on
// disposal, the underlying session is torn down exactly once. At most one
// conversation session exists per runner; a new turn tears down any prior
// session before starting.
type agentRunner struct {
	conversations conversation.Starter
	knowledge     map[string]any
	metrics       *observe.Metrics

	mu     sync.Mutex
	active func() // teardown of the current session, nil when none
}

func (a *agentRunner) run(ctx context.Context, spec playbook.ActionSpec, rc runContext) error {
	ag := spec.Agent
	if ag == nil {
		return nil
	}
	if a.conversations == nil {
		rc.logger.Warn("no conversation provider configured, resolving as no-op", "key", spec.Key)
		return nil
	}

	if err := rc.pause.Wait(ctx); err != nil {
		return err
	}

	sess, err := a.conversations.Start(ctx, conversation.Params{
		InitialPrompt: ag.InitialPrompt,
		OpeningLine:   ag.OpeningLine,
		VoiceID:       ag.VoiceID,
		Knowledge:     a.knowledge,
	})
	if err != nil {
		rc.logger.Error("conversation session failed to start, resolving as no-op",
			"key", spec.Key,
			"error", err,
		)
		a.metrics.ResourceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "conversation")))
		return nil
	}

	var once sync.Once
	teardown := func() {
		once.Do(func() {
			if err := sess.End(); err != nil {
				rc.logger.Warn("conversation teardown failed", "key", spec.Key, "error", err)
			}
		})
	}
	a.setActive(teardown)
	defer a.clearActive()

	rc.logger.Info("agent conversation started",
		"key", spec.Key,
		"max_duration", ag.MaxDuration,
	)

	timer := time.NewTimer(ag.MaxDuration)
	defer timer.Stop()

	select {
	case <-timer.C:
		rc.logger.Info("agent conversation reached its duration bound", "key", spec.Key)
	case <-rc.skip:
		rc.logger.Info("agent conversation skipped", "key", spec.Key)
	case <-ctx.Done():
		teardown()
		return ctx.Err()
	}

	teardown()
	return nil
}

// setActive installs teardown as the single live session, closing any prior
// one first.
func (a *agentRunner) setActive(teardown func()) {
	a.mu.Lock()
	prev := a.active
	a.active = teardown
	a.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// clearActive drops the active slot. Turns run strictly sequentially, so
// the slot is always ours to clear.
func (a *agentRunner) clearActive() {
	a.mu.Lock()
	a.active = nil
	a.mu.Unlock()
}
