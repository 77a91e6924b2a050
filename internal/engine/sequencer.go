package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ponderpaw/readalong/internal/observe"
	"github.com/ponderpaw/readalong/internal/playbook"
	"github.com/ponderpaw/readalong/pkg/events"
)

// sequencer drives a page's action list strictly in order, one action at a
// time. It owns the per-action skip arming and the started/completed event
// pair; runners never touch either.
type sequencer struct {
	doc     *playbook.Document
	runners map[playbook.Kind]runner
	unknown runner

	bus     *events.Bus
	metrics *observe.Metrics
	exec    *executionContext
	pause   *pauseGate
	skipper *skipArm
	talk    chan talkSignal
	logger  *slog.Logger
}

// runPage resolves every action on the page in index order. An empty action
// list returns immediately, so the caller completes the page on the same
// synchronous tick. Returns ctx.Err() when the session is torn down
// mid-page.
func (s *sequencer) runPage(ctx context.Context, page playbook.Page) error {
	for i, key := range page.ActionKeys {
		s.exec.setActionIndex(i)

		// Pause checkpoint: a paused session holds here before the next
		// action starts its side effect.
		if err := s.pause.Wait(ctx); err != nil {
			return err
		}

		if err := s.runOne(ctx, key, i); err != nil {
			return err
		}
	}
	return nil
}

// runOne resolves a single top-level action: events, skip arming, metrics,
// and the runner dispatch.
func (s *sequencer) runOne(ctx context.Context, key string, index int) error {
	spec := s.lookup(key)

	s.bus.Publish(events.NewActionStarted(key, index))

	skipCh := s.skipper.arm()
	defer s.skipper.disarm()

	ctx, span := observe.StartSpan(ctx, "action.run",
		trace.WithAttributes(
			attribute.String("action.key", key),
			attribute.String("action.kind", string(spec.Kind)),
		),
	)
	defer span.End()

	start := time.Now()
	err := s.dispatch(ctx, spec, skipCh)
	s.record(ctx, spec.Kind, time.Since(start), err)
	if err != nil {
		return err
	}

	s.bus.Publish(events.NewActionCompleted(key, index))
	return nil
}

// runNested resolves a branch action launched from inside another runner
// (voice success/failure). It shares the parent's skip channel so one skip
// resolves the whole in-flight chain, and publishes no action events: from
// the host's point of view the parent action is still running.
func (s *sequencer) runNested(ctx context.Context, key string, skipCh <-chan struct{}) error {
	spec := s.lookup(key)
	s.logger.Debug("running nested action", "key", key, "kind", spec.Kind)
	return s.dispatch(ctx, spec, skipCh)
}

// lookup resolves an action key, degrading a missing key to an unknown-kind
// spec so the page keeps moving.
func (s *sequencer) lookup(key string) playbook.ActionSpec {
	spec, ok := s.doc.Action(key)
	if !ok {
		s.logger.Warn("action key not found in playbook", "key", key)
		return playbook.ActionSpec{Key: key, Kind: playbook.KindUnknown, RawType: "missing"}
	}
	return spec
}

func (s *sequencer) dispatch(ctx context.Context, spec playbook.ActionSpec, skipCh <-chan struct{}) error {
	r, ok := s.runners[spec.Kind]
	if !ok {
		r = s.unknown
	}

	rc := runContext{
		pause: s.pause,
		skip:  skipCh,
		talk:  s.talk,
		runAction: func(ctx context.Context, key string) error {
			return s.runNested(ctx, key, skipCh)
		},
		// The action span is already on ctx, so runner logs carry its
		// trace and span IDs.
		logger: observe.Logger(ctx, s.logger).With("action", spec.Key, "kind", spec.Kind),
	}
	return r.run(ctx, spec, rc)
}

// record emits the per-action metrics. Cancellation is its own outcome so
// dashboards separate torn-down sessions from resolved actions.
func (s *sequencer) record(ctx context.Context, kind playbook.Kind, took time.Duration, err error) {
	outcome := "completed"
	if err != nil {
		outcome = "canceled"
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	)
	s.metrics.ActionDuration.Record(ctx, took.Seconds(), metric.WithAttributes(attribute.String("kind", string(kind))))
	s.metrics.ActionsTotal.Add(ctx, 1, attrs)
}
