package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ponderpaw/readalong/internal/match"
	"github.com/ponderpaw/readalong/internal/observe"
	"github.com/ponderpaw/readalong/internal/playbook"
	"github.com/ponderpaw/readalong/pkg/asr"
)

// VoicePolicy holds the session-wide voice-interaction knobs. Action specs
// override the window duration and per-option thresholds; everything else
// applies uniformly.
type VoicePolicy struct {
	// Window is the default listen-window length.
	Window time.Duration

	// MaxRetries bounds unrecognized-retry cycles per action. The runner
	// opens at most MaxRetries+1 windows.
	MaxRetries int

	// BaseThreshold is the default similarity threshold.
	BaseThreshold float64

	// RelaxStep lowers the effective threshold on each retry so repeated
	// near-misses eventually pass instead of looping forever.
	RelaxStep float64

	// PressTimeout bounds the wait for a walkie-talkie press.
	PressTimeout time.Duration

	// ReleaseDebounce is how long a release must hold before capture
	// closes; a press arriving inside the debounce keeps capturing.
	ReleaseDebounce time.Duration
}

// captureOutcome classifies how a capture window ended.
type captureOutcome int

const (
	captureEvaluate captureOutcome = iota // window closed normally, evaluate buffer
	captureSkipped                        // host skipped the action
	capturePressTimeout                   // walkie-talkie press never arrived
)

// voiceRunner executes the listen → classify → branch protocol.
//
// Continuous modes open a bounded window, buffer every recognition event,
// and pick the best match at window close. Walkie-talkie mode waits for an
// explicit press, captures until a debounced release, then evaluates the
// same way. Unrecognized cycles retry with a monotonically relaxed
// threshold until MaxRetries is exhausted, at which point the action
// force-resolves.
type voiceRunner struct {
	listener asr.Listener
	scorer   *match.Scorer
	policy   VoicePolicy
	language string
	metrics  *observe.Metrics
}

func (v *voiceRunner) run(ctx context.Context, spec playbook.ActionSpec, rc runContext) error {
	vs := spec.Voice
	if vs == nil {
		return nil
	}
	if v.listener == nil {
		rc.logger.Warn("no speech recognizer configured, resolving voice action as no-op", "key", spec.Key)
		return nil
	}

	window := vs.WindowDuration
	if window <= 0 {
		window = v.policy.Window
	}

	// In multi mode, satisfied options persist across retry cycles: the
	// completion rule is set membership, not a per-window count.
	satisfied := make(map[int]bool)

	for retries := 0; ; retries++ {
		if err := rc.pause.Wait(ctx); err != nil {
			return err
		}

		buffered, outcome, err := v.capture(ctx, vs, window, rc)
		if err != nil {
			return err
		}
		switch outcome {
		case captureSkipped:
			rc.logger.Info("voice action skipped", "key", spec.Key)
			return nil
		case capturePressTimeout:
			rc.logger.Info("voice action resolved: no press before timeout", "key", spec.Key)
			return nil
		}
		if len(buffered) == 0 {
			rc.logger.Info("voice action resolved: listen window timed out with no speech", "key", spec.Key)
			return nil
		}

		if v.evaluate(vs, buffered, retries, satisfied, rc) {
			rc.logger.Info("voice action recognized", "key", spec.Key, "retries", retries)
			if vs.SuccessActionKey != "" {
				if err := rc.runAction(ctx, vs.SuccessActionKey); err != nil {
					return err
				}
			}
			return nil
		}

		rc.logger.Info("voice action unrecognized", "key", spec.Key, "retry", retries)
		v.metrics.VoiceRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(vs.Mode))))
		if vs.FailureActionKey != "" {
			if err := rc.runAction(ctx, vs.FailureActionKey); err != nil {
				return err
			}
		}
		if retries >= v.policy.MaxRetries {
			rc.logger.Info("voice action resolved: retries exhausted", "key", spec.Key, "retries", retries)
			return nil
		}
	}
}

// capture opens one listen window and buffers recognition events until the
// window closes. For walkie-talkie mode it first waits for the press signal
// and closes on a debounced release instead of a fixed deadline.
func (v *voiceRunner) capture(ctx context.Context, vs *playbook.VoiceSpec, window time.Duration, rc runContext) ([]asr.Result, captureOutcome, error) {
	isWT := vs.Mode == playbook.VoiceModeWalkieTalkie

	if isWT {
		rc.logger.Info("walkie-talkie ready, waiting for press")
		pressTimer := time.NewTimer(v.policy.PressTimeout)
		defer pressTimer.Stop()
	press:
		for {
			select {
			case sig := <-rc.talk:
				if sig == talkPress {
					break press
				}
				// A stray release before any press is ignored.
			case <-pressTimer.C:
				return nil, capturePressTimeout, nil
			case <-rc.skip:
				return nil, captureSkipped, nil
			case <-ctx.Done():
				return nil, captureEvaluate, ctx.Err()
			}
		}
	}

	win, err := v.listener.Listen(ctx, asr.WindowConfig{Duration: window, Language: v.language})
	if err != nil {
		rc.logger.Error("listen window failed to open, resolving as timeout", "error", err)
		v.metrics.ResourceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "asr")))
		return nil, captureEvaluate, nil
	}
	defer win.Close()

	var buffered []asr.Result

	// deadline bounds continuous capture; walkie-talkie capture is bounded
	// by the debounced release (plus the window duration as a backstop).
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	// releaseDebounce is nil until a release arrives; a press within the
	// debounce period cancels the close.
	var releaseDebounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if releaseDebounce != nil {
			releaseDebounce.Stop()
		}
	}()

	for {
		select {
		case r, ok := <-win.Results():
			if !ok {
				// Recognizer ended the stream on its own.
				return buffered, captureEvaluate, nil
			}
			buffered = append(buffered, r)

		case <-deadline.C:
			win.Close()
			return append(buffered, drain(win)...), captureEvaluate, nil

		case sig := <-rc.talk:
			if !isWT {
				continue
			}
			switch sig {
			case talkRelease:
				if releaseDebounce == nil {
					releaseDebounce = time.NewTimer(v.policy.ReleaseDebounce)
					debounceC = releaseDebounce.C
				}
			case talkPress:
				// Accidental release flicker: keep capturing.
				if releaseDebounce != nil {
					releaseDebounce.Stop()
					releaseDebounce = nil
					debounceC = nil
				}
			}

		case <-debounceC:
			win.Close()
			return append(buffered, drain(win)...), captureEvaluate, nil

		case <-rc.skip:
			return buffered, captureSkipped, nil

		case <-ctx.Done():
			return nil, captureEvaluate, ctx.Err()
		}
	}
}

// drain collects whatever the recognizer flushed between Close and the
// channel actually closing.
func drain(win asr.Window) []asr.Result {
	var out []asr.Result
	for r := range win.Results() {
		out = append(out, r)
	}
	return out
}

// evaluate classifies the buffered events for one cycle and reports whether
// the action is recognized. satisfied accumulates fired options in multi
// mode.
func (v *voiceRunner) evaluate(vs *playbook.VoiceSpec, buffered []asr.Result, retries int, satisfied map[int]bool, rc runContext) bool {
	switch vs.Mode {
	case playbook.VoiceModeNLU:
		return v.evaluateNLU(vs, buffered, rc)
	case playbook.VoiceModeMulti:
		return v.evaluateMulti(vs, buffered, retries, satisfied, rc)
	default:
		return v.evaluateSimilarity(vs, buffered, retries, rc)
	}
}

// evaluateSimilarity picks the single best event/option pair. Events are
// scanned in arrival order and only a strictly greater score replaces the
// best, so equal scores deterministically keep the first-seen event.
func (v *voiceRunner) evaluateSimilarity(vs *playbook.VoiceSpec, buffered []asr.Result, retries int, rc runContext) bool {
	phrases := make([]string, len(vs.Options))
	for i, o := range vs.Options {
		phrases[i] = o.Phrase
	}

	bestScore := -1.0
	bestOption := -1
	bestText := ""
	for _, r := range buffered {
		var score float64
		option := -1
		if len(phrases) > 0 {
			option, score = v.scorer.BestOption(r.Text, phrases)
		} else {
			// No configured options: fall back to the recognizer's own
			// confidence.
			score = r.Confidence
		}
		if score > bestScore {
			bestScore = score
			bestOption = option
			bestText = r.Text
		}
	}

	threshold := v.effectiveThreshold(vs, bestOption, retries)
	recognized := bestScore >= threshold
	rc.logger.Debug("similarity evaluation",
		"best_text", bestText,
		"best_score", bestScore,
		"threshold", threshold,
		"recognized", recognized,
	)
	return recognized
}

// evaluateNLU accepts the first buffered event whose intent matches an
// option and whose required entities are a subset of the recognized ones.
func (v *voiceRunner) evaluateNLU(vs *playbook.VoiceSpec, buffered []asr.Result, rc runContext) bool {
	for _, r := range buffered {
		for _, o := range vs.Options {
			if match.IntentMatches(o.Intent, o.Entities, r.Intent, r.Entities) {
				rc.logger.Debug("nlu evaluation matched", "intent", r.Intent)
				return true
			}
		}
	}
	return false
}

// evaluateMulti marks every option some buffered event satisfies and
// reports whether all options have now fired at least once.
func (v *voiceRunner) evaluateMulti(vs *playbook.VoiceSpec, buffered []asr.Result, retries int, satisfied map[int]bool, rc runContext) bool {
	for _, r := range buffered {
		for i, o := range vs.Options {
			if satisfied[i] {
				continue
			}
			if v.scorer.Score(r.Text, o.Phrase) >= v.effectiveThreshold(vs, i, retries) {
				satisfied[i] = true
			}
		}
	}
	rc.logger.Debug("multi-option evaluation",
		"satisfied", len(satisfied),
		"expected", len(vs.Options),
	)
	return len(satisfied) == len(vs.Options)
}

// effectiveThreshold is the option's own threshold (or the policy base)
// relaxed by RelaxStep per retry, floored at zero.
func (v *voiceRunner) effectiveThreshold(vs *playbook.VoiceSpec, option, retries int) float64 {
	threshold := v.policy.BaseThreshold
	if option >= 0 && option < len(vs.Options) && vs.Options[option].Threshold > 0 {
		threshold = vs.Options[option].Threshold
	}
	threshold -= float64(retries) * v.policy.RelaxStep
	if threshold < 0 {
		return 0
	}
	return threshold
}
