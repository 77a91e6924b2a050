package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ponderpaw/readalong/internal/observe"
	"github.com/ponderpaw/readalong/internal/playbook"
	"github.com/ponderpaw/readalong/pkg/assets"
	"github.com/ponderpaw/readalong/pkg/events"
	"github.com/ponderpaw/readalong/pkg/media"
)

// captionTick is how often a tracked read re-checks playback position to
// grow the caption prefix, and how often any read reconciles the pause gate
// with the playback handle.
const captionTick = 50 * time.Millisecond

// readRunner plays a narration unit (file-backed audio or synthesized
// speech) and drives caption updates while it plays.
//
// The runner keeps at most one active playback: starting a new read stops
// whatever the previous call left behind. Pause holds the playback at its
// position; resume continues from the same position. A missing or broken
// audio resource resolves the action as a completed no-op.
type readRunner struct {
	player   media.Player
	resolver assets.Resolver
	bus      *events.Bus
	metrics  *observe.Metrics

	readGap time.Duration
	fadeOut time.Duration

	mu     sync.Mutex
	active media.Playback
}

func (r *readRunner) run(ctx context.Context, spec playbook.ActionSpec, rc runContext) error {
	read := spec.Read
	if read == nil {
		return nil
	}
	if r.player == nil {
		rc.logger.Warn("no media player configured, resolving read as no-op", "key", spec.Key)
		return nil
	}

	// Pause checkpoint before any side effect is issued.
	if err := rc.pause.Wait(ctx); err != nil {
		return err
	}

	req, ok := r.buildRequest(spec.Key, read, rc)
	if !ok {
		// Nothing playable; resolve as a completed no-op.
		return nil
	}

	pb, err := r.player.Play(ctx, req)
	if err != nil {
		rc.logger.Error("read playback failed to start, resolving as no-op",
			"key", spec.Key,
			"error", err,
		)
		r.metrics.ResourceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "media")))
		return nil
	}
	r.setActive(pb)
	defer r.clearActive(pb)

	track := read.Subtitle
	if track != nil {
		// Hand the host the full timing track up front, then pace the text.
		r.bus.Publish(events.NewCaptionUpdated("", track.Timings))
	} else if read.SpokenText != "" {
		r.bus.Publish(events.NewCaptionUpdated(read.SpokenText, nil))
	}

	err = r.watch(ctx, pb, track, rc)

	// Clear the caption area regardless of how playback ended.
	r.bus.Publish(events.NewCaptionUpdated("", nil))
	if err != nil {
		return err
	}

	// Small settle gap between consecutive reads.
	return sleep(ctx, r.readGap, rc.skip)
}

// buildRequest resolves the audio asset and falls back to synthesized
// speech when the asset is missing but narration text exists.
func (r *readRunner) buildRequest(key string, read *playbook.ReadSpec, rc runContext) (media.Request, bool) {
	req := media.Request{Text: read.SpokenText}

	if read.AudioKey != "" && r.resolver != nil {
		path, err := r.resolver.Resolve(read.AudioKey)
		switch {
		case err == nil:
			req.FilePath = path
		case read.SpokenText != "":
			rc.logger.Warn("audio asset unavailable, falling back to synthesized speech",
				"key", key,
				"audio", read.AudioKey,
				"error", err,
			)
			r.metrics.ResourceErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", "asset")))
		default:
			rc.logger.Error("audio asset unavailable and no narration text, resolving as no-op",
				"key", key,
				"audio", read.AudioKey,
				"error", err,
			)
			r.metrics.ResourceErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", "asset")))
			return media.Request{}, false
		}
	}
	if req.FilePath == "" && req.Text == "" {
		return media.Request{}, false
	}
	return req, true
}

// watch drives the playback to resolution: natural completion, skip, or
// cancellation. It reconciles the pause gate with the playback handle and,
// for tracked reads, grows the caption prefix with playback position.
func (r *readRunner) watch(ctx context.Context, pb media.Playback, track *playbook.SubtitleTrack, rc runContext) error {
	ticker := time.NewTicker(captionTick)
	defer ticker.Stop()

	paused := false
	emitted := 0

	for {
		select {
		case <-pb.Done():
			if track != nil && emitted < track.Len() {
				r.bus.Publish(events.NewCaptionUpdated(strings.Join(track.Characters, ""), nil))
			}
			return nil

		case <-rc.skip:
			pb.Stop(r.fadeOut)
			<-pb.Done()
			return nil

		case <-ctx.Done():
			pb.Stop(r.fadeOut)
			return ctx.Err()

		case <-ticker.C:
			if p := rc.pause.Paused(); p != paused {
				paused = p
				if paused {
					pb.Pause()
				} else {
					pb.Resume()
				}
			}
			if track == nil || paused {
				continue
			}
			if n := cuesElapsed(track, pb.Position()); n > emitted {
				emitted = n
				r.bus.Publish(events.NewCaptionUpdated(strings.Join(track.Characters[:n], ""), nil))
			}
		}
	}
}

// setActive records pb as the runner's single active playback, stopping any
// prior one first.
func (r *readRunner) setActive(pb media.Playback) {
	r.mu.Lock()
	prev := r.active
	r.active = pb
	r.mu.Unlock()
	if prev != nil {
		prev.Stop(0)
	}
}

func (r *readRunner) clearActive(pb media.Playback) {
	r.mu.Lock()
	if r.active == pb {
		r.active = nil
	}
	r.mu.Unlock()
}

// cuesElapsed returns how many cues of track have a timing at or before pos.
// Timings are non-decreasing in well-formed tracks; scanning forward keeps
// misordered tracks from going backwards.
func cuesElapsed(track *playbook.SubtitleTrack, pos time.Duration) int {
	n := 0
	for i, t := range track.Timings {
		if t <= pos {
			n = i + 1
		}
	}
	return n
}
