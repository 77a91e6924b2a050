// Package bridge exposes the engine to embedding hosts over a WebSocket:
// session events fan out to every connected client and host commands
// dispatch to the engine control surface. Frames use the base64 envelope
// codec so WebView hosts can speak the protocol with native string
// primitives.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ponderpaw/readalong/pkg/events"
)

// Command topics a host may send. Anything else is logged and ignored.
const (
	TopicNextPage    = "next_page"
	TopicPrevPage    = "prev_page"
	TopicPauseToggle = "pause_toggle"
	TopicSkip        = "skip"
	TopicStop        = "stop"
	TopicPressTalk   = "press_talk"
	TopicReleaseTalk = "release_talk"
)

// outboundBuffer bounds per-client event queues. A client that cannot keep
// up drops events rather than stalling the session.
const outboundBuffer = 64

// Controller is the slice of the engine the bridge drives. Satisfied by
// *engine.Engine.
type Controller interface {
	NextPage(ctx context.Context) error
	PreviousPage(ctx context.Context) error
	TogglePause() bool
	SkipCurrentAction()
	Stop()
	PressTalk()
	ReleaseTalk()
}

// Bridge accepts WebSocket clients, subscribes each to the session bus, and
// dispatches their command frames.
type Bridge struct {
	engine Controller
	bus    *events.Bus
	logger *slog.Logger
}

// New returns a Bridge wiring bus events and host commands to ctrl.
func New(ctrl Controller, bus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{engine: ctrl, bus: bus, logger: logger}
}

// Handler returns the HTTP handler that upgrades connections and serves
// clients until they disconnect or the request context ends.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			b.logger.Warn("websocket accept failed", "error", err)
			return
		}
		b.serveClient(r.Context(), conn)
	})
}

// serveClient runs one client's read and write loops to completion.
func (b *Bridge) serveClient(ctx context.Context, conn *websocket.Conn) {
	clientID := uuid.NewString()
	logger := b.logger.With("client_id", clientID)
	logger.Info("bridge client connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outbound := make(chan string, outboundBuffer)
	unsubscribe := b.bus.Subscribe(func(ev events.Event) {
		frame, err := encodeEvent(ev)
		if err != nil {
			logger.Error("event encode failed", "kind", ev.Kind(), "error", err)
			return
		}
		select {
		case outbound <- frame:
		default:
			logger.Warn("client event queue full, dropping", "kind", ev.Kind())
		}
	})
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.writeLoop(ctx, conn, outbound) })
	g.Go(func() error { return b.readLoop(ctx, conn, logger) })

	err := g.Wait()
	conn.Close(websocket.StatusNormalClosure, "session over")
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Info("bridge client disconnected", "reason", err)
		return
	}
	logger.Info("bridge client disconnected")
}

func (b *Bridge) writeLoop(ctx context.Context, conn *websocket.Conn, outbound <-chan string) error {
	for {
		select {
		case frame := <-outbound:
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return fmt.Errorf("bridge: write frame: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("bridge: read frame: %w", err)
		}
		env, err := Decode(string(data))
		if err != nil {
			logger.Warn("undecodable frame, ignoring", "error", err)
			continue
		}
		b.dispatch(ctx, env, logger)
	}
}

// dispatch maps a command topic onto the engine control surface. Page
// navigation runs on its own goroutine because Play is synchronous and a
// command stream must not block behind a page's actions.
func (b *Bridge) dispatch(ctx context.Context, env Envelope, logger *slog.Logger) {
	logger.Debug("host command", "topic", env.Topic)
	switch env.Topic {
	case TopicNextPage:
		go func() {
			if err := b.engine.NextPage(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("next page failed", "error", err)
			}
		}()
	case TopicPrevPage:
		go func() {
			if err := b.engine.PreviousPage(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("previous page failed", "error", err)
			}
		}()
	case TopicPauseToggle:
		paused := b.engine.TogglePause()
		logger.Info("pause toggled by host", "paused", paused)
	case TopicSkip:
		b.engine.SkipCurrentAction()
	case TopicStop:
		b.engine.Stop()
	case TopicPressTalk:
		b.engine.PressTalk()
	case TopicReleaseTalk:
		b.engine.ReleaseTalk()
	default:
		logger.Warn("unknown command topic, ignoring", "topic", env.Topic)
	}
}

// encodeEvent flattens a bus event into its wire envelope. Payload field
// names follow the host-side SDK conventions (camelCase, seconds for
// durations).
func encodeEvent(ev events.Event) (string, error) {
	return Encode(string(ev.Kind()), eventData(ev))
}

func eventData(ev events.Event) any {
	switch e := ev.(type) {
	case events.BookStarted:
		return struct {
			SessionID string `json:"sessionId"`
		}{e.SessionID}
	case events.PagePlay:
		return struct {
			Page int `json:"page"`
		}{e.PageNumber}
	case events.PageReady:
		return struct {
			Current int `json:"current"`
			Total   int `json:"total"`
		}{e.Current, e.Total}
	case events.PageCompleted:
		return struct {
			Page int `json:"page"`
		}{e.PageNumber}
	case events.ActionStarted:
		return struct {
			Key   string `json:"key"`
			Index int    `json:"index"`
		}{e.ActionKey, e.Index}
	case events.ActionCompleted:
		return struct {
			Key   string `json:"key"`
			Index int    `json:"index"`
		}{e.ActionKey, e.Index}
	case events.CaptionUpdated:
		return struct {
			Text    string    `json:"text"`
			Timings []float64 `json:"timings,omitempty"`
		}{e.Text, toSeconds(e.CharTimings)}
	default:
		return nil
	}
}

func toSeconds(ds []time.Duration) []float64 {
	if len(ds) == 0 {
		return nil
	}
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = d.Seconds()
	}
	return out
}
