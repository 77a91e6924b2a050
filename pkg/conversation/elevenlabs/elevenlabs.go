// Package elevenlabs implements the conversation.Starter interface for the
// ElevenLabs Conversational AI websocket API.
//
// A session dials the agent websocket endpoint, sends the initiation payload
// (prompt and first-message overrides, voice selection, and the playbook's
// shared knowledge as dynamic variables), and then drains server events until
// the session ends. Audio rendering happens on the provider side; the engine
// only owns the session lifetime.
package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/ponderpaw/readalong/pkg/conversation"
)

// Compile-time assertions that Provider and session satisfy the
// conversation interfaces.
var _ conversation.Starter = (*Provider)(nil)
var _ conversation.Session = (*session)(nil)

const defaultBaseURL = "wss://api.elevenlabs.io/v1/convai/conversation"

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the base websocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements conversation.Starter for ElevenLabs Conversational AI.
type Provider struct {
	apiKey  string
	agentID string
	baseURL string
}

// New creates a Provider for the given API key and agent.
func New(apiKey, agentID string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		agentID: agentID,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// initiationMessage is the conversation_initiation_client_data payload.
type initiationMessage struct {
	Type             string            `json:"type"`
	ConversationCfg  *overrides        `json:"conversation_config_override,omitempty"`
	DynamicVariables map[string]any    `json:"dynamic_variables,omitempty"`
}

type overrides struct {
	Agent agentOverride `json:"agent"`
	TTS   *ttsOverride  `json:"tts,omitempty"`
}

type agentOverride struct {
	Prompt       *promptOverride `json:"prompt,omitempty"`
	FirstMessage string          `json:"first_message,omitempty"`
}

type promptOverride struct {
	Prompt string `json:"prompt"`
}

type ttsOverride struct {
	VoiceID string `json:"voice_id"`
}

// Start dials the agent endpoint and sends the initiation payload. The
// returned session stays live until End is called or the server closes.
func (p *Provider) Start(ctx context.Context, params conversation.Params) (conversation.Session, error) {
	wsURL := fmt.Sprintf("%s?agent_id=%s", p.baseURL, p.agentID)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"xi-api-key": []string{p.apiKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	init := initiationMessage{
		Type: "conversation_initiation_client_data",
		ConversationCfg: &overrides{
			Agent: agentOverride{
				FirstMessage: params.OpeningLine,
			},
		},
		DynamicVariables: params.Knowledge,
	}
	if params.InitialPrompt != "" {
		init.ConversationCfg.Agent.Prompt = &promptOverride{Prompt: params.InitialPrompt}
	}
	if params.VoiceID != "" {
		init.ConversationCfg.TTS = &ttsOverride{VoiceID: params.VoiceID}
	}

	payload, err := json.Marshal(init)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "marshal init failed")
		return nil, fmt.Errorf("elevenlabs: marshal init: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	if err := conn.Write(sessCtx, websocket.MessageText, payload); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "init write failed")
		return nil, fmt.Errorf("elevenlabs: send init: %w", err)
	}

	sess := &session{conn: conn, ctx: sessCtx, cancel: sessCancel}
	go sess.receiveLoop()

	return sess, nil
}

// session is one live conversation over a websocket.
type session struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// serverEvent covers the subset of server messages the session reacts to.
type serverEvent struct {
	Type string `json:"type"`
	Ping *struct {
		EventID int `json:"event_id"`
	} `json:"ping_event,omitempty"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

// receiveLoop drains server events, answering pings so the server keeps the
// session alive. It exits when the connection closes or End cancels the
// session context.
func (s *session) receiveLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Type == "ping" && ev.Ping != nil {
			pong, err := json.Marshal(pongMessage{Type: "pong", EventID: ev.Ping.EventID})
			if err != nil {
				continue
			}
			if err := s.conn.Write(s.ctx, websocket.MessageText, pong); err != nil {
				return
			}
		}
	}
}

// End closes the websocket. Safe to call more than once even though the
// engine already deduplicates teardown.
func (s *session) End() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.conn.Close(websocket.StatusNormalClosure, "session ended")
	})
	return s.closeErr
}
