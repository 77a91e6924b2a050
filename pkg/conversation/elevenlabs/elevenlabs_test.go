package elevenlabs_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ponderpaw/readalong/pkg/conversation"
	"github.com/ponderpaw/readalong/pkg/conversation/elevenlabs"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startConvAIServer launches a test WebSocket server. The handler receives
// the accepted conn; the server closes with the test.
func startConvAIServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("server unmarshal: %v", err)
	}
}

func TestStart_SendsInitiationPayload(t *testing.T) {
	t.Parallel()

	type initPayload struct {
		Type string `json:"type"`
		Cfg  struct {
			Agent struct {
				Prompt *struct {
					Prompt string `json:"prompt"`
				} `json:"prompt"`
				FirstMessage string `json:"first_message"`
			} `json:"agent"`
			TTS *struct {
				VoiceID string `json:"voice_id"`
			} `json:"tts"`
		} `json:"conversation_config_override"`
		Vars map[string]any `json:"dynamic_variables"`
	}

	got := make(chan initPayload, 1)
	var gotHeader, gotAgent string
	srv := startConvAIServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotHeader = r.Header.Get("xi-api-key")
		gotAgent = r.URL.Query().Get("agent_id")
		var init initPayload
		readJSON(t, conn, &init)
		got <- init
		// Keep the conn open until the client hangs up.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		conn.Read(ctx)
	})

	p := elevenlabs.New("key-123", "agent-42", elevenlabs.WithBaseURL(wsURL(srv)))
	sess, err := p.Start(context.Background(), conversation.Params{
		InitialPrompt: "Discuss the wolf",
		OpeningLine:   "What did you think?",
		VoiceID:       "voice-7",
		Knowledge:     map[string]any{"book": "The Big Bad Wolf"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.End()

	select {
	case init := <-got:
		if init.Type != "conversation_initiation_client_data" {
			t.Errorf("init type = %q", init.Type)
		}
		if init.Cfg.Agent.Prompt == nil || init.Cfg.Agent.Prompt.Prompt != "Discuss the wolf" {
			t.Errorf("prompt override = %+v, want Discuss the wolf", init.Cfg.Agent.Prompt)
		}
		if init.Cfg.Agent.FirstMessage != "What did you think?" {
			t.Errorf("first message = %q", init.Cfg.Agent.FirstMessage)
		}
		if init.Cfg.TTS == nil || init.Cfg.TTS.VoiceID != "voice-7" {
			t.Errorf("tts override = %+v, want voice-7", init.Cfg.TTS)
		}
		if init.Vars["book"] != "The Big Bad Wolf" {
			t.Errorf("dynamic variables = %v", init.Vars)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the initiation payload")
	}

	if gotHeader != "key-123" {
		t.Errorf("xi-api-key header = %q, want key-123", gotHeader)
	}
	if gotAgent != "agent-42" {
		t.Errorf("agent_id query = %q, want agent-42", gotAgent)
	}
}

func TestSession_AnswersPingWithPong(t *testing.T) {
	t.Parallel()

	pong := make(chan int, 1)
	srv := startConvAIServer(t, func(conn *websocket.Conn, r *http.Request) {
		// Drain the init payload first.
		var init map[string]any
		readJSON(t, conn, &init)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		ping := []byte(`{"type":"ping","ping_event":{"event_id":17}}`)
		if err := conn.Write(ctx, websocket.MessageText, ping); err != nil {
			t.Errorf("server write ping: %v", err)
			return
		}

		var reply struct {
			Type    string `json:"type"`
			EventID int    `json:"event_id"`
		}
		readJSON(t, conn, &reply)
		if reply.Type == "pong" {
			pong <- reply.EventID
		}
	})

	p := elevenlabs.New("key", "agent", elevenlabs.WithBaseURL(wsURL(srv)))
	sess, err := p.Start(context.Background(), conversation.Params{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.End()

	select {
	case id := <-pong:
		if id != 17 {
			t.Errorf("pong event_id = %d, want 17", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session never answered the ping")
	}
}

func TestSession_EndIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := startConvAIServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		conn.Read(ctx)
		conn.Read(ctx)
	})

	p := elevenlabs.New("key", "agent", elevenlabs.WithBaseURL(wsURL(srv)))
	sess, err := p.Start(context.Background(), conversation.Params{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := sess.End()
	second := sess.End()
	if second != first {
		t.Errorf("second End = %v, want same result as first (%v)", second, first)
	}
}

func TestStart_DialFailure(t *testing.T) {
	t.Parallel()

	p := elevenlabs.New("key", "agent", elevenlabs.WithBaseURL("ws://127.0.0.1:1"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.Start(ctx, conversation.Params{}); err == nil {
		t.Fatal("Start against closed port = nil error, want error")
	}
}
