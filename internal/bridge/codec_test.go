package bridge_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ponderpaw/readalong/internal/bridge"
)

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	type payload struct {
		Page int `json:"page"`
	}

	frame, err := bridge.Encode("page.completed", payload{Page: 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, err := bridge.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Topic != "page.completed" {
		t.Errorf("topic = %q, want page.completed", env.Topic)
	}

	var got payload
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if got.Page != 3 {
		t.Errorf("page = %d, want 3", got.Page)
	}
}

func TestCodec_RoundTripUnicode(t *testing.T) {
	t.Parallel()

	type payload struct {
		Text string `json:"text"`
	}
	want := "Es war einmal… ein Wolf 🐺"

	frame, err := bridge.Encode("caption.updated", payload{Text: want})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// The wire frame must be plain ASCII so WebView hosts can atob it.
	for i := 0; i < len(frame); i++ {
		if frame[i] > 127 {
			t.Fatalf("frame contains non-ASCII byte at %d", i)
		}
	}

	env, err := bridge.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var got payload
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
}

func TestCodec_EncodeWithoutData(t *testing.T) {
	t.Parallel()

	frame, err := bridge.Encode("book.ended", nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := bridge.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Topic != "book.ended" {
		t.Errorf("topic = %q, want book.ended", env.Topic)
	}
	if len(env.Data) != 0 {
		t.Errorf("data = %s, want empty", env.Data)
	}
}

func TestCodec_DecodeHostEncodedFrame(t *testing.T) {
	t.Parallel()

	// Mimic the host side: percent-encode the JSON, then base64 it.
	raw := `{"topic":"skip"}`
	frame := base64.StdEncoding.EncodeToString([]byte(percentEncode(raw)))

	env, err := bridge.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Topic != "skip" {
		t.Errorf("topic = %q, want skip", env.Topic)
	}
}

func TestCodec_DecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame string
	}{
		{"not base64", "!!not-base64!!"},
		{"base64 of non json", base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"missing topic", base64.StdEncoding.EncodeToString([]byte(percentEncode(`{"data":{}}`)))},
		{"truncated escape", base64.StdEncoding.EncodeToString([]byte("%7"))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := bridge.Decode(tc.frame); err == nil {
				t.Errorf("Decode(%q) = nil error, want error", tc.frame)
			}
		})
	}
}

func TestCodec_DecodeTrimsWhitespace(t *testing.T) {
	t.Parallel()

	frame, err := bridge.Encode("stop", nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := bridge.Decode("  " + frame + "\n")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Topic != "stop" {
		t.Errorf("topic = %q, want stop", env.Topic)
	}
}

// percentEncode mirrors JavaScript's encodeURIComponent closely enough for
// the ASCII JSON used in these tests.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '!', c == '~', c == '*', c == '\'', c == '(', c == ')':
			b.WriteByte(c)
		default:
			const hex = "0123456789ABCDEF"
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
		}
	}
	return b.String()
}
