package bridge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the wire frame exchanged with hosts: a topic string plus an
// opaque JSON payload. Events flow out with event-kind topics; commands flow
// in with command topics.
type Envelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode serializes an envelope to the host wire format:
// base64(percent-encoded JSON). The percent-encoding step keeps the base64
// input ASCII so embedded WebView hosts can decode it with their native
// string atob/decodeURIComponent pair.
func Encode(topic string, data any) (string, error) {
	env := Envelope{Topic: topic}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("bridge: marshal %q data: %w", topic, err)
		}
		env.Data = raw
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("bridge: marshal envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString([]byte(escapeComponent(string(payload)))), nil
}

// Decode reverses [Encode].
func Decode(frame string) (Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(frame))
	if err != nil {
		return Envelope{}, fmt.Errorf("bridge: decode base64: %w", err)
	}
	payload, err := unescapeComponent(string(raw))
	if err != nil {
		return Envelope{}, fmt.Errorf("bridge: unescape payload: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, fmt.Errorf("bridge: unmarshal envelope: %w", err)
	}
	if env.Topic == "" {
		return Envelope{}, fmt.Errorf("bridge: envelope missing topic")
	}
	return env, nil
}

// escapeComponent percent-encodes s the way JavaScript's encodeURIComponent
// does: every byte outside the unreserved set becomes %XX.
func escapeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreservedComponent(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteString(fmt.Sprintf("%%%02X", c))
	}
	return b.String()
}

// unescapeComponent decodes %XX sequences. Unlike url.QueryUnescape it
// leaves '+' alone, matching decodeURIComponent.
func unescapeComponent(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated percent escape at offset %d", i)
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid percent escape %q at offset %d", s[i:i+3], i)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

// isUnreservedComponent reports whether encodeURIComponent leaves c as-is.
func isUnreservedComponent(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
