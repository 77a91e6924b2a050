package playbook

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// manifest mirrors the JSON layout of a playbook document. Action objects are
// kept raw so unknown fields and unknown types survive decoding.
type manifest struct {
	Meta      map[string]any             `json:"meta"`
	Knowledge map[string]any             `json:"knowledge"`
	Playbook  *manifestPlaybook          `json:"playbook"`
	Actions   map[string]json.RawMessage `json:"actions"`
}

type manifestPlaybook struct {
	Pages []json.RawMessage `json:"pages"`
}

type manifestPage struct {
	PageNumber int               `json:"pageNumber"`
	Actions    []json.RawMessage `json:"actions"`
}

// manifestAction is the superset of recognized action-object fields across
// all kinds. Unrecognized fields are ignored; unrecognized types are kept.
type manifestAction struct {
	Type     string            `json:"type"`
	Audio    string            `json:"audio"`
	Content  string            `json:"content"`
	Subtitle *manifestSubtitle `json:"subtitle"`

	MaxTime    int    `json:"max_time"`
	MaxTimeAlt int    `json:"maxTime"`
	Prompt     string `json:"prompt"`
	Opening    string `json:"opening"`
	VoiceID    string `json:"voice_id"`

	Length  int              `json:"length"`
	Mode    string           `json:"mode"`
	Options []manifestOption `json:"options"`
	Success string           `json:"success"`
	Failure string           `json:"failure"`
}

type manifestSubtitle struct {
	Chars  []string  `json:"chars"`
	Timing []float64 `json:"timing"`
}

type manifestOption struct {
	Phrase    string   `json:"phrase"`
	Intent    string   `json:"intent"`
	Entities  []string `json:"entities"`
	Threshold float64  `json:"threshold"`
}

// Load reads and parses the playbook manifest at path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("playbook: open %q: %w", path, err)
	}
	defer f.Close()

	doc, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("playbook: parse %q: %w", path, err)
	}
	return doc, nil
}

// LoadFromReader decodes a playbook manifest from r.
//
// Only a structurally unparseable manifest produces an error. Semantic
// problems inside a parsed manifest — malformed pages, unrecognized action
// types, action objects missing required fields — degrade to empty pages or
// unknown actions with a warning, per the forward-progress policy: a loaded
// book must always be playable to its end.
func LoadFromReader(r io.Reader) (*Document, error) {
	var m manifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("playbook: decode manifest: %w", err)
	}
	if m.Playbook == nil {
		return nil, fmt.Errorf("playbook: manifest has no playbook section")
	}

	doc := &Document{
		Meta:            m.Meta,
		ActionsByKey:    make(map[string]ActionSpec),
		SharedKnowledge: m.Knowledge,
	}
	if doc.SharedKnowledge == nil {
		doc.SharedKnowledge = map[string]any{}
	}

	// Keyed action table (SDK manifest form). Inline page actions may still
	// add synthesized keys below.
	for key, raw := range m.Actions {
		doc.ActionsByKey[key] = decodeAction(key, raw)
	}

	for i, rawPage := range m.Playbook.Pages {
		var mp manifestPage
		if err := json.Unmarshal(rawPage, &mp); err != nil {
			slog.Warn("playbook: malformed page, treating as empty", "page", i+1, "error", err)
			doc.Pages = append(doc.Pages, Page{Index: i})
			continue
		}

		page := Page{Index: i}
		for j, rawAction := range mp.Actions {
			// A string entry references the keyed action table; an object
			// entry declares the action inline under a synthesized key.
			var key string
			if err := json.Unmarshal(rawAction, &key); err == nil {
				page.ActionKeys = append(page.ActionKeys, key)
				continue
			}

			key = fmt.Sprintf("p%da%d", i+1, j+1)
			doc.ActionsByKey[key] = decodeAction(key, rawAction)
			page.ActionKeys = append(page.ActionKeys, key)
		}
		doc.Pages = append(doc.Pages, page)
	}

	slog.Info("playbook loaded",
		"pages", len(doc.Pages),
		"actions", len(doc.ActionsByKey),
		"knowledge_keys", len(doc.SharedKnowledge),
	)
	return doc, nil
}

// decodeAction builds an ActionSpec from a raw action object. It never
// fails: anything it cannot make sense of becomes an unknown action.
func decodeAction(key string, raw json.RawMessage) ActionSpec {
	var ma manifestAction
	if err := json.Unmarshal(raw, &ma); err != nil {
		slog.Warn("playbook: malformed action object", "key", key, "error", err)
		return ActionSpec{Key: key, Kind: KindUnknown}
	}

	switch Kind(ma.Type) {
	case KindRead:
		if ma.Audio == "" && ma.Content == "" {
			slog.Warn("playbook: read action has neither audio nor content", "key", key)
			return ActionSpec{Key: key, Kind: KindUnknown, RawType: ma.Type}
		}
		return ActionSpec{Key: key, Kind: KindRead, Read: &ReadSpec{
			AudioKey:   ma.Audio,
			SpokenText: ma.Content,
			Subtitle:   decodeSubtitle(key, ma.Subtitle),
		}}

	case KindAgent:
		maxTime := ma.MaxTime
		if maxTime == 0 {
			maxTime = ma.MaxTimeAlt
		}
		if maxTime <= 0 {
			slog.Warn("playbook: agent action missing max_time", "key", key)
			return ActionSpec{Key: key, Kind: KindUnknown, RawType: ma.Type}
		}
		return ActionSpec{Key: key, Kind: KindAgent, Agent: &AgentSpec{
			MaxDuration:   time.Duration(maxTime) * time.Second,
			InitialPrompt: ma.Prompt,
			OpeningLine:   ma.Opening,
			VoiceID:       ma.VoiceID,
		}}

	case KindVoice:
		spec := &VoiceSpec{
			Mode:             VoiceMode(ma.Mode),
			WindowDuration:   time.Duration(ma.Length) * time.Second,
			SuccessActionKey: ma.Success,
			FailureActionKey: ma.Failure,
		}
		if spec.Mode == "" {
			spec.Mode = VoiceModeDefault
		}
		for _, o := range ma.Options {
			spec.Options = append(spec.Options, VoiceOption{
				Phrase:    o.Phrase,
				Intent:    o.Intent,
				Entities:  o.Entities,
				Threshold: o.Threshold,
			})
		}
		return ActionSpec{Key: key, Kind: KindVoice, Voice: spec}

	case KindWait:
		return ActionSpec{Key: key, Kind: KindWait, Wait: &WaitSpec{
			Duration: time.Duration(ma.Length) * time.Second,
		}}

	default:
		return ActionSpec{Key: key, Kind: KindUnknown, RawType: ma.Type}
	}
}

// decodeSubtitle validates the chars/timing pairing. A mismatched track is
// dropped rather than failing the read action that carries it.
func decodeSubtitle(key string, ms *manifestSubtitle) *SubtitleTrack {
	if ms == nil {
		return nil
	}
	if len(ms.Chars) != len(ms.Timing) {
		slog.Warn("playbook: subtitle track length mismatch, dropping track",
			"key", key,
			"chars", len(ms.Chars),
			"timings", len(ms.Timing),
		)
		return nil
	}
	track := &SubtitleTrack{
		Characters: ms.Chars,
		Timings:    make([]time.Duration, len(ms.Timing)),
	}
	for i, secs := range ms.Timing {
		track.Timings[i] = time.Duration(secs * float64(time.Second))
	}
	return track
}
