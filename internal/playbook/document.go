// Package playbook defines the in-memory representation of a story playbook:
// an ordered list of pages, each referencing an ordered list of actions, plus
// shared knowledge passed verbatim into AI conversation turns.
//
// A Document is constructed once from a parsed JSON manifest via [Load] or
// [LoadFromReader] and is immutable afterwards. Loading a new playbook means
// building a new Document, never mutating an existing one.
package playbook

import "time"

// Kind discriminates the action variants in the [ActionSpec] tagged union.
type Kind string

const (
	// KindRead plays a narration clip (file-backed audio or synthesized
	// speech) and drives caption updates.
	KindRead Kind = "read"

	// KindAgent runs a bounded AI conversation turn.
	KindAgent Kind = "agent"

	// KindVoice opens a voice-input window and branches on the recognition
	// outcome.
	KindVoice Kind = "asr"

	// KindWait pauses action progression for a fixed duration.
	KindWait Kind = "wait"

	// KindUnknown is the catch-all for unrecognized action types. Unknown
	// actions resolve after a short grace delay so malformed playbooks still
	// make forward progress.
	KindUnknown Kind = "unknown"
)

// VoiceMode selects the listen protocol for a voice-input action.
type VoiceMode string

const (
	// VoiceModeDefault opens a continuous listen window and picks the
	// highest-similarity recognition event.
	VoiceModeDefault VoiceMode = "default"

	// VoiceModeNLU matches buffered recognition events by intent and
	// required-entity subset instead of raw similarity.
	VoiceModeNLU VoiceMode = "nlu"

	// VoiceModeMulti keeps the window protocol of VoiceModeDefault but only
	// resolves once every configured option has been satisfied at least once.
	VoiceModeMulti VoiceMode = "multi"

	// VoiceModeWalkieTalkie waits for an explicit press signal, captures
	// until release (debounced), then evaluates like VoiceModeDefault.
	VoiceModeWalkieTalkie VoiceMode = "wt"
)

// Document is the parsed, validated playbook for one story session.
type Document struct {
	// Meta is the opaque manifest metadata (book id, language, ...) passed
	// through untouched for the host's benefit.
	Meta map[string]any

	// Pages is the ordered page sequence. Slice order is playback order and
	// defines the navigation index.
	Pages []Page

	// ActionsByKey maps action keys to their specs. Keys referenced by a
	// page but absent here are executed as unknown actions, never rejected.
	ActionsByKey map[string]ActionSpec

	// SharedKnowledge is an opaque string-to-JSON mapping handed verbatim to
	// every AI conversation turn.
	SharedKnowledge map[string]any
}

// TotalPages returns the number of pages in the document.
func (d *Document) TotalPages() int { return len(d.Pages) }

// PageAt returns the page at index and whether the index is in range.
func (d *Document) PageAt(index int) (Page, bool) {
	if index < 0 || index >= len(d.Pages) {
		return Page{}, false
	}
	return d.Pages[index], true
}

// Action resolves key against the action table. The second return reports
// whether the key exists; callers treat a miss as an unknown action.
func (d *Document) Action(key string) (ActionSpec, bool) {
	spec, ok := d.ActionsByKey[key]
	return spec, ok
}

// Page is one page of the playbook.
type Page struct {
	// Index is the zero-based position in [Document.Pages]. Index+1 is the
	// page number reported to the host.
	Index int

	// ActionKeys is the ordered list of action keys executed when the page
	// becomes active. Duplicates are legal and executed as written. Empty is
	// legal and completes the page immediately.
	ActionKeys []string
}

// Number returns the 1-based page number used in host-facing events.
func (p Page) Number() int { return p.Index + 1 }

// ActionSpec is the tagged union over action kinds. Exactly the variant
// matching Kind is populated; the others are zero. The kind of a spec never
// changes after construction.
type ActionSpec struct {
	// Key is the action's key in [Document.ActionsByKey]. Synthesized for
	// actions declared inline on a page.
	Key string

	Kind Kind

	Read  *ReadSpec
	Agent *AgentSpec
	Voice *VoiceSpec
	Wait  *WaitSpec

	// RawType preserves the manifest's type string for unknown kinds so the
	// grace-delay runner can log what it skipped.
	RawType string
}

// ReadSpec describes a narration read action. At least one of AudioKey or
// SpokenText is set; a spec with neither is downgraded to unknown at load.
type ReadSpec struct {
	// AudioKey locates the backing audio asset via the asset resolver.
	// Empty means the action is voiced from SpokenText instead.
	AudioKey string

	// SpokenText is the narration text. Used for caption display and, when
	// AudioKey is empty, as text-to-speech input.
	SpokenText string

	// Subtitle is the optional per-character timing track driving
	// progressive caption highlighting. Nil means the full text is emitted
	// as a single caption.
	Subtitle *SubtitleTrack
}

// SubtitleTrack pairs caption characters with their cue offsets from the
// start of playback. Characters and Timings always have equal length; tracks
// that fail that invariant are discarded at load time.
type SubtitleTrack struct {
	Characters []string
	Timings    []time.Duration
}

// Len returns the number of cues in the track.
func (t *SubtitleTrack) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Characters)
}

// AgentSpec describes a bounded AI conversation turn.
type AgentSpec struct {
	// MaxDuration bounds the turn's wall-clock time. The turn ends
	// unconditionally when it elapses.
	MaxDuration time.Duration

	// InitialPrompt is the system prompt for the conversation session.
	InitialPrompt string

	// OpeningLine is spoken by the agent when the session starts.
	OpeningLine string

	// VoiceID selects the agent voice at the conversation provider.
	VoiceID string
}

// VoiceSpec describes a voice-input action.
type VoiceSpec struct {
	Mode VoiceMode

	// WindowDuration is the listen window length. Zero means the configured
	// default applies.
	WindowDuration time.Duration

	// Options are the utterances (or intents) the window can satisfy. In
	// multi mode the action only resolves once every option has fired.
	Options []VoiceOption

	// SuccessActionKey optionally names an action to run after a recognized
	// outcome, before the voice action resolves.
	SuccessActionKey string

	// FailureActionKey optionally names an action to run after an
	// unrecognized cycle, before the retry (if any) starts.
	FailureActionKey string
}

// VoiceOption is one accepted utterance or intent for a voice-input action.
type VoiceOption struct {
	// Phrase is the expected utterance, compared by similarity in default
	// and multi modes.
	Phrase string

	// Intent is the expected NLU intent in nlu mode.
	Intent string

	// Entities are the entities that must all be present in a recognition
	// event for an nlu match (subset rule).
	Entities []string

	// Threshold is the minimum similarity for this option to be accepted.
	// Zero means the configured default threshold applies.
	Threshold float64
}

// WaitSpec describes a timed wait action.
type WaitSpec struct {
	Duration time.Duration
}
