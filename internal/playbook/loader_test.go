package playbook_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ponderpaw/readalong/internal/playbook"
)

func load(t *testing.T, manifest string) *playbook.Document {
	t.Helper()
	doc, err := playbook.LoadFromReader(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return doc
}

func TestLoad_KeyedActionTable(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"meta": {"title": "The Big Bad Wolf"},
		"actions": {
			"intro": {"type": "read", "audio": "audio/intro.mp3", "content": "Once upon a time"},
			"pick":  {"type": "asr", "mode": "default", "length": 5, "options": [{"phrase": "wolf", "threshold": 0.8}], "success": "cheer"},
			"cheer": {"type": "read", "content": "Well done!"},
			"chat":  {"type": "agent", "max_time": 60, "prompt": "Discuss the story", "opening": "What did you think?"},
			"hold":  {"type": "wait", "length": 2}
		},
		"playbook": {"pages": [
			{"pageNumber": 1, "actions": ["intro", "pick"]},
			{"pageNumber": 2, "actions": ["chat", "hold"]}
		]}
	}`)

	if doc.TotalPages() != 2 {
		t.Fatalf("TotalPages = %d, want 2", doc.TotalPages())
	}

	page, _ := doc.PageAt(0)
	if len(page.ActionKeys) != 2 || page.ActionKeys[0] != "intro" || page.ActionKeys[1] != "pick" {
		t.Errorf("page 1 actions = %v, want [intro pick]", page.ActionKeys)
	}

	read, ok := doc.Action("intro")
	if !ok || read.Kind != playbook.KindRead {
		t.Fatalf("intro = (%v, %v), want read action", read.Kind, ok)
	}
	if read.Read.AudioKey != "audio/intro.mp3" || read.Read.SpokenText != "Once upon a time" {
		t.Errorf("intro read spec = %+v", read.Read)
	}

	voice, _ := doc.Action("pick")
	if voice.Kind != playbook.KindVoice {
		t.Fatalf("pick kind = %v, want voice", voice.Kind)
	}
	if voice.Voice.Mode != playbook.VoiceModeDefault {
		t.Errorf("pick mode = %q, want default", voice.Voice.Mode)
	}
	if voice.Voice.WindowDuration != 5*time.Second {
		t.Errorf("pick window = %s, want 5s", voice.Voice.WindowDuration)
	}
	if len(voice.Voice.Options) != 1 || voice.Voice.Options[0].Phrase != "wolf" || voice.Voice.Options[0].Threshold != 0.8 {
		t.Errorf("pick options = %+v", voice.Voice.Options)
	}
	if voice.Voice.SuccessActionKey != "cheer" {
		t.Errorf("pick success = %q, want cheer", voice.Voice.SuccessActionKey)
	}

	agent, _ := doc.Action("chat")
	if agent.Kind != playbook.KindAgent {
		t.Fatalf("chat kind = %v, want agent", agent.Kind)
	}
	if agent.Agent.MaxDuration != 60*time.Second {
		t.Errorf("chat max duration = %s, want 60s", agent.Agent.MaxDuration)
	}

	wait, _ := doc.Action("hold")
	if wait.Kind != playbook.KindWait || wait.Wait.Duration != 2*time.Second {
		t.Errorf("hold = %+v, want 2s wait", wait)
	}
}

func TestLoad_InlineActionsGetSynthesizedKeys(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"playbook": {"pages": [
			{"pageNumber": 1, "actions": [
				{"type": "read", "content": "Hello"},
				{"type": "wait", "length": 1}
			]}
		]}
	}`)

	page, _ := doc.PageAt(0)
	if len(page.ActionKeys) != 2 {
		t.Fatalf("action keys = %v, want 2 entries", page.ActionKeys)
	}
	if page.ActionKeys[0] != "p1a1" || page.ActionKeys[1] != "p1a2" {
		t.Errorf("synthesized keys = %v, want [p1a1 p1a2]", page.ActionKeys)
	}
	if spec, ok := doc.Action("p1a1"); !ok || spec.Kind != playbook.KindRead {
		t.Errorf("p1a1 = (%+v, %v), want read action", spec, ok)
	}
}

func TestLoad_UnknownActionTypeIsKept(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"actions": {"mystery": {"type": "hologram", "intensity": 11}},
		"playbook": {"pages": [{"pageNumber": 1, "actions": ["mystery"]}]}
	}`)

	spec, ok := doc.Action("mystery")
	if !ok {
		t.Fatal("mystery action missing from table")
	}
	if spec.Kind != playbook.KindUnknown {
		t.Errorf("mystery kind = %v, want unknown", spec.Kind)
	}
	if spec.RawType != "hologram" {
		t.Errorf("mystery raw type = %q, want hologram", spec.RawType)
	}
}

func TestLoad_MalformedPageDegradesToEmpty(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"playbook": {"pages": [
			{"pageNumber": 1, "actions": {"not": "a list"}},
			{"pageNumber": 2, "actions": [{"type": "read", "content": "ok"}]}
		]}
	}`)

	if doc.TotalPages() != 2 {
		t.Fatalf("TotalPages = %d, want 2 (malformed page kept as empty)", doc.TotalPages())
	}
	page, _ := doc.PageAt(0)
	if len(page.ActionKeys) != 0 {
		t.Errorf("malformed page actions = %v, want none", page.ActionKeys)
	}
}

func TestLoad_ReadWithoutAudioOrContentIsUnknown(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"actions": {"silent": {"type": "read"}},
		"playbook": {"pages": [{"pageNumber": 1, "actions": ["silent"]}]}
	}`)

	spec, _ := doc.Action("silent")
	if spec.Kind != playbook.KindUnknown {
		t.Errorf("silent kind = %v, want unknown", spec.Kind)
	}
}

func TestLoad_AgentWithoutMaxTimeIsUnknown(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"actions": {"forever": {"type": "agent", "prompt": "talk"}},
		"playbook": {"pages": [{"pageNumber": 1, "actions": ["forever"]}]}
	}`)

	spec, _ := doc.Action("forever")
	if spec.Kind != playbook.KindUnknown {
		t.Errorf("forever kind = %v, want unknown (no duration bound)", spec.Kind)
	}
}

func TestLoad_AgentAcceptsCamelCaseMaxTime(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"actions": {"chat": {"type": "agent", "maxTime": 30}},
		"playbook": {"pages": [{"pageNumber": 1, "actions": ["chat"]}]}
	}`)

	spec, _ := doc.Action("chat")
	if spec.Kind != playbook.KindAgent {
		t.Fatalf("chat kind = %v, want agent", spec.Kind)
	}
	if spec.Agent.MaxDuration != 30*time.Second {
		t.Errorf("chat max duration = %s, want 30s", spec.Agent.MaxDuration)
	}
}

func TestLoad_SubtitleTrack(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"actions": {"intro": {"type": "read", "content": "Hi!", "subtitle": {
			"chars": ["H", "i", "!"],
			"timing": [0.0, 0.25, 0.5]
		}}},
		"playbook": {"pages": [{"pageNumber": 1, "actions": ["intro"]}]}
	}`)

	spec, _ := doc.Action("intro")
	track := spec.Read.Subtitle
	if track == nil {
		t.Fatal("subtitle track missing")
	}
	if track.Len() != 3 {
		t.Fatalf("track len = %d, want 3", track.Len())
	}
	if track.Timings[1] != 250*time.Millisecond {
		t.Errorf("timing[1] = %s, want 250ms", track.Timings[1])
	}
}

func TestLoad_MismatchedSubtitleTrackIsDropped(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"actions": {"intro": {"type": "read", "content": "Hi", "subtitle": {
			"chars": ["H", "i"],
			"timing": [0.0]
		}}},
		"playbook": {"pages": [{"pageNumber": 1, "actions": ["intro"]}]}
	}`)

	spec, _ := doc.Action("intro")
	if spec.Read.Subtitle != nil {
		t.Errorf("subtitle = %+v, want nil (mismatched track dropped)", spec.Read.Subtitle)
	}
}

func TestLoad_MissingPlaybookSectionFails(t *testing.T) {
	t.Parallel()

	if _, err := playbook.LoadFromReader(strings.NewReader(`{"meta": {}}`)); err == nil {
		t.Fatal("LoadFromReader(no playbook) = nil error, want error")
	}
}

func TestLoad_UnparseableManifestFails(t *testing.T) {
	t.Parallel()

	if _, err := playbook.LoadFromReader(strings.NewReader("not json")); err == nil {
		t.Fatal("LoadFromReader(garbage) = nil error, want error")
	}
}

func TestLoad_EmptyPageIsLegal(t *testing.T) {
	t.Parallel()

	doc := load(t, `{
		"playbook": {"pages": [{"pageNumber": 1, "actions": []}]}
	}`)

	page, ok := doc.PageAt(0)
	if !ok {
		t.Fatal("page 1 missing")
	}
	if len(page.ActionKeys) != 0 {
		t.Errorf("empty page actions = %v, want none", page.ActionKeys)
	}
}
