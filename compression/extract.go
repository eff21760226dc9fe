package compression

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/opsagent/memorymesh/core"
)

const extractSystem = `You extract durable information from one conversation turn.

Return a JSON object with exactly two keys:
  "memories": array of {"text": string, "type": string} objects. Each entry is
    a self-contained statement worth remembering across sessions. "type" is one
    of "fact", "preference", "constraint", "episodic". Do not record small
    talk, transient requests, or anything already covered by the known profile.
  "profile": object with optional keys "name" (string), "preferences" (object
    of string to string), "constraints" (array of strings), "facts" (array of
    strings). Include only fields the turn actually revealed about the user.

If the turn contains nothing durable, return {"memories": [], "profile": {}}.
Respond with JSON only, no prose and no code fences.`

// MemoryCandidate is one extracted statement proposed for long-term storage.
type MemoryCandidate struct {
	Text string          `json:"text"`
	Type core.MemoryType `json:"type"`
}

// Extraction is the parsed result of a memory extraction call.
type Extraction struct {
	Memories []MemoryCandidate
	Profile  core.ProfileUpdate
}

// Empty reports whether the extraction produced nothing to persist.
func (x Extraction) Empty() bool {
	return len(x.Memories) == 0 && x.Profile.IsEmpty()
}

type extractPayload struct {
	Memories []struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"memories"`
	Profile core.ProfileUpdate `json:"profile"`
}

// ExtractMemories asks the model what, if anything, from the completed turn
// should be remembered. One completion call covers both semantic memories and
// profile updates. Model output that cannot be parsed yields an empty
// extraction, never an error: losing one turn's memories is preferable to
// failing the turn.
func (e *Engine) ExtractMemories(ctx context.Context, userMsg, assistantMsg string, profile *core.UserProfile) (Extraction, error) {
	var sb strings.Builder
	if profile != nil && !profile.IsEmpty() {
		sb.WriteString("Known profile:\n")
		sb.WriteString(profile.Render())
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "Turn:\nuser: %s\nassistant: %s\n", userMsg, assistantMsg)

	out, err := e.completer.Complete(ctx, completionRequest(extractSystem, sb.String(), "Extract memories and profile updates as JSON."))
	if err != nil {
		return Extraction{}, err
	}

	payload, ok := parseExtraction(out)
	if !ok {
		e.logger.Warn("unparseable extraction output, dropping", "output_len", len(out))
		return Extraction{}, nil
	}

	result := Extraction{Profile: payload.Profile}
	for _, m := range payload.Memories {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		memType, err := core.ParseMemoryType(m.Type)
		if err != nil {
			e.logger.Debug("dropping memory with unknown type", "type", m.Type)
			continue
		}
		result.Memories = append(result.Memories, MemoryCandidate{Text: text, Type: memType})
	}
	return result, nil
}

// parseExtraction tolerates the ways models wrap JSON: code fences, leading
// prose, trailing commentary. It parses the outermost object it can find.
func parseExtraction(out string) (extractPayload, bool) {
	var payload extractPayload
	raw := stripFences(out)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return payload, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return payload, false
	}
	return payload, true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
