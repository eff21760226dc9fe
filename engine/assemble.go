package engine

import (
	"fmt"
	"strings"

	"github.com/opsagent/memorymesh/compression"
	"github.com/opsagent/memorymesh/memory"
	"github.com/opsagent/memorymesh/model"
)

const systemPrompt = `You are a helpful assistant with long-term memory.
Context blocks may precede the conversation: remembered facts about the user,
their profile, a summary of a previous session, a list of available skills,
expanded skill instructions and a rolling summary of earlier messages in this
conversation. Treat them as
your own knowledge; use them naturally and never mention the blocks
themselves. When skill instructions are present, follow them for the task at
hand.`

// assemble builds the completion request for the response call: fixed system
// instructions, then the retrieved context blocks, then the packed history.
// The skills index summary is always resident; every other block is omitted
// when empty.
func (m *Manager) assemble(ret retrieval, pack compression.PackResult, message string) model.CompletionRequest {
	var blocks []string

	if index := m.skills.IndexContext(); index != "" {
		blocks = append(blocks, index)
	}
	if ret.skillBodies != "" {
		blocks = append(blocks, ret.skillBodies)
	}
	if mems := memory.FormatContext(ret.memories); mems != "" {
		blocks = append(blocks, mems)
	}
	if ret.profile != nil {
		if rendered := ret.profile.Render(); rendered != "" {
			blocks = append(blocks, "<user_profile>\n"+rendered+"\n</user_profile>")
		}
	}
	if ret.episodic != "" {
		blocks = append(blocks, "<previous_session>\n"+ret.episodic+"\n</previous_session>")
	}
	if pack.Stats.Pruned && pack.Summary != "" {
		blocks = append(blocks, "<conversation_summary>\n"+pack.Summary+"\n</conversation_summary>")
	}
	if history := renderHistory(pack); history != "" {
		blocks = append(blocks, history)
	}

	return model.CompletionRequest{
		System:  systemPrompt,
		Context: strings.Join(blocks, "\n\n"),
		Task:    message,
	}
}

// renderHistory formats the packed messages minus the incoming user message,
// which travels separately as the task.
func renderHistory(pack compression.PackResult) string {
	msgs := pack.Messages
	if len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	if len(msgs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<conversation>\n")
	for _, msg := range msgs {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	sb.WriteString("</conversation>")
	return sb.String()
}
