package chat

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/clawd-gateway/pkg/llm"
)

const userLabel = "User"

// DefaultSystemPrompt is the persona used when no override is configured.
func DefaultSystemPrompt(botName string) string {
	return fmt.Sprintf("You are %s, an intelligent coding assistant. Help users with programming questions, debugging, and software design. Be concise and precise, and include working code examples where they help.", botName)
}

// PromptBuilder renders session history into generation requests and cleans
// up raw model output for delivery.
type PromptBuilder struct {
	botName      string
	systemPrompt string
}

func NewPromptBuilder(botName, systemPrompt string) *PromptBuilder {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt(botName)
	}
	return &PromptBuilder{botName: botName, systemPrompt: systemPrompt}
}

func (b *PromptBuilder) BotName() string { return b.botName }

// BuildRequest assembles a blocking generation request from the user message
// and a history snapshot. With empty history the prompt is the bare message;
// otherwise the rendered history followed by a blank line and the new turn.
func (b *PromptBuilder) BuildRequest(userMessage string, history []Message, maxNewTokens int) llm.Request {
	req := llm.DefaultRequest()
	req.SystemPrompt = b.systemPrompt
	if maxNewTokens > 0 {
		req.MaxNewTokens = maxNewTokens
	}
	rendered := b.formatHistory(history)
	if rendered == "" {
		req.Prompt = userMessage
	} else {
		req.Prompt = rendered + "\n\n" + userLabel + ": " + userMessage
	}
	return req
}

func (b *PromptBuilder) BuildStreamingRequest(userMessage string, history []Message, maxNewTokens int) llm.Request {
	req := b.BuildRequest(userMessage, history, maxNewTokens)
	req.Stream = true
	return req
}

// formatHistory renders non-system turns as "<Label>: <content>" lines. The
// assistant label is the bot name so replayed history matches what the model
// emitted.
func (b *PromptBuilder) formatHistory(history []Message) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			lines = append(lines, userLabel+": "+msg.Content)
		case RoleAssistant:
			lines = append(lines, b.botName+": "+msg.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// CleanResponse trims the raw model output and strips the first matching
// self-labelling prefix models tend to emit.
func (b *PromptBuilder) CleanResponse(raw string) string {
	cleaned := strings.TrimSpace(raw)
	for _, prefix := range []string{b.botName + ":", "Assistant:", "### Response:"} {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
			break
		}
	}
	return cleaned
}
