package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/llm"
)

const assistantSystemPrompt = `You are a compassionate voice assistant helping users log their migraine episodes. Your role is to:

1. Acknowledge what the user has shared
2. Ask follow-up questions ONLY for missing information
3. Be empathetic - users are in pain
4. ALWAYS respond in English, even if the user speaks another language
5. If a field value is provisional/low-confidence, confirm it succinctly before moving on

REQUIRED FIELDS TO COLLECT:
- start_time: When the migraine started (date and/or time)
- triggers: What might have caused it (stress, food, weather, sleep, hormones, etc.)
- intensity: Pain level on a scale of 1-10
- pain_location: Where the pain is located (left temple, right temple, forehead, back of head, whole head, etc.)
- symptoms: Other symptoms (nausea, vomiting, aura, light sensitivity, sound sensitivity, etc.)

IMPORTANT RULES:
1. ONLY ask about fields listed in "Still missing" - never re-ask about collected fields
2. Ask about ONE missing field at a time
3. Keep responses short (1-2 sentences max)
4. If all fields are collected, thank the user and confirm you're saving the episode
5. start_time, triggers and symptoms are asked ONCE. If the user replies but nothing is detected, the system fills a default.

You MUST respond with valid JSON in this exact format:
{
    "assistant_response": "Your spoken response to the user",
    "is_followup_required": true,
    "next_question_field": "the_field_key_you_are_asking_about"
}

FIELD KEYS for next_question_field: "start_time", "triggers", "intensity", "pain_location", "symptoms". Use null when nothing is missing.

Remember: Your response will be spoken aloud, so keep it natural and conversational.`

const assistantUserTemplate = `Here is the current migraine log context:
%s

If a field is marked provisional, confirm it briefly before asking about other missing fields.

User's transcript:
"""%s"""

Based on the missing/provisional fields, generate your follow-up question. Remember to respond in JSON format.`

// Assistant generates follow-up questions with an LLM and falls back to the
// fixed question table whenever the model is unavailable or unusable.
type Assistant struct {
	provider  llm.Provider
	threshold float64
	logger    *slog.Logger
}

// NewAssistant creates an Assistant. A nil provider always uses the fallback
// table; a nil logger means slog.Default().
func NewAssistant(provider llm.Provider, threshold float64, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Assistant{provider: provider, threshold: threshold, logger: logger}
}

// Threshold returns the confirmation threshold.
func (a *Assistant) Threshold() float64 { return a.threshold }

type assistantReply struct {
	AssistantResponse  *string `json:"assistant_response"`
	IsFollowupRequired *bool   `json:"is_followup_required"`
	NextQuestionField  *string `json:"next_question_field"`
}

// Next produces the reply for a turn. It never fails; every model problem
// degrades to FallbackTurn.
func (a *Assistant) Next(ctx context.Context, transcript string, p extract.Payload) Turn {
	c := BuildContext(p, a.threshold)
	turn := a.next(ctx, transcript, p, c)
	turn.Provisional = c.Provisional
	return turn
}

func (a *Assistant) next(ctx context.Context, transcript string, p extract.Payload, c Context) Turn {
	if a.provider == nil {
		return FallbackTurn(c.Missing)
	}

	prompt := fmt.Sprintf(assistantUserTemplate, RenderContext(c, p), transcript)
	raw, err := a.provider.Complete(ctx, prompt, llm.CompletionOpts{
		MaxTokens:   180,
		Temperature: 0.6,
		Format:      "json",
		System:      assistantSystemPrompt,
	})
	if err != nil {
		a.logger.Warn("dialogue completion failed", "provider", a.provider.Name(), "error", err)
		return FallbackTurn(c.Missing)
	}

	content := llm.StripCodeFence(raw)
	if content == "" {
		a.logger.Warn("empty dialogue response", "provider", a.provider.Name())
		return FallbackTurn(c.Missing)
	}
	var reply assistantReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		a.logger.Warn("invalid dialogue JSON", "content", llm.Truncate(content, 300), "error", err)
		return FallbackTurn(c.Missing)
	}

	response := ""
	if reply.AssistantResponse != nil {
		response = strings.TrimSpace(*reply.AssistantResponse)
	}
	if response == "" && c.FollowupRequired() {
		a.logger.Warn("dialogue response missing assistant_response", "content", llm.Truncate(content, 300))
		return FallbackTurn(c.Missing)
	}

	turn := Turn{AssistantResponse: response, IsFollowupRequired: c.FollowupRequired()}
	if reply.IsFollowupRequired != nil {
		turn.IsFollowupRequired = *reply.IsFollowupRequired
	}
	switch {
	case reply.NextQuestionField != nil:
		turn.NextQuestionField = *reply.NextQuestionField
	case len(c.Missing) > 0:
		turn.NextQuestionField = c.Missing[0]
	}
	return turn
}
