package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/llm"
	"github.com/careloop-ai/assistant-core/typeutil"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classification is the router's verdict for one message.
type Classification struct {
	Intent           string         `json:"intent"`
	Entities         map[string]any `json:"entities,omitempty"`
	UsageTotalTokens int            `json:"usage_total_tokens,omitempty"`
	MultiAgent       bool           `json:"multi_agent,omitempty"`
	AdditionalAgents []string       `json:"additional_agents,omitempty"`
	Tier             string         `json:"tier,omitempty"` // which tier produced the verdict
}

// Classifier runs the tiered intent classification.
type Classifier struct {
	provider    llm.Provider
	logger      agent.Logger
	temperature float64
}

// NewClassifier creates a Classifier. Logger may be nil; temperature should
// be low (classification wants determinism).
func NewClassifier(provider llm.Provider, logger agent.Logger, temperature float64) *Classifier {
	if logger == nil {
		logger = agent.NopLogger{}
	}
	return &Classifier{provider: provider, logger: logger, temperature: temperature}
}

// =============================================================================
// PROMPTS
// =============================================================================

const multiTargetPrompt = `You route user requests to assistant handlers.

Handlers:
- notification: schedule, change or cancel SMS reminders and notifications
- appointment: book or manage calendar appointments
- report: summarize stored health reports
- advice: general conversation and advice

Return ONLY a JSON array of handler names ranked by priority for the
request. Combined requests list every relevant handler.

Examples:
"book a GP appointment and text me a reminder" -> ["appointment","notification"]
"remind me to take my pills at 8pm" -> ["notification"]
"summarize my last blood test report" -> ["report"]
"what should I eat before a fasting test?" -> ["advice"]

Request: %q
JSON array:`

const hybridPrompt = `Classify the request into exactly one intent label.

Labels: %s

Return ONLY a JSON object:
{"intent": "<label>", "confidence": <0..1>, "ranked": [{"intent": "<label>", "confidence": <0..1>}], "entities": {}}

Request: %q
JSON:`

const simplePrompt = `Classify the request. Reply with exactly one label from:
%s

Request: %q
Label:`

// =============================================================================
// TIERED CLASSIFY
// =============================================================================

// Classify runs the tiers in priority order, short-circuiting on the first
// success. It never returns an error; every failure path degrades to the
// default intent.
func (c *Classifier) Classify(ctx context.Context, message string) (cls Classification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("classification_panic", "panic", fmt.Sprint(r))
			cls = Classification{Intent: DefaultIntent, Tier: "default"}
		}
	}()

	usage := 0

	if out, ok := c.classifyMultiTarget(ctx, message, &usage); ok {
		out.UsageTotalTokens = usage
		c.logger.Debug("classification_done", "tier", out.Tier, "intent", out.Intent, "multi_agent", out.MultiAgent)
		return out
	}

	if intent, ok := matchFastPath(message); ok {
		c.logger.Debug("classification_done", "tier", "fast_path", "intent", intent)
		return Classification{Intent: intent, UsageTotalTokens: usage, Tier: "fast_path"}
	}

	if out, ok := c.classifyHybrid(ctx, message, &usage); ok {
		out.UsageTotalTokens = usage
		c.logger.Debug("classification_done", "tier", out.Tier, "intent", out.Intent)
		return out
	}

	if intent, ok := c.classifySimple(ctx, message, &usage); ok {
		c.logger.Debug("classification_done", "tier", "simple", "intent", intent)
		return Classification{Intent: intent, UsageTotalTokens: usage, Tier: "simple"}
	}

	c.logger.Warn("classification_exhausted", "message_length", len(message))
	return Classification{Intent: DefaultIntent, UsageTotalTokens: usage, Tier: "default"}
}

// classifyMultiTarget asks for a ranked handler array. The first handler
// becomes the route; the rest are recorded as additional agents, which
// suppresses the collaboration stage downstream.
func (c *Classifier) classifyMultiTarget(ctx context.Context, message string, usage *int) (Classification, bool) {
	text, ok := c.generate(ctx, fmt.Sprintf(multiTargetPrompt, message), usage)
	if !ok {
		return Classification{}, false
	}

	arr, ok := parseJSONArray(text)
	if !ok || len(arr) == 0 {
		return Classification{}, false
	}

	var handlers []string
	seen := map[string]struct{}{}
	for _, item := range arr {
		name, ok := typeutil.String(item)
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[name]; dup {
			continue
		}
		if _, known := IntentForHandler(name); known {
			seen[name] = struct{}{}
			handlers = append(handlers, name)
		}
	}
	if len(handlers) == 0 {
		return Classification{}, false
	}

	intent, _ := IntentForHandler(handlers[0])
	return Classification{
		Intent:           intent,
		MultiAgent:       len(handlers) > 1,
		AdditionalAgents: handlers[1:],
		Tier:             "multi_target",
	}, true
}

// classifyHybrid asks for a single label with confidence. A parseable
// response always succeeds; unknown labels collapse to the default intent.
func (c *Classifier) classifyHybrid(ctx context.Context, message string, usage *int) (Classification, bool) {
	prompt := fmt.Sprintf(hybridPrompt, strings.Join(KnownIntents(), ", "), message)
	text, ok := c.generate(ctx, prompt, usage)
	if !ok {
		return Classification{}, false
	}

	obj, ok := parseJSONObject(text)
	if !ok {
		return Classification{}, false
	}

	intent := strings.ToLower(typeutil.StringDefault(obj["intent"], ""))
	if !KnownIntent(intent) {
		intent = DefaultIntent
	}

	entities, _ := typeutil.Map(obj["entities"])
	return Classification{Intent: intent, Entities: entities, Tier: "hybrid"}, true
}

// classifySimple is the last-resort minimal prompt over the closed label set.
func (c *Classifier) classifySimple(ctx context.Context, message string, usage *int) (string, bool) {
	prompt := fmt.Sprintf(simplePrompt, strings.Join(KnownIntents(), "\n"), message)
	text, ok := c.generate(ctx, prompt, usage)
	if !ok {
		return "", false
	}

	label := strings.ToLower(strings.Trim(strings.TrimSpace(text), "\"'`"))
	for _, known := range KnownIntents() {
		if label == known || strings.Contains(label, known) {
			return known, true
		}
	}
	return "", false
}

func (c *Classifier) generate(ctx context.Context, prompt string, usage *int) (string, bool) {
	if c.provider == nil {
		return "", false
	}
	res, err := llm.GenerateWithOptionalUsage(ctx, c.provider, prompt, llm.Options{
		Temperature: llm.Temp(c.temperature),
	})
	if err != nil {
		c.logger.Warn("classification_llm_error", "error", err.Error())
		return "", false
	}
	*usage += res.Usage.TotalTokens
	return res.Text, true
}
