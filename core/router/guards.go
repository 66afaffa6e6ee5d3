package router

import (
	"fmt"
	"strings"

	"github.com/careloop-ai/assistant-core/core/agent"
)

// =============================================================================
// BLOCK GUARDS
// =============================================================================

// Decision is a guard verdict. A blocked decision stops dispatch and its
// reason becomes the user-facing reply.
type Decision struct {
	Blocked bool
	Reason  string
}

// Guard is a pure pre-dispatch check over the classified request.
type Guard func(intent string, entities map[string]any, metadata map[string]any) Decision

var placeholderTokens = map[string]struct{}{
	"":            {},
	"null":        {},
	"undefined":   {},
	"none":        {},
	"placeholder": {},
}

// AccessTokenGuard blocks appointment intents when the request carries no
// usable external access token.
func AccessTokenGuard(intent string, entities map[string]any, metadata map[string]any) Decision {
	if !strings.HasPrefix(intent, "appointment.") {
		return Decision{}
	}
	token, _ := metadata[agent.MetadataKeyAccessToken].(string)
	token = strings.ToLower(strings.TrimSpace(token))
	if _, bad := placeholderTokens[token]; bad {
		return Decision{
			Blocked: true,
			Reason:  "I can't access your calendar yet. Please connect your calendar account first, then ask me again.",
		}
	}
	return Decision{}
}

// DefaultGuards is the guard chain applied between classification and
// dispatch, in order.
var DefaultGuards = []Guard{AccessTokenGuard}

// RunGuards evaluates the chain and returns the first blocking decision.
func RunGuards(guards []Guard, intent string, entities map[string]any, metadata map[string]any) Decision {
	for i, g := range guards {
		if d := g(intent, entities, metadata); d.Blocked {
			if d.Reason == "" {
				d.Reason = fmt.Sprintf("request blocked by guard %d", i)
			}
			return d
		}
	}
	return Decision{}
}
