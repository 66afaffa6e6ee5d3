// Package router classifies inbound messages into intents and resolves
// them to handler routes.
//
// Classification is tiered: an LLM multi-target pass, a deterministic
// keyword fast path, a hybrid LLM pass with confidence, and a minimal
// single-label prompt. Every tier degrades to the next; classification
// never returns an error to the caller.
package router

import "strings"

// =============================================================================
// INTENTS AND ROUTES
// =============================================================================

// Known intents. Unknown intent strings resolve to the default route.
const (
	IntentNotificationSchedule = "notification.schedule"
	IntentAppointmentBook      = "appointment.book"
	IntentReportSummary        = "report.summary"
	IntentGeneralAdvice        = "general.advice"
)

// Handler route names. These match registry registrations.
const (
	RouteNotification = "notification"
	RouteAppointment  = "appointment"
	RouteReport       = "report"
	RouteAdvice       = "advice"
)

// DefaultIntent is the terminal fallback of every classification tier.
const DefaultIntent = IntentGeneralAdvice

var routeTable = map[string]string{
	IntentNotificationSchedule: RouteNotification,
	IntentAppointmentBook:      RouteAppointment,
	IntentReportSummary:        RouteReport,
	IntentGeneralAdvice:        RouteAdvice,
}

// intentByHandler is the inverse mapping used when the LLM names handlers
// rather than intents.
var intentByHandler = map[string]string{
	RouteNotification: IntentNotificationSchedule,
	RouteAppointment:  IntentAppointmentBook,
	RouteReport:       IntentReportSummary,
	RouteAdvice:       IntentGeneralAdvice,
}

// ResolveRoute maps an intent to its handler name. Total: unknown intents
// resolve to the default conversational route.
func ResolveRoute(intent string) string {
	if route, ok := routeTable[intent]; ok {
		return route
	}
	return RouteAdvice
}

// KnownIntent reports whether the label belongs to the closed intent set.
func KnownIntent(label string) bool {
	_, ok := routeTable[label]
	return ok
}

// IntentForHandler maps a handler name to its canonical intent.
func IntentForHandler(handler string) (string, bool) {
	intent, ok := intentByHandler[strings.ToLower(strings.TrimSpace(handler))]
	return intent, ok
}

// KnownIntents returns the closed label set in stable order.
func KnownIntents() []string {
	return []string{
		IntentNotificationSchedule,
		IntentAppointmentBook,
		IntentReportSummary,
		IntentGeneralAdvice,
	}
}
