// Package collab is the collaboration rule engine: after a handler runs,
// rules inspect its shared data and may cascade execution to further
// handlers under one of four strategies.
package collab

import "time"

// =============================================================================
// RULES
// =============================================================================

// Priority orders rules when strategies need to break ties.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Predicate decides whether a rule should fire for the given shared data.
// Predicates must be idempotent against already-cascaded data: once the
// target has contributed its result key, the predicate must return false,
// otherwise cascades could cycle.
type Predicate func(shared map[string]any, intent, currentAgent string) bool

// Rule binds a predicate to a target handler.
type Rule struct {
	Name            string
	Priority        Priority
	Cost            int
	LatencyEstimate time.Duration
	TargetAgent     string
	ShouldExecute   Predicate
}

// Shared-data keys handlers publish for cascade decisions.
const (
	SharedKeyNotificationSchedule = "notificationSchedule"
	SharedKeyAppointmentDetails   = "appointmentDetails"
	SharedKeyReportSummary        = "reportSummary"
)

// NotificationToAppointmentRule cascades to the appointment handler when a
// notification handler published a schedule that looks appointment-bound.
func NotificationToAppointmentRule() Rule {
	return Rule{
		Name:            "notification_to_appointment",
		Priority:        PriorityHigh,
		Cost:            2,
		LatencyEstimate: 3 * time.Second,
		TargetAgent:     "appointment",
		ShouldExecute: func(shared map[string]any, intent, currentAgent string) bool {
			if currentAgent == "appointment" {
				return false
			}
			if _, done := shared[SharedKeyAppointmentDetails]; done {
				return false
			}
			_, ok := shared[SharedKeyNotificationSchedule]
			return ok
		},
	}
}

// AppointmentToNotificationRule cascades to the notification handler after
// a booking, so the user gets a reminder for the new appointment.
func AppointmentToNotificationRule() Rule {
	return Rule{
		Name:            "appointment_to_notification",
		Priority:        PriorityMedium,
		Cost:            1,
		LatencyEstimate: 2 * time.Second,
		TargetAgent:     "notification",
		ShouldExecute: func(shared map[string]any, intent, currentAgent string) bool {
			if currentAgent == "notification" {
				return false
			}
			if _, done := shared[SharedKeyNotificationSchedule]; done {
				return false
			}
			_, ok := shared[SharedKeyAppointmentDetails]
			return ok
		},
	}
}

// DefaultRules is the fixed, ordered rule list the engine evaluates.
func DefaultRules() []Rule {
	return []Rule{
		NotificationToAppointmentRule(),
		AppointmentToNotificationRule(),
	}
}
