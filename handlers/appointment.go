package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/core/collab"
	"github.com/careloop-ai/assistant-core/schedule"
	"github.com/careloop-ai/assistant-core/typeutil"
)

// BookingRequest is what the handler asks the calendar to book.
type BookingRequest struct {
	Title    string
	StartsAt time.Time
	Notes    string
}

// Appointment is a booked calendar entry.
type Appointment struct {
	ID       string
	Title    string
	StartsAt time.Time
	Location string
}

// Calendar is the external booking collaborator. Implementations live
// outside the core; failures must be caught by this handler, never
// propagated as stage errors.
type Calendar interface {
	Book(ctx context.Context, accessToken string, req BookingRequest) (Appointment, error)
}

// AppointmentHandler books appointments through the calendar collaborator.
type AppointmentHandler struct {
	calendar Calendar
	logger   agent.Logger
	nowFn    func() time.Time
}

// NewAppointmentHandler creates the appointment handler. Logger may be nil.
func NewAppointmentHandler(calendar Calendar, logger agent.Logger) *AppointmentHandler {
	if logger == nil {
		logger = agent.NopLogger{}
	}
	return &AppointmentHandler{calendar: calendar, logger: logger, nowFn: time.Now}
}

func (h *AppointmentHandler) Name() string { return "appointment" }

func (h *AppointmentHandler) Capabilities() []string {
	return []string{"book calendar appointments", "reschedule appointments"}
}

// Process books an appointment. On a cascade it reuses the schedule the
// notification handler published; otherwise it infers the time from the
// message.
func (h *AppointmentHandler) Process(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
	if !input.HasValidAccessToken() {
		// The router guard normally blocks this earlier; cascaded
		// invocations reach the handler directly.
		return agent.AgentOutput{
			Reply: "I can't book appointments without a connected calendar account.",
			Actions: []agent.Action{{
				Type:    "book_appointment",
				Status:  agent.ActionStatusFailed,
				Payload: map[string]any{"reason": "missing_access_token"},
			}},
		}, nil
	}

	startsAt, fromCascade := h.resolveStart(input)

	booked, err := h.calendar.Book(ctx, input.AccessToken(), BookingRequest{
		Title:    "GP appointment",
		StartsAt: startsAt,
		Notes:    input.Message,
	})
	if err != nil {
		h.logger.Warn("calendar_booking_failed", "error", err.Error())
		return agent.AgentOutput{
			Reply: "The calendar service couldn't complete the booking. Please try again shortly.",
			Actions: []agent.Action{{
				Type:    "book_appointment",
				Status:  agent.ActionStatusFailed,
				Payload: map[string]any{"reason": "calendar_error", "details": err.Error()},
			}},
		}, nil
	}

	h.logger.Info("appointment_booked",
		"appointment_id", booked.ID,
		"starts_at", booked.StartsAt.Format(time.RFC3339),
		"from_cascade", fromCascade)

	return agent.AgentOutput{
		Reply: fmt.Sprintf("Booked: %s on %s.", booked.Title, booked.StartsAt.Format("Mon 2 Jan 15:04")),
		Actions: []agent.Action{{
			Type:   "book_appointment",
			Status: agent.ActionStatusDone,
			Payload: map[string]any{
				"appointment_id": booked.ID,
				"starts_at":      booked.StartsAt.Format(time.RFC3339),
			},
		}},
		SharedData: map[string]any{
			collab.SharedKeyAppointmentDetails: map[string]any{
				"appointment_id": booked.ID,
				"title":          booked.Title,
				"starts_at":      booked.StartsAt.Format(time.RFC3339),
				"location":       booked.Location,
			},
		},
	}, nil
}

// resolveStart picks the appointment time: a cascaded notification
// schedule wins, then natural-language inference over the message, then a
// next-morning default.
func (h *AppointmentHandler) resolveStart(input agent.AgentInput) (time.Time, bool) {
	now := h.nowFn()
	loc := now.Location()
	if tz := input.Timezone(); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	if sched, ok := typeutil.Map(input.SharedData[collab.SharedKeyNotificationSchedule]); ok {
		if iso := typeutil.StringDefault(sched["schedule_at"], ""); iso != "" {
			if at, err := time.Parse(time.RFC3339, iso); err == nil {
				return at.In(loc), true
			}
		}
	}

	if at, ok := schedule.InferScheduleTime(input.Message, now, loc); ok {
		return at, false
	}

	d := now.In(loc).AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, loc), false
}

var _ agent.Handler = (*AppointmentHandler)(nil)
