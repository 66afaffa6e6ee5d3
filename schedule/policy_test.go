package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicyContext(t *testing.T, utterance string) PolicyContext {
	t.Helper()
	loc := sydney(t)
	now := time.Date(2026, 7, 7, 14, 30, 0, 0, loc)
	return PolicyContext{
		Utterance:       utterance,
		DefaultTimezone: "Australia/Sydney",
		Now:             func() time.Time { return now },
	}
}

func TestEvaluatePolicyImmediate(t *testing.T) {
	intent := &ParsedIntent{
		Intent:     IntentNotify,
		Recipients: []string{"+61412345678"},
		Operation:  OperationCreate,
	}
	plan, err := EvaluatePolicy(intent, testPolicyContext(t, "Please notify +61412345678 now about checkup"))
	require.NoError(t, err)

	assert.Equal(t, "sms", plan.Channel)
	assert.Equal(t, []string{"+61412345678"}, plan.To)
	assert.NotEmpty(t, plan.Body)
	assert.Nil(t, plan.ScheduleAt, "no time phrase means immediate")
	assert.Nil(t, plan.Repeat)
	assert.NotEmpty(t, plan.IdempotencyKey)
	assert.Equal(t, 3, plan.Retry.Attempts)
	assert.Equal(t, 5*time.Second, plan.Retry.Backoff)
}

func TestEvaluatePolicyChannelCoercion(t *testing.T) {
	intent := &ParsedIntent{
		Channel:    "email",
		Recipients: []string{"+61412345678"},
		Message:    "hello",
	}
	plan, err := EvaluatePolicy(intent, testPolicyContext(t, "email them"))
	require.NoError(t, err)

	assert.Equal(t, "sms", plan.Channel)
	require.NotEmpty(t, plan.PolicyNotes)
	assert.Contains(t, plan.PolicyNotes[0], "email")
}

func TestEvaluatePolicyRecipients(t *testing.T) {
	t.Run("invalid entries dropped", func(t *testing.T) {
		intent := &ParsedIntent{
			Recipients: []string{"not-a-number", "+61 412 345 678", "mum"},
			Message:    "hi",
		}
		plan, err := EvaluatePolicy(intent, testPolicyContext(t, "x"))
		require.NoError(t, err)
		assert.Equal(t, []string{"+61412345678"}, plan.To)
	})

	t.Run("no valid recipients is a hard failure", func(t *testing.T) {
		intent := &ParsedIntent{Recipients: []string{"nobody"}, Message: "hi"}
		_, err := EvaluatePolicy(intent, testPolicyContext(t, "x"))
		require.ErrorIs(t, err, ErrNoRecipients)
		assert.Equal(t, "No valid recipient phone numbers found", err.Error())
	})

	t.Run("empty recipients is a hard failure", func(t *testing.T) {
		_, err := EvaluatePolicy(&ParsedIntent{Message: "hi"}, testPolicyContext(t, "x"))
		assert.ErrorIs(t, err, ErrNoRecipients)
	})
}

func TestEvaluatePolicyBody(t *testing.T) {
	base := func() *ParsedIntent {
		return &ParsedIntent{Recipients: []string{"+61412345678"}}
	}

	t.Run("explicit message wins", func(t *testing.T) {
		intent := base()
		intent.Message = "take your pills"
		intent.TemplateKey = "medication_reminder"
		plan, err := EvaluatePolicy(intent, testPolicyContext(t, "utterance"))
		require.NoError(t, err)
		assert.Equal(t, "take your pills", plan.Body)
	})

	t.Run("template with variables", func(t *testing.T) {
		intent := base()
		intent.TemplateKey = "medication_reminder"
		intent.Variables = map[string]string{"name": "Alex", "medication": "metformin"}
		plan, err := EvaluatePolicy(intent, testPolicyContext(t, "utterance"))
		require.NoError(t, err)
		assert.Equal(t, "Hi Alex, this is a reminder to take your metformin.", plan.Body)
	})

	t.Run("unknown template falls back to utterance with a note", func(t *testing.T) {
		intent := base()
		intent.TemplateKey = "no_such_template"
		plan, err := EvaluatePolicy(intent, testPolicyContext(t, "remind me about the thing"))
		require.NoError(t, err)
		assert.Equal(t, "remind me about the thing", plan.Body)
		assert.NotEmpty(t, plan.PolicyNotes)
	})

	t.Run("empty body is a hard failure", func(t *testing.T) {
		pctx := testPolicyContext(t, "   ")
		_, err := EvaluatePolicy(base(), pctx)
		assert.ErrorIs(t, err, ErrEmptyBody)
	})
}

func TestEvaluatePolicySchedule(t *testing.T) {
	base := func() *ParsedIntent {
		return &ParsedIntent{Recipients: []string{"+61412345678"}, Message: "hi"}
	}

	t.Run("datetime used as-is", func(t *testing.T) {
		intent := base()
		intent.Schedule = &Schedule{Kind: ScheduleDatetime, ISO: "2026-08-01T10:00:00+10:00"}
		plan, err := EvaluatePolicy(intent, testPolicyContext(t, "x"))
		require.NoError(t, err)
		require.NotNil(t, plan.ScheduleAt)
		assert.Equal(t, 2026, plan.ScheduleAt.Year())
	})

	t.Run("past datetime degrades to immediate with a note", func(t *testing.T) {
		intent := base()
		intent.Schedule = &Schedule{Kind: ScheduleDatetime, ISO: "2020-01-01T10:00:00+10:00"}
		plan, err := EvaluatePolicy(intent, testPolicyContext(t, "x"))
		require.NoError(t, err)
		assert.Nil(t, plan.ScheduleAt)
		assert.NotEmpty(t, plan.PolicyNotes)
	})

	t.Run("relative duration from now", func(t *testing.T) {
		intent := base()
		intent.Schedule = &Schedule{Kind: ScheduleRelative, Duration: "PT30M"}
		pctx := testPolicyContext(t, "x")
		plan, err := EvaluatePolicy(intent, pctx)
		require.NoError(t, err)
		require.NotNil(t, plan.ScheduleAt)
		assert.WithinDuration(t, pctx.now().Add(30*time.Minute), *plan.ScheduleAt, time.Second)
	})

	t.Run("cron carried through with limit", func(t *testing.T) {
		intent := base()
		intent.Schedule = &Schedule{Kind: ScheduleCron, Cron: "0 9 * * 1", Limit: 4}
		plan, err := EvaluatePolicy(intent, testPolicyContext(t, "x"))
		require.NoError(t, err)
		require.NotNil(t, plan.Repeat)
		assert.Equal(t, "0 9 * * 1", plan.Repeat.Cron)
		assert.Equal(t, 4, plan.Repeat.Limit)
		assert.Equal(t, "Australia/Sydney", plan.Repeat.TZ)
		assert.Contains(t, plan.Labels, "recurring")
	})

	t.Run("invalid cron rejected", func(t *testing.T) {
		intent := base()
		intent.Schedule = &Schedule{Kind: ScheduleCron, Cron: "not cron"}
		_, err := EvaluatePolicy(intent, testPolicyContext(t, "x"))
		assert.Error(t, err)
	})

	t.Run("missing schedule runs NL inference", func(t *testing.T) {
		plan, err := EvaluatePolicy(base(), testPolicyContext(t, "remind me tomorrow"))
		require.NoError(t, err)
		require.NotNil(t, plan.ScheduleAt)
		assert.Equal(t, 9, plan.ScheduleAt.Hour())
		assert.Equal(t, 8, plan.ScheduleAt.Day())
	})
}

func TestEvaluatePolicyTimezonePrecedence(t *testing.T) {
	intent := &ParsedIntent{
		Recipients: []string{"+61412345678"},
		Message:    "hi",
		Timezone:   "Pacific/Auckland",
	}
	plan, err := EvaluatePolicy(intent, testPolicyContext(t, "remind me tomorrow at 9am"))
	require.NoError(t, err)
	require.NotNil(t, plan.ScheduleAt)
	assert.Equal(t, "Pacific/Auckland", plan.ScheduleAt.Location().String())
}

func TestIdempotencyKeyStable(t *testing.T) {
	pctx := testPolicyContext(t, "remind me tomorrow at 9am")
	intent := func() *ParsedIntent {
		return &ParsedIntent{Recipients: []string{"+61412345678"}, Message: "pills"}
	}

	a, err := EvaluatePolicy(intent(), pctx)
	require.NoError(t, err)
	b, err := EvaluatePolicy(intent(), pctx)
	require.NoError(t, err)
	assert.Equal(t, a.IdempotencyKey, b.IdempotencyKey)

	t.Run("recipient order irrelevant", func(t *testing.T) {
		p1 := &NotificationPlan{To: []string{"+61400000001", "+61400000002"}, Body: "x"}
		p2 := &NotificationPlan{To: []string{"+61400000002", "+61400000001"}, Body: "x"}
		assert.Equal(t, p1.ComputeIdempotencyKey(), p2.ComputeIdempotencyKey())
	})

	t.Run("body change changes key", func(t *testing.T) {
		p1 := &NotificationPlan{To: []string{"+61400000001"}, Body: "x"}
		p2 := &NotificationPlan{To: []string{"+61400000001"}, Body: "y"}
		assert.NotEqual(t, p1.ComputeIdempotencyKey(), p2.ComputeIdempotencyKey())
	})
}
