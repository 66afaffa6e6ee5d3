// Package testutil provides shared mocks for testing the assistant core
// without external dependencies.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/careloop-ai/assistant-core/handlers"
	"github.com/careloop-ai/assistant-core/llm"
	"github.com/careloop-ai/assistant-core/schedule"
)

// =============================================================================
// MOCK LLM PROVIDER
// =============================================================================

// MockProvider implements llm.Provider for testing. Configure responses by
// prompt substring or use DefaultResponse.
type MockProvider struct {
	// Responses maps prompt substrings to responses. First match wins,
	// checked in insertion order.
	keys      []string
	responses map[string]string

	// DefaultResponse is returned when no substring matches.
	DefaultResponse string

	// Delay simulates LLM latency.
	Delay time.Duration

	// Err causes Generate to return this error.
	Err error

	// Usage is attached to every GenerateWithUsage result.
	Usage llm.Usage

	mu        sync.Mutex
	callCount int
	prompts   []string
}

// NewMockProvider creates a MockProvider with an empty default response.
func NewMockProvider() *MockProvider {
	return &MockProvider{responses: make(map[string]string)}
}

// WithResponse adds a substring-matched response.
func (m *MockProvider) WithResponse(substring, response string) *MockProvider {
	if _, ok := m.responses[substring]; !ok {
		m.keys = append(m.keys, substring)
	}
	m.responses[substring] = response
	return m
}

// WithError configures the mock to return an error.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.Err = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.Delay = d
	return m
}

// WithUsage attaches token usage to results.
func (m *MockProvider) WithUsage(total int) *MockProvider {
	m.Usage = llm.Usage{TotalTokens: total}
	return m
}

// Generate implements llm.Provider.
func (m *MockProvider) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.Err != nil {
		return "", m.Err
	}

	for _, key := range m.keys {
		if strings.Contains(prompt, key) {
			return m.responses[key], nil
		}
	}
	return m.DefaultResponse, nil
}

// GenerateWithUsage implements llm.UsageProvider.
func (m *MockProvider) GenerateWithUsage(ctx context.Context, prompt string, opts llm.Options) (llm.Result, error) {
	text, err := m.Generate(ctx, prompt, opts)
	if err != nil {
		return llm.Result{}, err
	}
	return llm.Result{Text: text, Usage: m.Usage}, nil
}

// CallCount returns the number of Generate calls.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns a copy of all prompts seen.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

var _ llm.UsageProvider = (*MockProvider)(nil)

// =============================================================================
// MOCK COLLABORATORS
// =============================================================================

// MockCalendar implements handlers.Calendar.
type MockCalendar struct {
	Err    error
	Booked []handlers.BookingRequest

	mu sync.Mutex
}

// Book records the request and returns a deterministic appointment.
func (c *MockCalendar) Book(ctx context.Context, accessToken string, req handlers.BookingRequest) (handlers.Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return handlers.Appointment{}, c.Err
	}
	c.Booked = append(c.Booked, req)
	return handlers.Appointment{
		ID:       "apt_test",
		Title:    req.Title,
		StartsAt: req.StartsAt,
	}, nil
}

// MockReportStore implements handlers.ReportStore.
type MockReportStore struct {
	Reports []handlers.Report
	Err     error
}

func (s *MockReportStore) ListReports(ctx context.Context, userID string) ([]handlers.Report, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Reports, nil
}

// FailingQueue implements schedule.JobQueue and rejects every enqueue.
type FailingQueue struct{}

func (FailingQueue) Enqueue(ctx context.Context, plan *schedule.NotificationPlan, key string) (string, error) {
	return "", errors.New("queue unavailable")
}
func (FailingQueue) Remove(ctx context.Context, jobID string) bool { return false }
func (FailingQueue) Counts(ctx context.Context) schedule.QueueCounts {
	return schedule.QueueCounts{}
}

var (
	_ handlers.Calendar    = (*MockCalendar)(nil)
	_ handlers.ReportStore = (*MockReportStore)(nil)
	_ schedule.JobQueue    = FailingQueue{}
)
