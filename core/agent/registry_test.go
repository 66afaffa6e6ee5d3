package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedHandler struct{ name string }

func (h *namedHandler) Name() string           { return h.name }
func (h *namedHandler) Capabilities() []string { return nil }
func (h *namedHandler) Process(ctx context.Context, input AgentInput) (AgentOutput, error) {
	return AgentOutput{Reply: h.name}, nil
}

func TestRegistryResolve(t *testing.T) {
	r, err := NewRegistry(&namedHandler{name: "advice"})
	require.NoError(t, err)
	require.NoError(t, r.Register(&namedHandler{name: "notification"}))

	h, known := r.Resolve("notification")
	assert.True(t, known)
	assert.Equal(t, "notification", h.Name())

	h, known = r.Resolve("nonexistent")
	assert.False(t, known)
	assert.Equal(t, "advice", h.Name(), "unknown names resolve to the default handler")

	assert.Equal(t, "advice", r.DefaultName())
	assert.Equal(t, []string{"advice", "notification"}, r.Names())
	assert.True(t, r.Has("advice"))
	assert.False(t, r.Has("report"))
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)

	r, err := NewRegistry(&namedHandler{name: "advice"})
	require.NoError(t, err)

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&namedHandler{name: ""}))
	assert.Error(t, r.Register(&namedHandler{name: "advice"}), "duplicate names are rejected")
}
