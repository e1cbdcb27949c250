// File: internal/advisor/backends_test.go
package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
)

func TestBuildBackends_PriorityOrder(t *testing.T) {
	cfg := config.AdvisorConfig{
		Priority:  []string{"openai", "gemini"},
		Gemini:    config.BackendConfig{APIKey: "g-key", Model: "gemini-2.0-flash"},
		OpenAI:    config.BackendConfig{APIKey: "o-key", Model: "gpt-4o-mini"},
		Anthropic: config.BackendConfig{APIKey: "a-key"},
	}

	backends, err := BuildBackends(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, backends, 2, "only backends in the priority list are built")
	assert.Equal(t, "openai", backends[0].Name())
	assert.Equal(t, "gemini", backends[1].Name())
}

func TestBuildBackends_SkipsMissingCredentials(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cfg := config.AdvisorConfig{
		Priority: []string{"gemini", "openai", "anthropic"},
		OpenAI:   config.BackendConfig{APIKey: "o-key", Model: "gpt-4o-mini"},
	}

	backends, err := BuildBackends(cfg, zap.New(core))
	require.NoError(t, err)
	require.Len(t, backends, 1)
	assert.Equal(t, "openai", backends[0].Name())
	assert.Equal(t, 2, logs.FilterMessage("Skipping advisor backend without credentials").Len())
}

func TestBuildBackends_UnknownName(t *testing.T) {
	cfg := config.AdvisorConfig{Priority: []string{"llamacpp"}}
	_, err := BuildBackends(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown advisor backend "llamacpp"`)
}

func TestBuildBackends_NoCredentialsAtAll(t *testing.T) {
	cfg := config.AdvisorConfig{Priority: []string{"gemini", "openai", "anthropic"}}
	_, err := BuildBackends(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no advisor backend has credentials")
}
