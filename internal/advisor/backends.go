package advisor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
)

// BuildBackends constructs the advisor pool in configured priority order.
// Backends without credentials are skipped with a warning so a single API
// key is enough to run; an empty resulting pool is an error.
func BuildBackends(cfg config.AdvisorConfig, logger *zap.Logger) ([]Backend, error) {
	var backends []Backend
	for _, name := range cfg.Priority {
		var (
			b   Backend
			bc  config.BackendConfig
			err error
		)
		switch name {
		case "gemini":
			bc = cfg.Gemini
			if bc.APIKey != "" {
				b, err = NewGemini(bc, logger)
			}
		case "openai":
			bc = cfg.OpenAI
			if bc.APIKey != "" {
				b, err = NewOpenAI(bc, logger)
			}
		case "anthropic":
			bc = cfg.Anthropic
			if bc.APIKey != "" {
				b, err = NewAnthropic(bc, logger)
			}
		default:
			return nil, fmt.Errorf("unknown advisor backend %q in priority list", name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to build %s backend: %w", name, err)
		}
		if b == nil {
			logger.Warn("Skipping advisor backend without credentials", zap.String("backend", name))
			continue
		}
		backends = append(backends, b)
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no advisor backend has credentials configured")
	}
	return backends, nil
}
