package llm

import (
	"alpha-engine/internal/interfaces"
	"alpha-engine/internal/llm/noop"
	"alpha-engine/internal/llm/openai"
	"alpha-engine/internal/store"
)

// NewReasoner selects the reasoning collaborator client for the configured
// provider, defaulting to the no-op fallback.
func NewReasoner(cfg *store.Config) interfaces.Reasoner {
	switch cfg.LLM.Provider {
	case "OPENAI":
		return openai.New(cfg)
	default:
		return noop.New()
	}
}
