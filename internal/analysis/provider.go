package analysis

import (
	"context"
	"fmt"

	"github.com/YoussfAh/X-sub010/internal/config"
	"github.com/YoussfAh/X-sub010/internal/domain"
)

// Provider names accepted in ANALYSIS_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// New builds the completer selected by cfg.AnalysisProvider.
func New(ctx context.Context, cfg config.Config) (domain.Completer, error) {
	switch cfg.AnalysisProvider {
	case ProviderGemini, "":
		return NewGeminiCompleter(ctx, GeminiOptions{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	case ProviderOpenAI:
		return NewOpenAICompleter(OpenAIOptions{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL})
	case ProviderStatic:
		return NewStaticCompleter(), nil
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.AnalysisProvider)
	}
}
