package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/YoussfAh/X-sub010/internal/domain"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiOptions configures a GeminiCompleter. BaseURL overrides the API endpoint.
type GeminiOptions struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GeminiCompleter generates analyses with Google's Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates the genai client.
func NewGeminiCompleter(ctx context.Context, opts GeminiOptions) (*GeminiCompleter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(opts.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

// Complete issues a single GenerateContent call.
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string, actx domain.AnalysisContext) (string, error) {
	userMessage, err := BuildUserMessage(prompt, actx)
	if err != nil {
		return "", err
	}

	temperature := float32(0.4)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction(actx.Type), genai.RoleUser),
		Temperature:       &temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userMessage), config)
	if err != nil {
		return "", geminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &domain.UpstreamError{Message: "response had no candidates"}
	}
	return strings.TrimSpace(resp.Text()), nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewUpstreamStatusError(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return domain.NewUpstreamStatusError(apiErrPtr.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return &domain.UpstreamError{Message: "analysis backend timed out", Timeout: true}
	}
	return err
}

var _ domain.Completer = (*GeminiCompleter)(nil)
