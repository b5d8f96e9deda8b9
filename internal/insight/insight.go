// Package insight turns a staged profile payload into a natural-language
// comparison using a text-generation provider.
package insight

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/icebreaker/internal/apperr"
)

// Generator produces text for a prompt in a single provider call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type named interface {
	Name() string
}

// Analyzer builds the comparison prompt and hands it to a Generator.
type Analyzer struct {
	gen Generator
	// MaxPayloadBytes rejects larger payloads before any outbound call.
	// Zero means unlimited.
	MaxPayloadBytes int
	logger          *slog.Logger
}

func NewAnalyzer(gen Generator, maxPayloadBytes int, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{gen: gen, MaxPayloadBytes: maxPayloadBytes, logger: logger}
}

// Analyze returns the generated insight text for payload.
func (a *Analyzer) Analyze(ctx context.Context, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", apperr.InvalidInput("insight.analyze", "payload is empty")
	}
	if a.MaxPayloadBytes > 0 && len(payload) > a.MaxPayloadBytes {
		return "", apperr.InvalidInput("insight.analyze", "payload is %d bytes, limit is %d", len(payload), a.MaxPayloadBytes)
	}

	start := time.Now()
	text, err := a.gen.Generate(ctx, BuildPrompt(payload))
	if err != nil {
		if apperr.KindOf(err) == nil {
			err = apperr.Unavailable("insight.analyze", err)
		}
		return "", err
	}

	provider := "unknown"
	if n, ok := a.gen.(named); ok {
		provider = n.Name()
	}
	a.logger.Info("insight generated", "provider", provider, "payload_bytes", len(payload), "chars", len(text), "elapsed", time.Since(start))
	return text, nil
}

// NewGenerator selects a generator by provider name.
func NewGenerator(ctx context.Context, provider, baseURL, apiKey, model string) (Generator, error) {
	switch provider {
	case "", "openai":
		return NewOpenAIClient(apiKey, baseURL, model), nil
	case "gemini":
		return NewGeminiClient(ctx, apiKey, model)
	case "ollama":
		return NewOllamaClient(baseURL, model), nil
	default:
		return nil, fmt.Errorf("unknown insight provider %q", provider)
	}
}
