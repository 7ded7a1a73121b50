package llm

import (
	"context"
	"log/slog"
	"time"
)

type timeoutGenerator struct {
	inner   Generator
	timeout time.Duration
}

// WithTimeout bounds every Generate call, retries included, by d.
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return &timeoutGenerator{inner: g, timeout: d}
}

func (t *timeoutGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Generate(ctx, req)
}

func (t *timeoutGenerator) ModelID() string { return t.inner.ModelID() }

type loggingGenerator struct {
	inner Generator
}

// WithLogging logs latency and outcome of every call at debug level, failures at warn.
func WithLogging(g Generator) Generator {
	return &loggingGenerator{inner: g}
}

func (l *loggingGenerator) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := l.inner.Generate(ctx, req)
	attrs := []any{
		"model", l.inner.ModelID(),
		"latency_ms", time.Since(start).Milliseconds(),
		"prompt_chars", len(req.Prompt),
	}
	if err != nil {
		slog.WarnContext(ctx, "LLM call failed", append(attrs, "error", err)...)
		return "", err
	}
	slog.DebugContext(ctx, "LLM call", append(attrs, "response_chars", len(out))...)
	return out, nil
}

func (l *loggingGenerator) ModelID() string { return l.inner.ModelID() }
