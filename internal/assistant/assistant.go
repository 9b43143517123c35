// Package assistant proxies free-text questions and flight analyses to a
// language model. It always returns text: failures map to fixed replies.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manaspathak2335-git/TripPilot/internal/logging"
	"github.com/manaspathak2335-git/TripPilot/internal/metrics"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

// Fixed replies.
const (
	ReplyOffline      = "AI Offline."
	ReplyInterference = "I'm experiencing radio interference."
	ReplyAnalysis     = "**Analysis:** Flight is on standard approach path."

	DefaultContext = "General Query"
	DefaultTimeout = 20 * time.Second
)

const chatInstruction = `You are 'Captain Gemini', an expert pilot assistant for TripPilot.
CONTEXT: Use the provided context (Origins, Destinations) to answer queries.`

const analysisInstruction = `You are 'Captain Gemini', an expert pilot assistant for TripPilot.
Give a short flight status analysis in Markdown, starting with "**Analysis:**".
Use only the telemetry provided. Two or three sentences.`

// Call outcomes recorded in metrics.
const (
	outcomeOffline = "offline"
	outcomeError   = "error"
	outcomeEmpty   = "empty"
)

// Completer sends one prompt to a model and returns its text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Option configures the Assistant.
type Option func(*Assistant)

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(a *Assistant) { a.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(a *Assistant) { a.metrics = m }
}

// Assistant wraps a Completer with prompts and fallbacks. A nil completer
// means no model is configured.
type Assistant struct {
	completer Completer
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// New creates an assistant.
func New(c Completer, opts ...Option) *Assistant {
	a := &Assistant{completer: c, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.Default(a.logger).With("component", "assistant")
	return a
}

// Online reports whether a model is configured.
func (a *Assistant) Online() bool { return a.completer != nil }

// Chat answers message using the caller-supplied context (origins,
// destinations, selected flight). An empty context becomes DefaultContext.
func (a *Assistant) Chat(ctx context.Context, message, chatContext string) string {
	if strings.TrimSpace(chatContext) == "" {
		chatContext = DefaultContext
	}
	prompt := fmt.Sprintf("CURRENT CONTEXT: %s\n\nUSER QUESTION: %s", chatContext, message)
	return a.ask(ctx, "chat", chatInstruction, prompt, ReplyInterference)
}

// AnalyzeFlight summarises a tracked flight.
func (a *Assistant) AnalyzeFlight(ctx context.Context, f models.FlightRecord) string {
	if a.completer == nil {
		return ReplyAnalysis
	}
	return a.ask(ctx, "analysis", analysisInstruction, FlightContext(f), ReplyAnalysis)
}

// FlightContext renders a flight as prompt context.
func FlightContext(f models.FlightRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Flight %s (%s)", f.FlightNumber, f.Airline)
	fmt.Fprintf(&b, ", route %s to %s", f.Origin, f.Destination)
	fmt.Fprintf(&b, ", position %.4f,%.4f", f.Latitude, f.Longitude)
	fmt.Fprintf(&b, ", altitude %.0f ft, speed %.0f kt, heading %.0f deg", f.Altitude, f.Speed, f.Heading)
	if f.Simulated {
		b.WriteString(", simulated data")
	}
	return b.String()
}

// ask makes one attempt; there is no retry.
func (a *Assistant) ask(ctx context.Context, kind, system, prompt, fallback string) string {
	if a.completer == nil {
		a.metrics.AssistantCall(outcomeOffline)
		return ReplyOffline
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	text, err := a.completer.Complete(ctx, system, prompt)
	if err != nil {
		a.logger.Warn("model call failed", "kind", kind, "error", err, "elapsed", time.Since(start))
		a.metrics.AssistantCall(outcomeError)
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		a.logger.Warn("model returned empty answer", "kind", kind)
		a.metrics.AssistantCall(outcomeEmpty)
		return fallback
	}

	a.metrics.AssistantCall(metrics.OutcomeOK)
	return text
}
