// Package generation is the client of the language generation backend.
// A call either returns reply text or fails with common.ErrGeneration; it
// never retries.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dmitrijs2005/companion/internal/common"
	"github.com/dmitrijs2005/companion/internal/server/prompt"
	"golang.org/x/time/rate"
)

// Params are the sampling settings of one generator.
type Params struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	// TopP is sent only when positive.
	TopP float64
}

// ReplyParams are used for conversation turns.
var ReplyParams = Params{MaxTokens: 600, Temperature: 0.8}

// SummaryParams are used for the admin wellbeing summary.
var SummaryParams = Params{MaxTokens: 300, Temperature: 0.4}

// DefaultModel is used when Params.Model is empty.
const DefaultModel = "claude-sonnet-4-5"

// Generator calls the Anthropic Messages API with fixed Params.
type Generator struct {
	client  anthropic.Client
	params  Params
	limiter *rate.Limiter
	timeout time.Duration
}

type Option func(*generatorOptions)

type generatorOptions struct {
	baseURL string
	limiter *rate.Limiter
	timeout time.Duration
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(url string) Option {
	return func(o *generatorOptions) { o.baseURL = url }
}

// WithRateLimit paces outgoing calls to r per second with the given burst.
// Waiting counts against the call timeout.
func WithRateLimit(r float64, burst int) Option {
	return func(o *generatorOptions) { o.limiter = NewLimiter(r, burst) }
}

// NewLimiter returns a limiter for r calls per second, or nil when r is not
// positive.
func NewLimiter(r float64, burst int) *rate.Limiter {
	if r <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(r), max(burst, 1))
}

// WithLimiter shares an existing limiter between generators.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *generatorOptions) { o.limiter = l }
}

// WithTimeout bounds each call, including time spent waiting for the limiter.
func WithTimeout(d time.Duration) Option {
	return func(o *generatorOptions) { o.timeout = d }
}

// New builds a Generator authenticated with apiKey.
func New(apiKey string, params Params, opts ...Option) *Generator {
	o := &generatorOptions{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	if params.Model == "" {
		params.Model = DefaultModel
	}

	return &Generator{
		client:  anthropic.NewClient(reqOpts...),
		params:  params,
		limiter: o.limiter,
		timeout: o.timeout,
	}
}

// Generate sends segments and returns the reply text. System segments become
// the system prompt; the rest keep their order as conversation messages.
func (g *Generator) Generate(ctx context.Context, segments []prompt.Segment) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limit wait: %v", common.ErrGeneration, err)
		}
	}

	params, err := g.buildParams(segments)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrGeneration, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty reply", common.ErrGeneration)
	}
	return text, nil
}

func (g *Generator) buildParams(segments []prompt.Segment) (anthropic.MessageNewParams, error) {
	var (
		system   []anthropic.TextBlockParam
		messages []anthropic.MessageParam
	)
	for _, s := range segments {
		switch s.Role {
		case prompt.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: s.Text})
		case prompt.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(s.Text)))
		case prompt.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(s.Text)))
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("%w: unknown role %q", common.ErrGeneration, s.Role)
		}
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: no messages", common.ErrGeneration)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.params.Model),
		MaxTokens:   g.params.MaxTokens,
		Messages:    messages,
		System:      system,
		Temperature: anthropic.Float(g.params.Temperature),
	}
	if g.params.TopP > 0 {
		params.TopP = anthropic.Float(g.params.TopP)
	}
	return params, nil
}
