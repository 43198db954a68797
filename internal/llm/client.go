// Package llm is the language-model collaborator: one structured call for
// triage and one for analysis, both validated before they reach the state.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/opendataloader-project/beneissue/internal/telemetry"
)

const (
	defaultMaxTokens  = 4096
	defaultMaxElapsed = 90 * time.Second
)

// ErrAPIKeyRequired is returned when no Anthropic key is configured.
var ErrAPIKeyRequired = errors.New("API key required")

// Usage is the token count of one or more calls.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Request is one completion call.
type Request struct {
	Model     string
	System    string
	User      string
	MaxTokens int64
}

// Response is the text of the first content block plus usage.
type Response struct {
	Text  string
	Usage Usage
}

// Transport sends a single completion request. Interface for testing.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// AnthropicTransport sends requests through the Messages API.
type AnthropicTransport struct {
	client anthropic.Client
}

// NewAnthropicTransport creates a transport. ANTHROPIC_API_KEY takes
// precedence over apiKey.
func NewAnthropicTransport(apiKey string) (*AnthropicTransport, error) {
	if env := os.Getenv("ANTHROPIC_API_KEY"); env != "" {
		apiKey = env
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrAPIKeyRequired)
	}
	return &AnthropicTransport{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

func (t *AnthropicTransport) Send(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := t.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	usage := Usage{InputTokens: message.Usage.InputTokens, OutputTokens: message.Usage.OutputTokens}
	if len(message.Content) == 0 {
		return nil, fmt.Errorf("unexpected response format: no content blocks")
	}
	content := message.Content[0]
	if content.Type != "text" {
		return nil, fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
	}
	return &Response{Text: content.Text, Usage: usage}, nil
}

// Client runs triage and analysis calls over a Transport.
type Client struct {
	transport  Transport
	maxElapsed time.Duration
}

// NewClient creates a Client.
func NewClient(t Transport) *Client {
	aiMetricsOnce.Do(initAIMetrics)
	return &Client{transport: t, maxElapsed: defaultMaxElapsed}
}

// SetMaxElapsed bounds the total retry time of Assess.
func (c *Client) SetMaxElapsed(d time.Duration) {
	c.maxElapsed = d
}

var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter("github.com/opendataloader-project/beneissue/llm")
	aiMetrics.inputTokens, _ = m.Int64Counter("beneissue.llm.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("beneissue.llm.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("beneissue.llm.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// complete sends req once, recording telemetry.
func (c *Client) complete(ctx context.Context, op string, req Request) (*Response, error) {
	ctx, span := telemetry.Tracer("github.com/opendataloader-project/beneissue/llm").Start(ctx, "anthropic.messages.new")
	defer span.End()
	modelAttr := attribute.String("beneissue.llm.model", req.Model)
	span.SetAttributes(modelAttr, attribute.String("beneissue.llm.operation", op))

	t0 := time.Now()
	resp, err := c.transport.Send(ctx, req)
	ms := float64(time.Since(t0).Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if aiMetrics.inputTokens != nil {
		aiMetrics.inputTokens.Add(ctx, resp.Usage.InputTokens, metric.WithAttributes(modelAttr))
		aiMetrics.outputTokens.Add(ctx, resp.Usage.OutputTokens, metric.WithAttributes(modelAttr))
		aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
	}
	span.SetAttributes(
		attribute.Int64("beneissue.llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("beneissue.llm.output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}

// completeWithRetry retries transient API failures with exponential backoff.
// Usage from failed attempts is not counted; successful responses always are,
// even when the caller later rejects the content.
func (c *Client) completeWithRetry(ctx context.Context, op string, req Request) (*Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed

	var resp *Response
	err := backoff.Retry(func() error {
		r, err := c.complete(ctx, op, req)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
