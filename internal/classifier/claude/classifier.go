// Package claude implements triage.Classifier on the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/sentiment"
	"github.com/linnemanlabs/sift/internal/triage"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultModel           = "claude-haiku-4-5-20251001"
	DefaultMaxTokens       = 256
	DefaultTimeout         = 30 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

const systemPrompt = `You are a sentiment classifier. For the user's message, reply with a single JSON object and nothing else:
{"sentiment": LABEL, "scores": {"Positive": p, "Negative": n, "Neutral": u, "Mixed": m}}
LABEL is one of POSITIVE, NEGATIVE, NEUTRAL, MIXED and names the dominant sentiment.
Each score is a confidence between 0 and 1, and the four scores sum to 1.`

// Config configures the Claude classifier.
type Config struct {
	APIKey     string
	Model      string
	MaxTokens  int64
	Timeout    time.Duration
	BaseURL    string
	MaxRetries int

	// BreakerFailures consecutive call failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Classifier classifies text by asking Claude for a JSON verdict.
type Classifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	breaker   *gobreaker.CircuitBreaker
	logger    log.Logger
}

var _ triage.Classifier = (*Classifier)(nil)

// New creates a Classifier. It never contacts the API.
func New(cfg Config, logger log.Logger) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("claude: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}
	if logger == nil {
		logger = log.Nop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Classifier{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "claude",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// a reply we cannot decode is not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, sentiment.ErrMalformedOutput) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// Classify implements triage.Classifier.
func (c *Classifier) Classify(ctx context.Context, req triage.ClassifyRequest) (*sentiment.Output, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*sentiment.Output), nil
}

func (c *Classifier) call(ctx context.Context, req triage.ClassifyRequest) (*sentiment.Output, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}
	return ParseReply(replyText(msg))
}

func userPrompt(req triage.ClassifyRequest) string {
	return fmt.Sprintf("Language: %s\n\nMessage:\n%s", req.LanguageCode, req.Text)
}

// replyText concatenates the text blocks of msg.
func replyText(msg *anthropic.Message) string {
	var b strings.Builder
	for i := range msg.Content {
		if msg.Content[i].Type == "text" {
			b.WriteString(msg.Content[i].Text)
		}
	}
	return b.String()
}

// ParseReply decodes a classifier reply. Surrounding prose and markdown code
// fences are tolerated; the first JSON object in text is used. Only decoding
// is checked here, the contract itself is enforced by sentiment.Extract.
func ParseReply(text string) (*sentiment.Output, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", sentiment.ErrMalformedOutput)
	}

	var out sentiment.Output
	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", sentiment.ErrMalformedOutput, err)
	}
	return &out, nil
}
