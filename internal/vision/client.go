// Package vision asks the Gemini multimodal model for a nutritional analysis
// of a food photo and normalizes the answer into a Result.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"

	"github.com/angelmondragon/platewise-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/metrics"
)

const (
	defaultModel         = "gemini-2.0-flash"
	defaultTimeout       = 30 * time.Second
	defaultMaxConcurrent = 4
	maxOutputTokens      = 1024
	pingPrompt           = "Reply with the single word OK."
)

// Reason classifies an analysis failure.
type Reason string

const (
	ReasonUpstream  Reason = "upstream"
	ReasonTimeout   Reason = "timeout"
	ReasonSafety    Reason = "safety"
	ReasonEmpty     Reason = "empty"
	ReasonMalformed Reason = "malformed"
)

// Request is one image to analyze.
type Request struct {
	Data     []byte
	MIMEType string
	Note     string
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options tune the client.
type Options struct {
	Model         string
	Timeout       time.Duration
	MaxConcurrent int
	Logger        *logger.Logger
	Metrics       *metrics.VisionMetrics
}

// Client is safe for concurrent use. At most MaxConcurrent model calls are in
// flight; callers beyond that wait for a slot within their timeout.
type Client struct {
	gen     generator
	model   string
	timeout time.Duration
	sem     *semaphore.Weighted
	logg    *logger.Logger
	metrics *metrics.VisionMetrics
	now     func() time.Time
}

// New connects to the Gemini API.
func New(ctx context.Context, gemini config.GeminiConfig, vision config.VisionConfig, logg *logger.Logger, m *metrics.VisionMetrics) (*Client, error) {
	if strings.TrimSpace(gemini.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newClient(gc.Models, Options{
		Model:         gemini.Model,
		Timeout:       vision.Timeout,
		MaxConcurrent: vision.MaxConcurrent,
		Logger:        logg,
		Metrics:       m,
	}), nil
}

func newClient(gen generator, opts Options) *Client {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Client{
		gen:     gen,
		model:   opts.Model,
		timeout: opts.Timeout,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logg:    opts.Logger,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// Analyze returns the repaired model answer or an AnalysisError carrying a
// reason detail.
func (c *Client) Analyze(ctx context.Context, req Request) (Result, error) {
	if len(req.Data) == 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "image data required")
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	parts := []*genai.Part{
		genai.NewPartFromText(BuildPrompt(req.Note)),
		genai.NewPartFromBytes(req.Data, mimeType),
	}

	started := c.now()
	text, err := c.generate(ctx, parts, maxOutputTokens)
	if err != nil {
		c.metrics.Observe(metrics.OutcomeFailure, c.now().Sub(started))
		return Result{}, err
	}
	raw, err := decode(text)
	if err != nil {
		c.metrics.Observe(metrics.OutcomeFailure, c.now().Sub(started))
		return Result{}, analysisError(ReasonMalformed, err, "model returned invalid JSON")
	}
	c.metrics.Observe(metrics.OutcomeSuccess, c.now().Sub(started))
	return repair(raw), nil
}

// AnalyzeOrDefault never fails: analysis errors are logged, counted and
// replaced by Default().
func (c *Client) AnalyzeOrDefault(ctx context.Context, req Request) Result {
	result, err := c.Analyze(ctx, req)
	if err == nil {
		return result
	}
	ctx = c.logg.WithField(ctx, "reason", string(ReasonOf(err)))
	c.logg.Error(ctx, "vision.analysis.failed", err)
	c.metrics.IncDegraded()
	return Default()
}

// Ping sends a text-only prompt to confirm the model is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.generate(ctx, []*genai.Part{genai.NewPartFromText(pingPrompt)}, 8)
	return err
}

func (c *Client) generate(ctx context.Context, parts []*genai.Part, maxTokens int32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", classify(ctx, err)
	}
	defer c.sem.Release(1)

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.1),
		TopK:            genai.Ptr[float32](32),
		TopP:            genai.Ptr[float32](1),
		MaxOutputTokens: maxTokens,
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.gen.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", classify(ctx, err)
	}
	if resp == nil {
		return "", analysisError(ReasonEmpty, nil, "model returned no response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", analysisError(ReasonSafety, nil, "prompt blocked by safety filters")
	}
	if len(resp.Candidates) == 0 {
		return "", analysisError(ReasonEmpty, nil, "model returned no candidates")
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", analysisError(ReasonSafety, nil, "response blocked by safety filters")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", analysisError(ReasonEmpty, nil, "model returned empty text")
	}
	return text, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return analysisError(ReasonTimeout, err, "vision model timed out")
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return analysisError(ReasonUpstream, err, fmt.Sprintf("vision model returned status %d", apiErr.Code))
	}
	return analysisError(ReasonUpstream, err, "vision model request failed")
}

func analysisError(reason Reason, cause error, msg string) *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeAnalysis, cause, msg).
		WithDetails(map[string]any{"reason": string(reason)})
}

// ReasonOf extracts the failure reason from an AnalysisError.
func ReasonOf(err error) Reason {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeAnalysis {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return Reason(reason)
}
