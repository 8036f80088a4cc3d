package vision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/metrics"
)

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	lastText string
	lastMIME string
	respond  func(ctx context.Context) (*genai.GenerateContentResponse, error)
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, _ string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	f.calls++
	for _, part := range contents[0].Parts {
		if part.Text != "" {
			f.lastText = part.Text
		}
		if part.InlineData != nil {
			f.lastMIME = part.InlineData.MIMEType
		}
	}
	f.mu.Unlock()
	return f.respond(ctx)
}

func textResponse(text string) func(context.Context) (*genai.GenerateContentResponse, error) {
	return func(context.Context) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content:      genai.NewContentFromText(text, genai.RoleModel),
				FinishReason: genai.FinishReasonStop,
			}},
		}, nil
	}
}

func newTestClient(gen generator) *Client {
	return newClient(gen, Options{Timeout: time.Second, MaxConcurrent: 2})
}

var imageReq = Request{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/png", Note: "leftover pizza"}

func TestAnalyzeSuccess(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{respond: textResponse("```json\n{\"is_food\":true,\"food_items\":[\"pizza\"],\"calories\":300}\n```")}
	client := newTestClient(gen)

	got, err := client.Analyze(context.Background(), imageReq)
	require.NoError(t, err)
	require.True(t, got.IsFood)
	require.Equal(t, []string{"pizza"}, got.FoodItems)
	require.Equal(t, 6000, got.ExerciseRecommendations.Steps)
	require.Contains(t, gen.lastText, "leftover pizza")
	require.Equal(t, "image/png", gen.lastMIME)
}

func TestAnalyzeFailureReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		respond func(context.Context) (*genai.GenerateContentResponse, error)
		reason  Reason
	}{
		{
			name: "api error",
			respond: func(context.Context) (*genai.GenerateContentResponse, error) {
				return nil, genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}
			},
			reason: ReasonUpstream,
		},
		{
			name: "transport error",
			respond: func(context.Context) (*genai.GenerateContentResponse, error) {
				return nil, errors.New("connection refused")
			},
			reason: ReasonUpstream,
		},
		{
			name: "safety",
			respond: func(context.Context) (*genai.GenerateContentResponse, error) {
				return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}, nil
			},
			reason: ReasonSafety,
		},
		{
			name: "no candidates",
			respond: func(context.Context) (*genai.GenerateContentResponse, error) {
				return &genai.GenerateContentResponse{}, nil
			},
			reason: ReasonEmpty,
		},
		{
			name:    "blank text",
			respond: textResponse("   "),
			reason:  ReasonEmpty,
		},
		{
			name:    "not json",
			respond: textResponse("I cannot help with that"),
			reason:  ReasonMalformed,
		},
		{
			name: "deadline",
			respond: func(ctx context.Context) (*genai.GenerateContentResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			reason: ReasonTimeout,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := newClient(&fakeGenerator{respond: tc.respond}, Options{Timeout: 50 * time.Millisecond})
			_, err := client.Analyze(context.Background(), imageReq)
			require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAnalysis), "got %v", err)
			require.Equal(t, tc.reason, ReasonOf(err))
		})
	}
}

func TestAnalyzeRequiresData(t *testing.T) {
	t.Parallel()

	_, err := newTestClient(&fakeGenerator{respond: textResponse("{}")}).Analyze(context.Background(), Request{})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestAnalyzeOrDefaultDegrades(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	gen := &fakeGenerator{respond: textResponse("not json at all")}
	client := newClient(gen, Options{Metrics: metrics.NewVisionMetrics(reg)})

	got := client.AnalyzeOrDefault(context.Background(), imageReq)
	require.Equal(t, Default(), got)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var degraded float64
	for _, mf := range mfs {
		if mf.GetName() != "vision_analysis_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetLabel()[0].GetValue() == metrics.OutcomeDegraded {
				degraded = m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), degraded)
}

func TestPingPropagatesFailure(t *testing.T) {
	t.Parallel()

	ok := newTestClient(&fakeGenerator{respond: textResponse("OK")})
	require.NoError(t, ok.Ping(context.Background()))

	failing := newTestClient(&fakeGenerator{respond: func(context.Context) (*genai.GenerateContentResponse, error) {
		return nil, genai.APIError{Code: 401, Message: "bad key"}
	}})
	err := failing.Ping(context.Background())
	require.Equal(t, ReasonUpstream, ReasonOf(err))
}

func TestConcurrencyIsBounded(t *testing.T) {
	t.Parallel()

	var inFlight, peak int32
	release := make(chan struct{})
	gen := &fakeGenerator{respond: func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return textResponse("{}")(ctx)
	}}
	client := newClient(gen, Options{Timeout: 5 * time.Second, MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.Analyze(context.Background(), imageReq)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inFlight) == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	require.Equal(t, int32(2), atomic.LoadInt32(&peak))
}
