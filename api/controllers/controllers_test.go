package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/platewise-backend/api/middleware"
	"github.com/angelmondragon/platewise-backend/internal/activity"
	"github.com/angelmondragon/platewise-backend/internal/images"
	"github.com/angelmondragon/platewise-backend/internal/ingest"
	"github.com/angelmondragon/platewise-backend/internal/meals"
	"github.com/angelmondragon/platewise-backend/internal/ratelimit"
	"github.com/angelmondragon/platewise-backend/internal/vision"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/timewindow"
)

type fakeImages struct {
	ImageService

	uploadOwner string
	uploadNote  string
	listParams  images.ListParams
	mealValue   *bool
	analyzeRes  vision.Result
	diag        *images.Diagnostics
	diagErr     error
	setMealErr  error
}

func (f *fakeImages) Upload(_ context.Context, owner string, in images.UploadInput) (*images.Image, error) {
	f.uploadOwner = owner
	f.uploadNote = in.Note
	return &images.Image{ID: uuid.New(), FileName: in.File.FileName}, nil
}

func (f *fakeImages) AnalyzeOnly(context.Context, ingest.Upload, string, int64) (vision.Result, error) {
	return f.analyzeRes, nil
}

func (f *fakeImages) List(_ context.Context, _ string, params images.ListParams) (*images.ListResult, error) {
	f.listParams = params
	return &images.ListResult{Items: []*images.Image{}}, nil
}

func (f *fakeImages) SetIsMeal(_ context.Context, _ string, id uuid.UUID, value bool) (*images.Image, error) {
	if f.setMealErr != nil {
		return nil, f.setMealErr
	}
	f.mealValue = &value
	return &images.Image{ID: id, IsMeal: value}, nil
}

func (f *fakeImages) Diagnose(context.Context, string, uuid.UUID) (*images.Diagnostics, error) {
	return f.diag, f.diagErr
}

type stubMeals struct {
	filter timewindow.Filter
}

func (s *stubMeals) Summarize(_ context.Context, _ string, filter timewindow.Filter) (*meals.Summary, error) {
	s.filter = filter
	return &meals.Summary{TotalMeals: 2, TotalCalories: 500}, nil
}

type stubActivity struct {
	ActivityService
	created activity.Input
	days    int
}

func (s *stubActivity) Create(_ context.Context, _ string, in activity.Input) (*activity.Log, error) {
	s.created = in
	return &activity.Log{ID: uuid.New(), ActivityDate: in.ActivityDate}, nil
}

func (s *stubActivity) RecentSummary(_ context.Context, _ string, days int) (*activity.Summary, error) {
	s.days = days
	return &activity.Summary{}, nil
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

func withOwner(req *http.Request, owner string) *http.Request {
	return req.WithContext(middleware.WithOwnerID(req.Context(), owner))
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func uploadRequest(t *testing.T, target, note string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "plate.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	if note != "" {
		require.NoError(t, mw.WriteField("description", note))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Data
}

func TestImagesUploadRequiresOwner(t *testing.T) {
	rec := httptest.NewRecorder()
	ImagesUpload(&fakeImages{}, 1<<20, nil).ServeHTTP(rec, uploadRequest(t, "/api/v1/images", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImagesUploadPassesNote(t *testing.T) {
	svc := &fakeImages{}
	rec := httptest.NewRecorder()
	req := withOwner(uploadRequest(t, "/api/v1/images", " no dressing "), "owner-1")

	ImagesUpload(svc, 1<<20, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "owner-1", svc.uploadOwner)
	assert.Equal(t, "no dressing", svc.uploadNote)
}

func TestImagesListParsesFilters(t *testing.T) {
	svc := &fakeImages{}
	rec := httptest.NewRecorder()
	req := withOwner(httptest.NewRequest(http.MethodGet, "/api/v1/images?limit=10&cursor=abc&date=2025-03-04&week=2025-W10", nil), "owner-1")

	ImagesList(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, images.ListParams{
		Limit:  10,
		Cursor: "abc",
		Filter: timewindow.Filter{Day: "2025-03-04", Week: "2025-W10"},
	}, svc.listParams)

	rec = httptest.NewRecorder()
	req = withOwner(httptest.NewRequest(http.MethodGet, "/api/v1/images?limit=0", nil), "owner-1")
	ImagesList(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImagesSetMeal(t *testing.T) {
	svc := &fakeImages{}
	id := uuid.New()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"is_meal":false}`))
	req = withOwner(withParam(req, "id", id.String()), "owner-1")
	ImagesSetMeal(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.mealValue)
	assert.False(t, *svc.mealValue)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{}`))
	req = withOwner(withParam(req, "id", id.String()), "owner-1")
	ImagesSetMeal(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.setMealErr = pkgerrors.New(pkgerrors.CodeInvariant, "only food images can be marked as meals")
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"is_meal":true}`))
	req = withOwner(withParam(req, "id", id.String()), "owner-1")
	ImagesSetMeal(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestImagesDiagnosticsReportsFailuresWith200(t *testing.T) {
	id := uuid.New()
	svc := &fakeImages{
		diag:    &images.Diagnostics{ImageID: id, Checks: []images.Check{{Name: "vision_ping", OK: false, Error: "timeout"}}},
		diagErr: errors.New("timeout"),
	}
	rec := httptest.NewRecorder()
	req := withOwner(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", id.String()), "owner-1")

	ImagesDiagnostics(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, false, data["healthy"])
}

func TestPublicAnalyzeFoodAddsQuotaAndNote(t *testing.T) {
	svc := &fakeImages{analyzeRes: vision.Default()}
	limiter := ratelimit.NewMemory()
	handler := middleware.DailyRateLimit(limiter, 5, nil, nil)(PublicAnalyzeFood(svc, 10<<20, nil))

	rec := httptest.NewRecorder()
	req := uploadRequest(t, "/api/public/analyze-food", "")
	req.RemoteAddr = "198.51.100.1:4000"
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, false, data["is_food"])
	assert.Equal(t, notFoodNote, data["note"])
	assert.Equal(t, map[string]any{"remaining_requests": float64(4), "limit": float64(5), "period": "24 hours"}, data["rate_limit"])
}

func TestMealsSummaryPassesFilter(t *testing.T) {
	svc := &stubMeals{}
	rec := httptest.NewRecorder()
	req := withOwner(httptest.NewRequest(http.MethodGet, "/api/v1/meals/summary?month=2025-03", nil), "owner-1")

	MealsSummary(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, timewindow.Filter{Month: "2025-03"}, svc.filter)
	assert.Equal(t, float64(500), decodeData(t, rec)["total_calories"])
}

func TestActivityCreateValidatesBody(t *testing.T) {
	svc := &stubActivity{}

	rec := httptest.NewRecorder()
	req := withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"activity_date":"2025-03-04","activities":[{"activity_name":"running","calories":"250"}]}`)), "owner-1")
	ActivityCreate(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2025-03-04", svc.created.ActivityDate)
	require.Len(t, svc.created.Activities, 1)

	rec = httptest.NewRecorder()
	req = withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"activity_date":"2025-03-04","activities":[]}`)), "owner-1")
	ActivityCreate(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivityRecentDefaultsAndBounds(t *testing.T) {
	svc := &stubActivity{}

	rec := httptest.NewRecorder()
	ActivitySummaryRecent(svc, nil).ServeHTTP(rec, withOwner(httptest.NewRequest(http.MethodGet, "/", nil), "owner-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, activity.DefaultRecentDays, svc.days)

	rec = httptest.NewRecorder()
	ActivitySummaryRecent(svc, nil).ServeHTTP(rec, withOwner(httptest.NewRequest(http.MethodGet, "/?days=400", nil), "owner-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": okPinger{}, "redis": nil}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "ok", data["db"])
	assert.Equal(t, "disabled", data["redis"])

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"blob": okPinger{err: errors.New("down")}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
