package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/platewise-backend/internal/vision"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/storage/s3"
)

const imageRecordsDDL = `
CREATE TABLE IF NOT EXISTS image_records (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  file_name TEXT NOT NULL,
  storage_key TEXT NOT NULL UNIQUE,
  storage_bucket TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  content_type TEXT NOT NULL,
  is_food INTEGER,
  is_meal INTEGER NOT NULL DEFAULT 0,
  description TEXT,
  food_items TEXT,
  food_items_details TEXT,
  calories INTEGER,
  nutrients TEXT,
  confidence REAL,
  exercise_recommendation TEXT,
  analysis_completed_at DATETIME,
  presigned_url TEXT,
  presigned_url_expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (is_meal = 0 OR is_food = 1)
);`

func setupImagesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(imageRecordsDDL).Error)
	return conn
}

func pngUpload(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 9))
	img.Set(3, 3, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	now       func() time.Time
	uploadErr error
	deleteErr error
	signErr   error
	headErr   error
	signed    int
	deleted   []string
}

func newFakeBlobs(now func() time.Time) *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, now: now}
}

func (f *fakeBlobs) Upload(_ context.Context, data []byte, contentType, ownerKey, filename string) (*s3.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	key := ownerKey + "/" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".png"
	f.objects[key] = data
	f.signed++
	return &s3.UploadResult{
		Key:         key,
		Bucket:      "meal-photos",
		Size:        int64(len(data)),
		ContentType: contentType,
		URL:         fmt.Sprintf("https://blobs.test/%s?sig=%d", key, f.signed),
		ExpiresAt:   f.now().Add(24 * time.Hour),
	}, nil
}

func (f *fakeBlobs) SignedURL(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr != nil {
		return "", time.Time{}, f.signErr
	}
	f.signed++
	return fmt.Sprintf("https://blobs.test/%s?sig=%d", key, f.signed), f.now().Add(ttl), nil
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "object not found")
	}
	return data, nil
}

func (f *fakeBlobs) Head(_ context.Context, key string) (*s3.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "object not found")
	}
	return &s3.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

type fakeVision struct {
	mu      sync.Mutex
	result  vision.Result
	err     error
	pingErr error
	notes   []string
}

func (f *fakeVision) Analyze(_ context.Context, req vision.Request) (vision.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, req.Note)
	if f.err != nil {
		return vision.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeVision) AnalyzeOrDefault(ctx context.Context, req vision.Request) vision.Result {
	res, err := f.Analyze(ctx, req)
	if err != nil {
		return vision.Default()
	}
	return res
}

func (f *fakeVision) Ping(context.Context) error {
	return f.pingErr
}

func foodResult(calories int) vision.Result {
	res, err := vision.Repair([]byte(fmt.Sprintf(`{"is_food":true,"food_items":["ramen"],"description":"A bowl of ramen.","calories":%d,"confidence":0.8}`, calories)))
	if err != nil {
		panic(err)
	}
	return res
}

func nonFoodResult() vision.Result {
	res, err := vision.Repair([]byte(`{"is_food":false,"description":"A cat."}`))
	if err != nil {
		panic(err)
	}
	return res
}

var errAnalysisDown = pkgerrors.New(pkgerrors.CodeAnalysis, "vision model request failed").
	WithDetails(map[string]any{"reason": "upstream"})

var errBoom = errors.New("boom")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc    *Service
	repo   *Repository
	blobs  *fakeBlobs
	vision *fakeVision
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)}
	repo := NewRepository(setupImagesTestDB(t))
	blobs := newFakeBlobs(clk.Now)
	vis := &fakeVision{result: foodResult(300)}
	svc, err := NewService(Deps{Repo: repo, Blobs: blobs, Vision: vis, MaxUploadBytes: 10 << 20})
	require.NoError(t, err)
	svc.now = clk.Now
	return &fixture{svc: svc, repo: repo, blobs: blobs, vision: vis, clock: clk}
}
