// Package images owns uploaded food photos: blob storage, the persisted
// record, its analysis and the cached signed read URL.
package images

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/platewise-backend/internal/ingest"
	"github.com/angelmondragon/platewise-backend/internal/vision"
	"github.com/angelmondragon/platewise-backend/pkg/db"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/storage/s3"
)

const defaultPresignTTL = 24 * time.Hour

type recordStore interface {
	Create(ctx context.Context, rec *models.ImageRecord) error
	FindForOwner(ctx context.Context, id uuid.UUID, ownerID string) (*models.ImageRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ImageRecord, error)
	List(ctx context.Context, q listQuery) ([]models.ImageRecord, error)
	Delete(ctx context.Context, id uuid.UUID, ownerID string) (bool, error)
	AttachAnalysis(ctx context.Context, id uuid.UUID, result vision.Result, completedAt time.Time) error
	SetIsMeal(ctx context.Context, id uuid.UUID, ownerID string, value bool) error
	UpdatePresignedURL(ctx context.Context, id uuid.UUID, url string, expiresAt time.Time) error
	ListPendingAnalysis(ctx context.Context, before time.Time, limit int) ([]models.ImageRecord, error)
}

type blobStore interface {
	Upload(ctx context.Context, data []byte, contentType, ownerKey, filename string) (*s3.UploadResult, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (*s3.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

type analyzer interface {
	Analyze(ctx context.Context, req vision.Request) (vision.Result, error)
	AnalyzeOrDefault(ctx context.Context, req vision.Request) vision.Result
	Ping(ctx context.Context) error
}

// Deps wires the service.
type Deps struct {
	Repo           recordStore
	Blobs          blobStore
	Vision         analyzer
	Logger         *logger.Logger
	Limits         ingest.Limits
	MaxUploadBytes int64
	PresignTTL     time.Duration
	ListWorkers    int
}

// Service implements the image use cases.
type Service struct {
	repo        recordStore
	blobs       blobStore
	vision      analyzer
	logg        *logger.Logger
	limits      ingest.Limits
	maxBytes    int64
	presignTTL  time.Duration
	listWorkers int
	now         func() time.Time
	prepare     func(*ingest.Image, ingest.Limits) ([]byte, string, error)
}

// NewService validates deps and builds the service.
func NewService(d Deps) (*Service, error) {
	if d.Repo == nil {
		return nil, fmt.Errorf("image repository required")
	}
	if d.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if d.Vision == nil {
		return nil, fmt.Errorf("vision client required")
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.PresignTTL <= 0 {
		d.PresignTTL = defaultPresignTTL
	}
	if d.ListWorkers <= 0 {
		d.ListWorkers = 8
	}
	return &Service{
		repo:        d.Repo,
		blobs:       d.Blobs,
		vision:      d.Vision,
		logg:        d.Logger,
		limits:      d.Limits,
		maxBytes:    d.MaxUploadBytes,
		presignTTL:  d.PresignTTL,
		listWorkers: d.ListWorkers,
		now:         time.Now,
		prepare:     ingest.PrepareForAnalysis,
	}, nil
}

// UploadInput is one authenticated upload.
type UploadInput struct {
	File ingest.Upload
	Note string
}

// Upload stores the photo, commits the record and then analyzes it. If the
// row insert fails the blob is removed again. If analysis fails the record is
// kept with empty analysis fields for the retry job to pick up; the same
// holds when the committed image cannot be prepared for the model.
func (s *Service) Upload(ctx context.Context, ownerID string, in UploadInput) (*Image, error) {
	img, rec, err := s.store(ctx, ownerID, in.File)
	if err != nil {
		return nil, err
	}

	data, mimeType, err := s.prepare(img, s.limits)
	if err != nil {
		pctx := s.logg.WithFields(ctx, map[string]any{"image_id": rec.ID.String()})
		s.logg.Error(pctx, "images.prepare_failed", err)
		return s.toImage(rec), nil
	}
	result, err := s.vision.Analyze(ctx, vision.Request{Data: data, MIMEType: mimeType, Note: in.Note})
	if err != nil {
		actx := s.logg.WithFields(ctx, map[string]any{
			"image_id": rec.ID.String(),
			"reason":   string(vision.ReasonOf(err)),
		})
		s.logg.Warn(actx, "images.analysis_deferred")
		return s.toImage(rec), nil
	}
	if err := s.attach(ctx, rec, withNote(result, in.Note)); err != nil {
		return nil, err
	}
	return s.toImage(rec), nil
}

// UploadWithAnalysis stores the photo together with an analysis the client
// already has, e.g. from a preview. The analysis is repaired first.
func (s *Service) UploadWithAnalysis(ctx context.Context, ownerID string, file ingest.Upload, analysisJSON []byte) (*Image, error) {
	result, err := vision.Repair(analysisJSON)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "analysis must be a JSON object")
	}
	_, rec, err := s.store(ctx, ownerID, file)
	if err != nil {
		return nil, err
	}
	if err := s.attach(ctx, rec, result); err != nil {
		return nil, err
	}
	return s.toImage(rec), nil
}

// AnalyzeOnly runs a best-effort analysis without storing anything.
func (s *Service) AnalyzeOnly(ctx context.Context, file ingest.Upload, note string, maxBytes int64) (vision.Result, error) {
	if maxBytes <= 0 {
		maxBytes = s.maxBytes
	}
	img, err := ingest.Validate(file, maxBytes)
	if err != nil {
		return vision.Result{}, err
	}
	data, mimeType, err := s.prepare(img, s.limits)
	if err != nil {
		return vision.Result{}, err
	}
	return s.vision.AnalyzeOrDefault(ctx, vision.Request{Data: data, MIMEType: mimeType, Note: note}), nil
}

// Get returns an owned record, refreshing its signed URL when it expired.
func (s *Service) Get(ctx context.Context, ownerID string, id uuid.UUID) (*Image, error) {
	rec, err := s.find(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFreshURL(ctx, rec); err != nil {
		return nil, err
	}
	return s.toImage(rec), nil
}

// Delete removes the record, then the blob. Blob failures are only logged.
func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	rec, err := s.find(ctx, ownerID, id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete image")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "image not found")
	}
	if err := s.blobs.Delete(ctx, rec.StorageKey); err != nil {
		bctx := s.logg.WithFields(ctx, map[string]any{"image_id": id.String(), "storage_key": rec.StorageKey})
		s.logg.Error(bctx, "images.blob_delete_failed", err)
	}
	return nil
}

// SetIsMeal flags or unflags a record as a meal. Only food images can be
// meals; repeating the current value is a no-op.
func (s *Service) SetIsMeal(ctx context.Context, ownerID string, id uuid.UUID, value bool) (*Image, error) {
	rec, err := s.find(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if value && !rec.IsFoodImage() {
		return nil, pkgerrors.New(pkgerrors.CodeInvariant, "only food images can be marked as meals").
			WithDetails(map[string]any{"is_food": rec.IsFood})
	}
	if rec.IsMeal != value {
		if err := s.repo.SetIsMeal(ctx, id, ownerID, value); err != nil {
			return nil, mapRepoError(err, "update meal flag")
		}
		rec.IsMeal = value
	}
	return s.toImage(rec), nil
}

// Reanalyze fetches the stored blob and runs the analysis again. Analysis
// errors are returned to the caller.
func (s *Service) Reanalyze(ctx context.Context, ownerID string, id uuid.UUID, note string) (*Image, error) {
	rec, err := s.find(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	result, err := s.analyzeStored(ctx, rec, note)
	if err != nil {
		return nil, err
	}
	if err := s.attach(ctx, rec, withNote(result, note)); err != nil {
		return nil, err
	}
	return s.toImage(rec), nil
}

// RetryPendingAnalysis analyzes records that were stored without an analysis
// and are older than minAge. One failing record does not stop the batch.
func (s *Service) RetryPendingAnalysis(ctx context.Context, minAge time.Duration, limit int) (analyzed, failed int, err error) {
	pending, err := s.repo.ListPendingAnalysis(ctx, s.now().Add(-minAge), limit)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending analysis")
	}
	for i := range pending {
		rec := &pending[i]
		if ctx.Err() != nil {
			return analyzed, failed, ctx.Err()
		}
		result, aerr := s.analyzeStored(ctx, rec, "")
		if aerr == nil {
			aerr = s.attach(ctx, rec, result)
		}
		if aerr != nil {
			failed++
			rctx := s.logg.WithFields(ctx, map[string]any{"image_id": rec.ID.String(), "owner_id": rec.OwnerID})
			s.logg.Error(rctx, "images.analysis_retry_failed", aerr)
			continue
		}
		analyzed++
	}
	return analyzed, failed, nil
}

func (s *Service) store(ctx context.Context, ownerID string, file ingest.Upload) (*ingest.Image, *models.ImageRecord, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	img, err := ingest.Validate(file, s.maxBytes)
	if err != nil {
		return nil, nil, err
	}

	uploaded, err := s.blobs.Upload(ctx, img.Data, img.MIMEType, ownerID, img.FileName)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, nil, err
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "upload image")
	}

	url := uploaded.URL
	expires := uploaded.ExpiresAt.UTC()
	rec := &models.ImageRecord{
		ID:                    uuid.New(),
		OwnerID:               ownerID,
		FileName:              fileNameOrKey(img.FileName, uploaded.Key),
		StorageKey:            uploaded.Key,
		StorageBucket:         uploaded.Bucket,
		SizeBytes:             uploaded.Size,
		ContentType:           img.MIMEType,
		PresignedURL:          &url,
		PresignedURLExpiresAt: &expires,
		CreatedAt:             s.now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		if derr := s.blobs.Delete(ctx, uploaded.Key); derr != nil {
			s.logg.Error(s.logg.WithField(ctx, "storage_key", uploaded.Key), "images.blob_rollback_failed", derr)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create image record")
	}
	return img, rec, nil
}

func (s *Service) analyzeStored(ctx context.Context, rec *models.ImageRecord, note string) (vision.Result, error) {
	data, err := s.blobs.Get(ctx, rec.StorageKey)
	if err != nil {
		return vision.Result{}, err
	}
	img, err := ingest.Validate(ingest.Upload{Data: data, DeclaredType: rec.ContentType, FileName: rec.FileName}, 0)
	if err != nil {
		return vision.Result{}, err
	}
	prepared, mimeType, err := s.prepare(img, s.limits)
	if err != nil {
		return vision.Result{}, err
	}
	return s.vision.Analyze(ctx, vision.Request{Data: prepared, MIMEType: mimeType, Note: note})
}

func (s *Service) attach(ctx context.Context, rec *models.ImageRecord, result vision.Result) error {
	completed := s.now().UTC()
	if err := s.repo.AttachAnalysis(ctx, rec.ID, result, completed); err != nil {
		return mapRepoError(err, "attach analysis")
	}
	applyResult(rec, result, completed)
	return nil
}

func (s *Service) find(ctx context.Context, ownerID string, id uuid.UUID) (*models.ImageRecord, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	rec, err := s.repo.FindForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, mapRepoError(err, "load image")
	}
	return rec, nil
}

// ensureFreshURL keeps a cached URL that has not expired yet and otherwise
// signs and persists a new one.
func (s *Service) ensureFreshURL(ctx context.Context, rec *models.ImageRecord) error {
	now := s.now()
	if rec.PresignedURL != nil && rec.PresignedURLExpiresAt != nil && rec.PresignedURLExpiresAt.After(now) {
		return nil
	}
	url, expires, err := s.blobs.SignedURL(ctx, rec.StorageKey, s.presignTTL)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePresignedURL(ctx, rec.ID, url, expires); err != nil {
		return mapRepoError(err, "cache signed url")
	}
	expires = expires.UTC()
	rec.PresignedURL = &url
	rec.PresignedURLExpiresAt = &expires
	return nil
}

func mapRepoError(err error, msg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "image not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

// withNote appends the user's note to the model description.
func withNote(result vision.Result, note string) vision.Result {
	note = strings.TrimSpace(note)
	if note != "" {
		result.Description = fmt.Sprintf("%s (User note: %s)", result.Description, note)
	}
	return result
}

func fileNameOrKey(name, key string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
