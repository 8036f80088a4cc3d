package images

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/platewise-backend/internal/vision"
)

// Check is the outcome of one diagnostic probe.
type Check struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Diagnostics reports whether an image can be served and re-analyzed.
type Diagnostics struct {
	ImageID     uuid.UUID `json:"image_id"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Checks      []Check   `json:"checks"`
	Healthy     bool      `json:"healthy"`
}

// Diagnose probes the blob (head and read) and the vision model. Probe
// failures are reported in the result; the returned error combines them.
func (s *Service) Diagnose(ctx context.Context, ownerID string, id uuid.UUID) (*Diagnostics, error) {
	rec, err := s.find(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	diag := &Diagnostics{
		ImageID:     rec.ID,
		StorageKey:  rec.StorageKey,
		ContentType: rec.ContentType,
		SizeBytes:   rec.SizeBytes,
	}

	var combined error
	probe := func(name string, fn func() error) {
		started := s.now()
		perr := fn()
		check := Check{Name: name, OK: perr == nil, DurationMS: s.now().Sub(started).Milliseconds()}
		if perr != nil {
			check.Error = perr.Error()
			combined = multierr.Append(combined, perr)
		}
		diag.Checks = append(diag.Checks, check)
	}

	probe("blob_head", func() error {
		_, err := s.blobs.Head(ctx, rec.StorageKey)
		return err
	})
	probe("blob_read", func() error {
		_, err := s.blobs.Get(ctx, rec.StorageKey)
		return err
	})
	probe("vision_ping", func() error {
		pctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return s.vision.Ping(pctx)
	})

	diag.Healthy = combined == nil
	if combined != nil {
		dctx := s.logg.WithFields(ctx, map[string]any{
			"image_id": rec.ID.String(),
			"failures": len(multierr.Errors(combined)),
			"reason":   string(vision.ReasonOf(combined)),
		})
		s.logg.Warn(dctx, "images.diagnostics_failed")
	}
	return diag, combined
}
