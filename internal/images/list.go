package images

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/pagination"
	"github.com/angelmondragon/platewise-backend/pkg/timewindow"
)

// ListParams configures image listing.
type ListParams struct {
	Limit  int
	Cursor string
	Filter timewindow.Filter
}

// ListResult is one page of images.
type ListResult struct {
	Items  []*Image `json:"items"`
	Cursor string   `json:"cursor"`
}

// List pages through the owner's images, newest first. At most one of the
// day/week/month filters applies; signed URLs are refreshed concurrently and
// a failed refresh only drops that item's URL.
func (s *Service) List(ctx context.Context, ownerID string, params ListParams) (*ListResult, error) {
	if ownerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, listQuery{
		ownerID: ownerID,
		window:  timewindow.Resolve(params.Filter),
		limit:   pagination.LimitWithBuffer(params.Limit),
		cursor:  cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list images")
	}
	rows, next := pagination.Page(rows, params.Limit, func(r models.ImageRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.listWorkers)
	for i := range rows {
		rec := &rows[i]
		g.Go(func() error {
			if err := s.ensureFreshURL(gctx, rec); err != nil {
				s.logg.Warn(s.logg.WithImageID(ctx, rec.ID.String()), "images.presign_refresh_failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	items := make([]*Image, len(rows))
	for i := range rows {
		items[i] = s.toImage(&rows[i])
	}
	return &ListResult{Items: items, Cursor: next}, nil
}
