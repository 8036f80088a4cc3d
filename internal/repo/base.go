package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/platewise-backend/pkg/db"
)

// Base is embedded by the domain repositories. Every statement runs through
// the connection-health retry policy.
type Base struct {
	db     *gorm.DB
	policy db.RetryPolicy
}

// NewBase binds a repository to conn using db.DefaultRetryPolicy.
func NewBase(conn *gorm.DB) Base {
	return Base{db: conn, policy: db.DefaultRetryPolicy}
}

// WithPolicy returns a copy using a different retry policy.
func (b Base) WithPolicy(p db.RetryPolicy) Base {
	b.policy = p
	return b
}

// DB returns the connection bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Run executes fn against a context-bound session, retrying it when the
// connection drops. fn must be safe to repeat.
func (b Base) Run(ctx context.Context, fn func(conn *gorm.DB) error) error {
	return b.policy.Do(ctx, func(ctx context.Context) error {
		return fn(b.DB(ctx))
	})
}
