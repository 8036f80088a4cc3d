package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBase     = 100 * time.Millisecond
)

// RetryPolicy bounds how connection failures are retried.
type RetryPolicy struct {
	Attempts uint64
	Base     time.Duration
}

// DefaultRetryPolicy is used by Retry.
var DefaultRetryPolicy = RetryPolicy{Attempts: defaultRetryAttempts, Base: defaultRetryBase}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = defaultRetryBase
	}
	return retry.WithMaxRetries(p.Attempts, retry.NewExponential(base))
}

// Retry runs fn with DefaultRetryPolicy.
func Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	return DefaultRetryPolicy.Do(ctx, fn)
}

// Do runs fn, retrying with exponential backoff only while it fails with a
// connection-class error. Any other error is returned on the first attempt.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsTransient reports whether err looks like a dropped or refused connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
