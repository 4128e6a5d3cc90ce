package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/KAsare1/social-api/repository"
)

// IsTransient reports whether err is worth one more attempt: lost or refused
// connections, serialization failures and deadlocks. Cancellation is not.
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
		switch pgErr.Code {
		case "40001", "40P01", "57P01":
			return true
		}
		// class 08: connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryTransient runs fn and, if it fails with a transient error, runs it
// exactly once more. A transient failure on the second attempt is reported
// as repository.ErrUnavailable.
func RetryTransient(ctx context.Context, log *zap.Logger, op string, fn func() error) error {
	err := fn()
	if !IsTransient(err) {
		return err
	}

	log.Warn("transient store error, retrying", zap.String("op", op), zap.Error(err))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	err = fn()
	if IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, repository.ErrUnavailable, err)
	}
	return err
}
