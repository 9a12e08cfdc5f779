package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/novap2p/novap2p/shared/errs"
)

// PostgreSQL error codes the repositories react to.
const (
	codeUniqueViolation = "23505"
	codeUndefinedTable  = "42P01"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}

// IsUnavailable reports whether err means the store cannot serve any request:
// the table is missing or the connection is gone.
func IsUnavailable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeUndefinedTable
	}
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr)
}

// Wrap annotates err with op, turning store outages into errs.ErrStoreUnavailable.
func Wrap(op string, err error) error {
	if IsUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, errs.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
