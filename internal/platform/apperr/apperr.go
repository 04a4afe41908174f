// Package apperr defines the error kinds shared by the domain services and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

// Kind classifies a failure.
type Kind int

const (
	Internal Kind = iota
	InvalidArgument
	NotFound
	Forbidden
	InvalidState
	Conflict
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case InvalidState:
		return "invalid_state"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error carries a Kind, a client-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrInvalidArgument = &Error{Kind: InvalidArgument}
	ErrNotFound        = &Error{Kind: NotFound}
	ErrForbidden       = &Error{Kind: Forbidden}
	ErrInvalidState    = &Error{Kind: InvalidState}
	ErrConflict        = &Error{Kind: Conflict}
	ErrInternal        = &Error{Kind: Internal}
)

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidArgumentf(format string, args ...interface{}) *Error {
	return New(InvalidArgument, format, args...)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

func Forbiddenf(format string, args ...interface{}) *Error {
	return New(Forbidden, format, args...)
}

func InvalidStatef(format string, args ...interface{}) *Error {
	return New(InvalidState, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return New(Conflict, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Postgres SQLSTATE codes translated by FromDB.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
	pgInvalidTextRepr     = "22P02"
)

// FromDB translates driver errors into the taxonomy. what names the entity
// ("refill request", "order") for NotFound messages. Errors that already carry
// a Kind and unknown errors pass through unchanged.
func FromDB(err error, what string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(NotFound, err, what+" not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Wrap(Conflict, err, what+" already exists")
		case pgForeignKeyViolation:
			return Wrap(InvalidArgument, err, what+" references a missing record")
		case pgNotNullViolation, pgCheckViolation, pgInvalidTextRepr:
			return Wrap(InvalidArgument, err, what+" failed validation")
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation on the named constraint (any constraint when name is empty).
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// HTTPStatus maps a Kind to a status code. InvalidState and Conflict are
// reported as 400 to keep the response codes existing clients depend on.
func HTTPStatus(k Kind) int {
	switch k {
	case InvalidArgument, InvalidState, Conflict:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into an *echo.HTTPError carrying err as its internal
// cause. Existing echo errors are returned as-is.
func HTTPError(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	kind := KindOf(err)
	return echo.NewHTTPError(HTTPStatus(kind), map[string]string{
		"error": err.Error(),
		"code":  kind.String(),
	}).SetInternal(err)
}
