package pipeline

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"fintrack/internal/logging"
	"fintrack/internal/types"
)

// Storage is the slice of the store the executor needs.
type Storage interface {
	Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error)
	Execute(ctx context.Context, query string, args ...any) (int64, int64, error)
}

// Executor runs validated operations against storage with a bounded
// timeout and a single retry on transient failures.
type Executor struct {
	storage    Storage
	log        *zap.Logger
	timeout    time.Duration
	retryDelay time.Duration

	// Retried is invoked once per transient retry, if set.
	Retried func()
}

// NewExecutor creates an executor over the given storage.
func NewExecutor(storage Storage, log *zap.Logger) *Executor {
	return &Executor{
		storage:    storage,
		log:        logging.OrNop(log),
		timeout:    15 * time.Second,
		retryDelay: 250 * time.Millisecond,
	}
}

// Execute runs one validated operation. Mutations are detached from the
// caller's cancellation so a write either completes or fails on its own
// terms, never half-observed because the client hung up.
func (e *Executor) Execute(ctx context.Context, op types.ValidatedOperation) (types.ExecutionResult, error) {
	if op.Kind.IsMutation() {
		ctx = context.WithoutCancel(ctx)
	}

	result, err := e.attempt(ctx, op)
	if err == nil {
		return result, nil
	}

	var execErr *types.ExecutionError
	if errors.As(err, &execErr) && execErr.Cause == types.CauseTransient {
		e.log.Warn("transient storage failure, retrying",
			zap.String("table", op.Table),
			zap.Error(execErr.Err))
		if e.Retried != nil {
			e.Retried()
		}
		select {
		case <-time.After(e.retryDelay):
		case <-ctx.Done():
			return types.ExecutionResult{}, execErr
		}
		return e.attempt(ctx, op)
	}
	return types.ExecutionResult{}, err
}

func (e *Executor) attempt(ctx context.Context, op types.ValidatedOperation) (types.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if op.Kind == types.KindSelect {
		cols, rows, err := e.storage.Query(ctx, op.SQL, op.Params...)
		if err != nil {
			return types.ExecutionResult{}, classifyStorageError(err)
		}
		return types.ExecutionResult{Columns: cols, Rows: rows}, nil
	}

	affected, lastID, err := e.storage.Execute(ctx, op.SQL, op.Params...)
	if err != nil {
		return types.ExecutionResult{}, classifyStorageError(err)
	}
	return types.ExecutionResult{Affected: affected, LastInsertID: lastID}, nil
}

// classifyStorageError maps a driver failure onto the execution taxonomy.
// sqlite reports constraint violations in message text; postgres carries
// SQLSTATE codes (class 23 integrity, 08/57/53 availability).
func classifyStorageError(err error) *types.ExecutionError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return &types.ExecutionError{Cause: types.CauseConstraint, Err: err}
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "57"),
			strings.HasPrefix(pgErr.Code, "53"):
			return &types.ExecutionError{Cause: types.CauseTransient, Err: err}
		}
		return &types.ExecutionError{Cause: types.CauseUnknown, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return &types.ExecutionError{Cause: types.CauseTransient, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "constraint"):
		return &types.ExecutionError{Cause: types.CauseConstraint, Err: err}
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "timeout"):
		return &types.ExecutionError{Cause: types.CauseTransient, Err: err}
	}
	return &types.ExecutionError{Cause: types.CauseUnknown, Err: err}
}
