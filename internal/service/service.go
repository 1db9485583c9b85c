// Package service holds the business rules of accounts, campaigns and the
// pledge ledger. Handlers call services; services call repositories.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"pledgr/internal/apperr"
	"pledgr/internal/repository"
)

var validate = validator.New()

// withTimeout bounds one service call by the configured query timeout.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storeErr maps a repository error onto the error taxonomy. Errors that are
// already classified pass through unchanged.
func storeErr(err error, notFoundMsg string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if notFoundMsg != "" && errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, notFoundMsg, err)
	}
	return apperr.Storage("Server error.", err)
}

func isURL(s string) bool {
	return validate.Var(s, "url") == nil
}

func isEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
