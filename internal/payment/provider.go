// Package payment wraps payment gateways behind a single capture/verify interface.
package payment

//go:generate mockgen -source=provider.go -destination=mocks/provider.go -package=mocks

import (
	"context"
	"errors"
	"fmt"

	"pledgr/internal/models"
)

type Status string

const (
	StatusCaptured Status = "captured"
	StatusPending  Status = "pending"
	StatusFailed   Status = "failed"
)

// CaptureRequest is what the ledger hands to a provider for one pledge.
type CaptureRequest struct {
	OrderID       string
	Amount        models.Money
	Currency      string
	Description   string
	CustomerName  string
	CustomerEmail string
}

// Receipt is the provider's answer for an order. Settlement only reads these fields.
type Receipt struct {
	OrderID     string
	ExternalID  string
	Amount      models.Money
	Currency    string
	Status      Status
	RedirectURL string
}

// Provider captures payments and re-verifies them on notification.
type Provider interface {
	Name() string
	Capture(ctx context.Context, req CaptureRequest) (*Receipt, error)
	Verify(ctx context.Context, orderID string) (*Receipt, error)
}

// ErrDeclined is wrapped by providers when the gateway refuses a payment.
var ErrDeclined = errors.New("payment declined")

// Error is a gateway failure with the provider's own message.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
