package payment

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Sandbox captures every payment immediately. It never charges anyone and
// remembers receipts so Verify can answer for orders it captured.
type Sandbox struct {
	mu       sync.Mutex
	receipts map[string]Receipt
}

func NewSandbox() *Sandbox {
	return &Sandbox{receipts: make(map[string]Receipt)}
}

func (s *Sandbox) Name() string {
	return "sandbox"
}

func (s *Sandbox) Capture(ctx context.Context, req CaptureRequest) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, &Error{Provider: s.Name(), Message: "amount must be positive", Err: ErrDeclined}
	}

	receipt := Receipt{
		OrderID:    req.OrderID,
		ExternalID: "sandbox-" + uuid.NewString(),
		Amount:     req.Amount,
		Currency:   req.Currency,
		Status:     StatusCaptured,
	}

	s.mu.Lock()
	s.receipts[req.OrderID] = receipt
	s.mu.Unlock()

	log.Printf("Sandbox captured %s %s for order %s", req.Amount, req.Currency, req.OrderID)
	return &receipt, nil
}

func (s *Sandbox) Verify(ctx context.Context, orderID string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	receipt, ok := s.receipts[orderID]
	s.mu.Unlock()

	if !ok {
		return nil, &Error{Provider: s.Name(), StatusCode: 404, Message: "transaction not found", Err: errors.New(orderID)}
	}
	return &receipt, nil
}
