package payment

import (
	"context"
	"fmt"
	"log"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"pledgr/internal/models"
)

// MidtransCurrency is the only currency Snap charges in.
const MidtransCurrency = "IDR"

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type coreAPI interface {
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// Midtrans creates Snap payment links and re-checks orders through the Core API.
// Capture always answers pending: the payer finishes on the redirect URL and
// the webhook reports the outcome.
type Midtrans struct {
	snap snapAPI
	core coreAPI
}

func NewMidtrans(serverKey, env string) *Midtrans {
	environment := midtrans.Sandbox
	if env == "production" {
		environment = midtrans.Production
	}

	var s snap.Client
	s.New(serverKey, environment)

	var c coreapi.Client
	c.New(serverKey, environment)

	return &Midtrans{snap: &s, core: &c}
}

func (m *Midtrans) Name() string {
	return "midtrans"
}

func (m *Midtrans) Capture(ctx context.Context, req CaptureRequest) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Midtrans charges whole currency units.
	if req.Amount <= 0 || req.Amount%100 != 0 {
		return nil, &Error{Provider: m.Name(), Message: "amount must be a positive whole number", Err: ErrDeclined}
	}
	if req.Currency != "" && req.Currency != MidtransCurrency {
		return nil, &Error{Provider: m.Name(), Message: "unsupported currency " + req.Currency, Err: ErrDeclined}
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: int64(req.Amount) / 100,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.CustomerEmail,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.OrderID,
				Price: int64(req.Amount) / 100,
				Qty:   1,
				Name:  req.Description,
			},
		},
	}

	snapResp, mErr := m.snap.CreateTransaction(snapReq)
	if snapResp == nil || snapResp.RedirectURL == "" {
		return nil, m.wrap("failed to create transaction", mErr)
	}
	if mErr != nil {
		log.Printf("Midtrans returned a redirect URL but also an error: %s", mErr.Message)
	}

	return &Receipt{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    MidtransCurrency,
		Status:      StatusPending,
		RedirectURL: snapResp.RedirectURL,
	}, nil
}

func (m *Midtrans) Verify(ctx context.Context, orderID string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	apiResp, mErr := m.core.CheckTransaction(orderID)
	if apiResp == nil {
		return nil, m.wrap("failed to verify transaction", mErr)
	}
	if mErr != nil {
		log.Printf("Midtrans Core API returned a response but also an error: %s", mErr.Message)
	}

	amount, err := models.ParseMoney(apiResp.GrossAmount)
	if err != nil {
		return nil, &Error{Provider: m.Name(), Message: "invalid gross amount " + apiResp.GrossAmount, Err: err}
	}

	return &Receipt{
		OrderID:    apiResp.OrderID,
		ExternalID: apiResp.TransactionID,
		Amount:     amount,
		Currency:   apiResp.Currency,
		Status:     midtransStatus(apiResp.TransactionStatus, apiResp.FraudStatus),
	}, nil
}

func (m *Midtrans) wrap(msg string, mErr *midtrans.Error) error {
	if mErr == nil {
		return &Error{Provider: m.Name(), Message: msg}
	}
	return &Error{
		Provider:   m.Name(),
		StatusCode: mErr.StatusCode,
		Message:    fmt.Sprintf("%s: %s", msg, mErr.Message),
		Err:        mErr.RawError,
	}
}

// midtransStatus maps transaction_status and fraud_status onto a Receipt status.
func midtransStatus(transactionStatus, fraudStatus string) Status {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "challenge" {
			return StatusPending
		}
		return StatusCaptured
	case "settlement":
		return StatusCaptured
	case "deny", "cancel", "expire", "failure":
		return StatusFailed
	default:
		return StatusPending
	}
}
