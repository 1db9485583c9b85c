package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pledgr/internal/apperr"
	"pledgr/internal/metrics"
	"pledgr/internal/models"
	"pledgr/internal/payment"
	"pledgr/internal/repository"
)

// PledgeInput is a supporter's pledge request. A nil LevelID is a free-amount
// pledge; with a level and no Amount the level's amount is used.
type PledgeInput struct {
	CampaignID int64
	LevelID    *int64
	Amount     models.Money
}

// PledgeResult is what CreatePledge hands back. Settlement is set once the
// payment was captured; RedirectURL while the payer still has to finish.
type PledgeResult struct {
	Pledge      *models.Pledge     `json:"pledge"`
	Settlement  *models.Settlement `json:"settlement,omitempty"`
	RedirectURL string             `json:"redirect_url,omitempty"`
	Currency    string             `json:"currency"`
}

// Webhook outcomes.
const (
	NotificationCompleted = "completed"
	NotificationDuplicate = "duplicate"
	NotificationCancelled = "cancelled"
	NotificationPending   = "pending"
	NotificationIgnored   = "ignored"
	// NotificationRefundDue acknowledges a capture for a pledge that was
	// already cancelled. The money has to be returned outside the ledger.
	NotificationRefundDue = "refund_due"
)

type PledgeService struct {
	db          *sqlx.DB
	pledges     *repository.PledgeRepository
	campaigns   *repository.CampaignRepository
	users       *repository.UserRepository
	settlements *repository.SettlementRepository
	provider    payment.Provider
	feePercent  decimal.Decimal
	currency    string
	timeout     time.Duration
}

func NewPledgeService(db *sqlx.DB, provider payment.Provider, feePercent decimal.Decimal, currency string, timeout time.Duration) *PledgeService {
	return &PledgeService{
		db:          db,
		pledges:     repository.NewPledgeRepository(),
		campaigns:   repository.NewCampaignRepository(),
		users:       repository.NewUserRepository(),
		settlements: repository.NewSettlementRepository(),
		provider:    provider,
		feePercent:  feePercent,
		currency:    currency,
		timeout:     timeout,
	}
}

// CreatePledge records an active pledge and asks the payment provider to
// capture it. A captured payment completes and settles the pledge before
// returning; a failed one cancels it.
func (s *PledgeService) CreatePledge(ctx context.Context, userID int64, in PledgeInput) (*PledgeResult, error) {
	start := time.Now()
	status := "failed"
	defer func() {
		metrics.RecordPledgeDuration(status, time.Since(start).Seconds())
	}()

	if in.Amount < 0 || (in.Amount == 0 && in.LevelID == nil) {
		return nil, apperr.Validation("amount must be greater than zero")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	campaign, err := s.campaigns.GetCampaign(ctx, s.db, in.CampaignID)
	if err != nil {
		return nil, storeErr(err, "campaign not found")
	}

	if in.LevelID != nil {
		level, err := s.campaigns.GetLevel(ctx, s.db, *in.LevelID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.Validation("pledge level does not exist")
			}
			return nil, storeErr(err, "")
		}
		if level.CampaignID != campaign.ID {
			return nil, apperr.Validation("pledge level does not belong to this campaign")
		}
		if in.Amount == 0 {
			in.Amount = level.Amount
		}
	}

	user, err := s.users.GetUserByID(ctx, s.db, userID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}

	pledge := &models.Pledge{
		UserID:          userID,
		CampaignID:      campaign.ID,
		LevelID:         in.LevelID,
		Amount:          in.Amount,
		Status:          models.PledgeActive,
		OrderID:         "PLEDGE-" + uuid.NewString(),
		PaymentProvider: s.provider.Name(),
	}
	if err := s.pledges.CreatePledge(ctx, s.db, pledge); err != nil {
		return nil, storeErr(err, "")
	}

	receipt, err := s.provider.Capture(ctx, payment.CaptureRequest{
		OrderID:       pledge.OrderID,
		Amount:        pledge.Amount,
		Currency:      s.currency,
		Description:   "Pledge to " + campaign.Name,
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
	})
	if err != nil {
		log.Printf("Payment capture failed for order %s: %v", pledge.OrderID, err)
		s.cancelAfterPaymentFailure(ctx, pledge)
		return nil, apperr.Wrap(apperr.KindPayment, "payment could not be processed", err)
	}

	switch receipt.Status {
	case payment.StatusCaptured:
		// The money has moved. Completion gets its own budget even when the
		// capture used up the caller's.
		finishCtx, finish := withTimeout(context.WithoutCancel(ctx), s.timeout)
		defer finish()

		completed, settlement, err := s.complete(finishCtx, pledge.ID, receipt)
		if err != nil {
			s.recordCapture(ctx, pledge, receipt, err)
			status = "captured"
			return nil, apperr.Wrap(apperr.KindOf(err), "payment was captured but the pledge could not be completed", err)
		}
		status = "completed"
		return &PledgeResult{Pledge: completed, Settlement: settlement, Currency: s.currency}, nil

	case payment.StatusPending:
		status = "pending"
		return &PledgeResult{Pledge: pledge, RedirectURL: receipt.RedirectURL, Currency: s.currency}, nil

	default:
		s.cancelAfterPaymentFailure(ctx, pledge)
		return nil, apperr.New(apperr.KindPayment, "payment was declined")
	}
}

// CompletePledge marks an active pledge completed and records its settlement
// in the same transaction. Completing a completed pledge is a no-op.
func (s *PledgeService) CompletePledge(ctx context.Context, pledgeID int64, receipt *payment.Receipt) (*models.Pledge, *models.Settlement, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.complete(ctx, pledgeID, receipt)
}

func (s *PledgeService) complete(ctx context.Context, pledgeID int64, receipt *payment.Receipt) (*models.Pledge, *models.Settlement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, storeErr(fmt.Errorf("failed to begin transaction: %w", err), "")
	}
	defer tx.Rollback()

	pledge, err := s.pledges.GetPledge(ctx, tx, pledgeID)
	if err != nil {
		return nil, nil, storeErr(err, "pledge not found")
	}
	if receipt.Amount != pledge.Amount {
		return nil, nil, apperr.Validation(fmt.Sprintf("payment amount %s does not match pledge amount %s", receipt.Amount, pledge.Amount))
	}
	if receipt.Currency != "" && s.currency != "" && receipt.Currency != s.currency {
		return nil, nil, apperr.Validation(fmt.Sprintf("payment currency %s does not match %s", receipt.Currency, s.currency))
	}

	if pledge.Status == models.PledgeActive {
		changed, err := s.pledges.TransitionStatus(ctx, tx, pledge.ID, models.PledgeActive, models.PledgeCompleted, receipt.ExternalID)
		if err != nil {
			return nil, nil, storeErr(err, "")
		}
		if !changed {
			// Someone else moved it first; decide on the stored status.
			if pledge, err = s.pledges.GetPledge(ctx, tx, pledgeID); err != nil {
				return nil, nil, storeErr(err, "pledge not found")
			}
		} else {
			pledge.Status = models.PledgeCompleted
			pledge.TransactionID = receipt.ExternalID
		}
	}
	if pledge.Status != models.PledgeCompleted {
		return nil, nil, apperr.InvalidState("pledge is " + string(pledge.Status) + " and cannot be completed")
	}

	settlement, created, err := s.settle(ctx, tx, pledge)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, storeErr(fmt.Errorf("failed to commit transaction: %w", err), "")
	}

	if created {
		metrics.RecordSettlement(int64(settlement.PlatformFee))
		log.Printf("Settled pledge %d: gross %s, fee %s, payout %s", pledge.ID, settlement.Gross, settlement.PlatformFee, settlement.Payout)
	}
	return pledge, settlement, nil
}

// FailPledge cancels an active pledge whose payment failed. Failing a
// cancelled pledge again is a no-op.
func (s *PledgeService) FailPledge(ctx context.Context, pledgeID int64) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.fail(ctx, pledgeID)
}

func (s *PledgeService) fail(ctx context.Context, pledgeID int64) error {
	changed, err := s.pledges.TransitionStatus(ctx, s.db, pledgeID, models.PledgeActive, models.PledgeCancelled, "")
	if err != nil {
		return storeErr(err, "")
	}
	if changed {
		return nil
	}

	pledge, err := s.pledges.GetPledge(ctx, s.db, pledgeID)
	if err != nil {
		return storeErr(err, "pledge not found")
	}
	if pledge.Status == models.PledgeCancelled {
		return nil
	}
	return apperr.InvalidState("pledge is " + string(pledge.Status) + " and cannot be failed")
}

// SettleFee records the fee split of a completed pledge. It returns the
// existing record when one is already stored.
func (s *PledgeService) SettleFee(ctx context.Context, pledgeID int64) (*models.Settlement, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	pledge, err := s.pledges.GetPledge(ctx, s.db, pledgeID)
	if err != nil {
		return nil, storeErr(err, "pledge not found")
	}
	if pledge.Status != models.PledgeCompleted {
		return nil, apperr.InvalidState("only completed pledges can be settled")
	}

	settlement, created, err := s.settle(ctx, s.db, pledge)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.RecordSettlement(int64(settlement.PlatformFee))
	}
	return settlement, nil
}

func (s *PledgeService) settle(ctx context.Context, db repository.DBExecutor, pledge *models.Pledge) (*models.Settlement, bool, error) {
	split := ComputeFee(pledge.Amount, s.feePercent)

	created, err := s.settlements.InsertIfAbsent(ctx, db, &models.Settlement{
		PledgeID:    pledge.ID,
		CampaignID:  pledge.CampaignID,
		Gross:       split.Gross,
		PlatformFee: split.Fee,
		Payout:      split.Payout,
		FeePercent:  s.feePercent,
		Status:      models.SettlementPending,
	})
	if err != nil {
		return nil, false, storeErr(err, "")
	}

	settlement, err := s.settlements.GetByPledgeID(ctx, db, pledge.ID)
	if err != nil {
		return nil, false, storeErr(err, "")
	}
	return settlement, created, nil
}

// CancelPledge cancels the requester's own active pledge.
func (s *PledgeService) CancelPledge(ctx context.Context, pledgeID, requesterID int64) (*models.Pledge, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	pledge, err := s.pledges.GetPledge(ctx, s.db, pledgeID)
	if err != nil {
		return nil, storeErr(err, "pledge not found")
	}
	if pledge.UserID != requesterID {
		return nil, apperr.Authorization("you can only cancel your own pledges")
	}
	if pledge.Status != models.PledgeActive {
		return nil, apperr.InvalidState("only active pledges can be cancelled")
	}

	changed, err := s.pledges.TransitionStatus(ctx, s.db, pledge.ID, models.PledgeActive, models.PledgeCancelled, "")
	if err != nil {
		return nil, storeErr(err, "")
	}
	if !changed {
		return nil, apperr.InvalidState("pledge is no longer active")
	}

	pledge.Status = models.PledgeCancelled
	return pledge, nil
}

func (s *PledgeService) ListPledgesForUser(ctx context.Context, userID int64) ([]models.Pledge, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	pledges, err := s.pledges.ListPledgesForUser(ctx, s.db, userID)
	if err != nil {
		return nil, storeErr(err, "")
	}
	return pledges, nil
}

// AggregateForCampaign sums the active and completed pledges of a campaign.
func (s *PledgeService) AggregateForCampaign(ctx context.Context, campaignID int64) (*models.Aggregate, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.campaigns.GetCampaignOwner(ctx, s.db, campaignID); err != nil {
		return nil, storeErr(err, "campaign not found")
	}
	agg, err := s.campaigns.AggregateForCampaign(ctx, s.db, campaignID)
	if err != nil {
		return nil, storeErr(err, "")
	}
	return agg, nil
}

// HandlePaymentNotification re-checks an order with the provider and applies
// the verified outcome. The notification body itself is never trusted.
func (s *PledgeService) HandlePaymentNotification(ctx context.Context, orderID string) (string, error) {
	if orderID == "" {
		return "", apperr.Validation("order_id is required")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	pledge, err := s.pledges.GetPledgeByOrderID(ctx, s.db, orderID)
	if err != nil {
		return "", storeErr(err, "pledge not found")
	}

	receipt, err := s.provider.Verify(ctx, orderID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindPayment, "could not verify the transaction", err)
	}

	switch receipt.Status {
	case payment.StatusCaptured:
		if pledge.Status == models.PledgeCompleted {
			log.Println("Duplicate payment notification, already completed:", orderID)
			return NotificationDuplicate, nil
		}
		if pledge.Status == models.PledgeCancelled {
			log.Printf("Payment %s captured for cancelled pledge %d (order %s, amount %s): refund it through %s, the ledger will not complete it",
				receipt.ExternalID, pledge.ID, orderID, receipt.Amount, s.provider.Name())
			return NotificationRefundDue, nil
		}
		if _, _, err := s.complete(ctx, pledge.ID, receipt); err != nil {
			return "", err
		}
		return NotificationCompleted, nil

	case payment.StatusFailed:
		if pledge.Status == models.PledgeCompleted {
			log.Println("Ignoring failure notification for completed order:", orderID)
			return NotificationIgnored, nil
		}
		if err := s.fail(ctx, pledge.ID); err != nil {
			return "", err
		}
		return NotificationCancelled, nil

	default:
		return NotificationPending, nil
	}
}

// MarkSettlementsPaid records that the pending payouts of a campaign were paid out.
func (s *PledgeService) MarkSettlementsPaid(ctx context.Context, campaignID int64) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.campaigns.GetCampaignOwner(ctx, s.db, campaignID); err != nil {
		return 0, storeErr(err, "campaign not found")
	}
	n, err := s.settlements.MarkPaid(ctx, s.db, campaignID)
	if err != nil {
		return 0, storeErr(err, "")
	}
	return n, nil
}

// cancelAfterPaymentFailure cancels on its own budget, independent of ctx's deadline.
func (s *PledgeService) cancelAfterPaymentFailure(ctx context.Context, pledge *models.Pledge) {
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.fail(ctx, pledge.ID); err != nil {
		log.Printf("Failed to cancel pledge %d after payment failure: %v", pledge.ID, err)
		return
	}
	pledge.Status = models.PledgeCancelled
}

// recordCapture keeps the gateway's transaction id on a pledge whose
// completion failed after the money was captured. The pledge stays active, so
// the next verified notification completes and settles it.
func (s *PledgeService) recordCapture(ctx context.Context, pledge *models.Pledge, receipt *payment.Receipt, cause error) {
	if apperr.Is(cause, apperr.KindInvalidState) {
		log.Printf("Payment %s for order %s was captured but pledge %d is no longer active: refund it through %s",
			receipt.ExternalID, pledge.OrderID, pledge.ID, s.provider.Name())
		return
	}

	ctx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	log.Printf("Payment %s for order %s was captured but pledge %d was not completed: %v",
		receipt.ExternalID, pledge.OrderID, pledge.ID, cause)
	if receipt.ExternalID == "" {
		return
	}
	if _, err := s.pledges.RecordTransactionID(ctx, s.db, pledge.ID, receipt.ExternalID); err != nil {
		log.Printf("Failed to record transaction %s on pledge %d: %v", receipt.ExternalID, pledge.ID, err)
	}
}
