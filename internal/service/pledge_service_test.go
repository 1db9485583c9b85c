package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"pledgr/internal/apperr"
	"pledgr/internal/models"
	"pledgr/internal/payment"
	"pledgr/internal/payment/mocks"
	"pledgr/internal/repository"
)

func TestComputeFee(t *testing.T) {
	five := decimal.NewFromInt(5)
	tests := []struct {
		gross   models.Money
		percent decimal.Decimal
		fee     models.Money
	}{
		{2500, five, 125},
		{800, five, 40},
		{10, five, 1},  // 0.005 rounds away from zero
		{9, five, 0},   // 0.0045 rounds down
		{333, decimal.RequireFromString("2.5"), 8},
		{100000, decimal.Zero, 0},
		{100000, decimal.NewFromInt(100), 100000},
	}
	for _, tt := range tests {
		split := ComputeFee(tt.gross, tt.percent)
		if split.Fee != tt.fee {
			t.Errorf("ComputeFee(%s, %s): expected fee %s, got %s", tt.gross, tt.percent, tt.fee, split.Fee)
		}
		if split.Fee+split.Payout != split.Gross {
			t.Errorf("ComputeFee(%s, %s): fee + payout != gross", tt.gross, tt.percent)
		}
	}

	for gross := models.Money(1); gross < 5000; gross += 7 {
		split := ComputeFee(gross, five)
		if split.Fee+split.Payout != gross || split.Fee < 0 || split.Payout < 0 {
			t.Fatalf("bad split for %s: %+v", gross, split)
		}
	}
}

func TestJazzAlbumEndToEnd(t *testing.T) {
	env := newTestEnv(t, payment.NewSandbox())
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign, err := env.campaigns.CreateCampaign(ctx, creator.ID, CampaignInput{
		Name:        "Miles Quintet",
		Title:       "Jazz Album",
		Category:    models.CategoryMusic,
		Description: "Recording our first jazz album",
		Goal:        500000,
	})
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	level := env.addLevel(t, creator.ID, campaign.ID, 800)

	supporter := env.register(t, "Sam", "sam@example.com")
	result, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{
		CampaignID: campaign.ID,
		LevelID:    levelID(level.ID),
		Amount:     800,
	})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}
	if result.Pledge.Status != models.PledgeCompleted {
		t.Fatalf("sandbox pledges complete immediately, got %s", result.Pledge.Status)
	}
	if result.Settlement == nil || result.Settlement.PlatformFee != 40 || result.Settlement.Payout != 760 {
		t.Fatalf("expected fee 0.40 and payout 7.60, got %+v", result.Settlement)
	}

	got, err := env.campaigns.GetCampaign(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if got.Pledged != 800 || got.Supporters != 1 {
		t.Fatalf("expected pledged 8.00 from 1 supporter, got %s from %d", got.Pledged, got.Supporters)
	}
	if len(got.Levels) != 1 || got.Levels[0].Supporters != 1 {
		t.Fatalf("expected the level to count 1 supporter, got %+v", got.Levels)
	}

	report, err := env.campaigns.ListSettlements(ctx, creator.ID, campaign.ID)
	if err != nil {
		t.Fatalf("ListSettlements: %v", err)
	}
	if len(report.Settlements) != 1 || report.Totals.Fee != 40 || report.Totals.Payout != 760 || report.Totals.Gross != 800 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !report.Settlements[0].FeePercent.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5%% recorded, got %s", report.Settlements[0].FeePercent)
	}
}

func TestSettleFeeIsIdempotent(t *testing.T) {
	env := newTestEnv(t, payment.NewSandbox())
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	result, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 2500})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}

	first, err := env.pledges.SettleFee(ctx, result.Pledge.ID)
	if err != nil {
		t.Fatalf("SettleFee: %v", err)
	}
	second, err := env.pledges.SettleFee(ctx, result.Pledge.ID)
	if err != nil {
		t.Fatalf("SettleFee again: %v", err)
	}

	if first.ID != second.ID || first.ID != result.Settlement.ID {
		t.Fatalf("expected one settlement, got ids %d, %d, %d", result.Settlement.ID, first.ID, second.ID)
	}
	if first.PlatformFee != 125 || first.Payout != 2375 || first.PlatformFee+first.Payout != first.Gross {
		t.Fatalf("expected 1.25 / 23.75, got %+v", first)
	}

	if n := env.settlementCount(t, result.Pledge.ID); n != 1 {
		t.Fatalf("expected exactly one settlement row, got %d", n)
	}
}

func TestSettleFeeRequiresCompletedPledge(t *testing.T) {
	env := newTestEnv(t, pendingProvider(t))
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	result, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 1000})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}
	if result.RedirectURL == "" || result.Pledge.Status != models.PledgeActive {
		t.Fatalf("expected a pending pledge with a redirect, got %+v", result)
	}

	_, err = env.pledges.SettleFee(ctx, result.Pledge.ID)
	expectKind(t, err, apperr.KindInvalidState)

	_, err = env.pledges.SettleFee(ctx, 9999)
	expectKind(t, err, apperr.KindNotFound)
}

func TestAggregatesFollowCreateAndCancel(t *testing.T) {
	env := newTestEnv(t, pendingProvider(t))
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	alice := env.register(t, "Alice", "alice@example.com")
	bob := env.register(t, "Bob", "bob@example.com")

	pledge := func(userID int64, amount models.Money) *models.Pledge {
		res, err := env.pledges.CreatePledge(ctx, userID, PledgeInput{CampaignID: campaign.ID, Amount: amount})
		if err != nil {
			t.Fatalf("CreatePledge: %v", err)
		}
		return res.Pledge
	}

	pledge(alice.ID, 1000)
	pledge(alice.ID, 3000)
	bobs := pledge(bob.ID, 2000)

	agg, err := env.pledges.AggregateForCampaign(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("AggregateForCampaign: %v", err)
	}
	if agg.Pledged != 6000 || agg.Supporters != 2 {
		t.Fatalf("expected 60.00 from 2 supporters, got %s from %d", agg.Pledged, agg.Supporters)
	}

	if _, err := env.pledges.CancelPledge(ctx, bobs.ID, bob.ID); err != nil {
		t.Fatalf("CancelPledge: %v", err)
	}

	agg, err = env.pledges.AggregateForCampaign(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("AggregateForCampaign: %v", err)
	}
	if agg.Pledged != 4000 || agg.Supporters != 1 {
		t.Fatalf("expected 40.00 from 1 supporter, got %s from %d", agg.Pledged, agg.Supporters)
	}

	got, err := env.campaigns.GetCampaign(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if got.Pledged != agg.Pledged || got.Supporters != agg.Supporters {
		t.Fatalf("campaign view disagrees with aggregate")
	}

	_, err = env.pledges.AggregateForCampaign(ctx, 9999)
	expectKind(t, err, apperr.KindNotFound)
}

func TestPledgeLevelFromAnotherCampaign(t *testing.T) {
	env := newTestEnv(t, payment.NewSandbox())
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	jazz := env.createCampaign(t, creator.ID, "Jazz Album")
	film := env.createCampaign(t, creator.ID, "Tour Film")
	filmLevel := env.addLevel(t, creator.ID, film.ID, 1500)
	supporter := env.register(t, "Sam", "sam@example.com")

	_, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{
		CampaignID: jazz.ID,
		LevelID:    levelID(filmLevel.ID),
		Amount:     1500,
	})
	expectKind(t, err, apperr.KindValidation)

	_, err = env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: jazz.ID, LevelID: levelID(9999)})
	expectKind(t, err, apperr.KindValidation)

	pledges, err := env.pledges.ListPledgesForUser(ctx, supporter.ID)
	if err != nil {
		t.Fatalf("ListPledgesForUser: %v", err)
	}
	if len(pledges) != 0 {
		t.Fatalf("rejected pledges must not be written, got %d", len(pledges))
	}
}

func TestCreatePledgeValidation(t *testing.T) {
	env := newTestEnv(t, payment.NewSandbox())
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")

	_, err := env.pledges.CreatePledge(ctx, creator.ID, PledgeInput{CampaignID: campaign.ID})
	expectKind(t, err, apperr.KindValidation)

	_, err = env.pledges.CreatePledge(ctx, creator.ID, PledgeInput{CampaignID: campaign.ID, Amount: -100})
	expectKind(t, err, apperr.KindValidation)

	_, err = env.pledges.CreatePledge(ctx, creator.ID, PledgeInput{CampaignID: 9999, Amount: 100})
	expectKind(t, err, apperr.KindNotFound)
}

func TestPledgeLevelAmountIsDefault(t *testing.T) {
	env := newTestEnv(t, payment.NewSandbox())
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	level := env.addLevel(t, creator.ID, campaign.ID, 1200)
	supporter := env.register(t, "Sam", "sam@example.com")

	res, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, LevelID: levelID(level.ID)})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}
	if res.Pledge.Amount != 1200 {
		t.Fatalf("expected the level amount, got %s", res.Pledge.Amount)
	}
}

func TestCancelSomeoneElsesPledge(t *testing.T) {
	env := newTestEnv(t, pendingProvider(t))
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	owner := env.register(t, "Sam", "sam@example.com")
	other := env.register(t, "Eve", "eve@example.com")

	res, err := env.pledges.CreatePledge(ctx, owner.ID, PledgeInput{CampaignID: campaign.ID, Amount: 1000})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}

	_, err = env.pledges.CancelPledge(ctx, res.Pledge.ID, other.ID)
	expectKind(t, err, apperr.KindAuthorization)
	if status := env.pledgeStatus(t, res.Pledge.ID); status != models.PledgeActive {
		t.Fatalf("status changed to %s", status)
	}

	_, err = env.pledges.CancelPledge(ctx, 9999, owner.ID)
	expectKind(t, err, apperr.KindNotFound)

	cancelled, err := env.pledges.CancelPledge(ctx, res.Pledge.ID, owner.ID)
	if err != nil {
		t.Fatalf("CancelPledge: %v", err)
	}
	if cancelled.Status != models.PledgeCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	_, err = env.pledges.CancelPledge(ctx, res.Pledge.ID, owner.ID)
	expectKind(t, err, apperr.KindInvalidState)
}

func TestCancelCompletedPledge(t *testing.T) {
	env := newTestEnv(t, payment.NewSandbox())
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	res, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 1000})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}

	_, err = env.pledges.CancelPledge(ctx, res.Pledge.ID, supporter.ID)
	expectKind(t, err, apperr.KindInvalidState)
	if status := env.pledgeStatus(t, res.Pledge.ID); status != models.PledgeCompleted {
		t.Fatalf("completed pledge changed to %s", status)
	}
}

func TestCaptureErrorCancelsPledge(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("mock").AnyTimes()
	provider.EXPECT().
		Capture(gomock.Any(), gomock.Any()).
		Return(nil, &payment.Error{Provider: "mock", Message: "card declined", Err: payment.ErrDeclined})

	env := newTestEnv(t, provider)
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	_, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 1000})
	expectKind(t, err, apperr.KindPayment)
	if !errors.Is(err, payment.ErrDeclined) {
		t.Fatalf("expected the provider error to be wrapped, got %v", err)
	}

	pledges, err := env.pledges.ListPledgesForUser(ctx, supporter.ID)
	if err != nil {
		t.Fatalf("ListPledgesForUser: %v", err)
	}
	if len(pledges) != 1 || pledges[0].Status != models.PledgeCancelled {
		t.Fatalf("expected one cancelled pledge, got %+v", pledges)
	}
	if pledges[0].CampaignName != "Blue Notes" {
		t.Fatalf("expected campaign name to be joined, got %q", pledges[0].CampaignName)
	}

	agg, _ := env.pledges.AggregateForCampaign(ctx, campaign.ID)
	if agg.Pledged != 0 || agg.Supporters != 0 {
		t.Fatalf("failed payments must not count, got %+v", agg)
	}
}

func TestSlowCaptureStillCompletesPledge(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("mock").AnyTimes()
	provider.EXPECT().
		Capture(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req payment.CaptureRequest) (*payment.Receipt, error) {
			time.Sleep(150 * time.Millisecond)
			return &payment.Receipt{OrderID: req.OrderID, ExternalID: "tx-slow", Amount: req.Amount, Currency: req.Currency, Status: payment.StatusCaptured}, nil
		})

	env := newTestEnv(t, provider)
	env.pledges.timeout = 100 * time.Millisecond
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	result, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 800})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}
	if result.Pledge.Status != models.PledgeCompleted || result.Pledge.TransactionID != "tx-slow" || result.Currency != "USD" {
		t.Fatalf("unexpected result %+v %+v", result, result.Pledge)
	}
	if status := env.pledgeStatus(t, result.Pledge.ID); status != models.PledgeCompleted {
		t.Fatalf("captured pledge is %s", status)
	}
	if n := env.settlementCount(t, result.Pledge.ID); n != 1 {
		t.Fatalf("expected one settlement, got %d", n)
	}
}

func TestCompletionFailureKeepsCapturedTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("mock").AnyTimes()
	provider.EXPECT().
		Capture(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req payment.CaptureRequest) (*payment.Receipt, error) {
			return &payment.Receipt{OrderID: req.OrderID, ExternalID: "tx-eur", Amount: req.Amount, Currency: "EUR", Status: payment.StatusCaptured}, nil
		})

	env := newTestEnv(t, provider)
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	_, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 800})
	expectKind(t, err, apperr.KindValidation)

	pledges, err := env.pledges.ListPledgesForUser(ctx, supporter.ID)
	if err != nil || len(pledges) != 1 {
		t.Fatalf("expected one pledge, got %+v %v", pledges, err)
	}
	pledge := pledges[0]
	if pledge.Status != models.PledgeActive {
		t.Fatalf("a captured pledge must not be cancelled, got %s", pledge.Status)
	}
	if id := env.transactionID(t, pledge.ID); id != "tx-eur" {
		t.Fatalf("expected the captured transaction id to be kept, got %q", id)
	}
	if n := env.settlementCount(t, pledge.ID); n != 0 {
		t.Fatalf("expected no settlement yet, got %d", n)
	}

	provider.EXPECT().Verify(gomock.Any(), pledge.OrderID).
		Return(&payment.Receipt{OrderID: pledge.OrderID, ExternalID: "tx-eur", Amount: 800, Currency: "USD", Status: payment.StatusCaptured}, nil)

	outcome, err := env.pledges.HandlePaymentNotification(ctx, pledge.OrderID)
	if err != nil || outcome != NotificationCompleted {
		t.Fatalf("expected the notification to complete the pledge, got %q %v", outcome, err)
	}
	if n := env.settlementCount(t, pledge.ID); n != 1 {
		t.Fatalf("expected one settlement after the notification, got %d", n)
	}
}

func TestCompletePledgeRejectsAmountMismatch(t *testing.T) {
	env := newTestEnv(t, pendingProvider(t))
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	res, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 1000})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}

	_, _, err = env.pledges.CompletePledge(ctx, res.Pledge.ID, &payment.Receipt{
		OrderID: res.Pledge.OrderID, ExternalID: "tx-1", Amount: 900, Status: payment.StatusCaptured,
	})
	expectKind(t, err, apperr.KindValidation)
	if status := env.pledgeStatus(t, res.Pledge.ID); status != models.PledgeActive {
		t.Fatalf("status changed to %s", status)
	}

	receipt := &payment.Receipt{OrderID: res.Pledge.OrderID, ExternalID: "tx-1", Amount: 1000, Status: payment.StatusCaptured}
	completed, settlement, err := env.pledges.CompletePledge(ctx, res.Pledge.ID, receipt)
	if err != nil {
		t.Fatalf("CompletePledge: %v", err)
	}
	if completed.TransactionID != "tx-1" || settlement.PlatformFee != 50 {
		t.Fatalf("unexpected completion %+v %+v", completed, settlement)
	}

	_, again, err := env.pledges.CompletePledge(ctx, res.Pledge.ID, receipt)
	if err != nil {
		t.Fatalf("completing twice should be a no-op: %v", err)
	}
	if again.ID != settlement.ID {
		t.Fatalf("second completion created another settlement")
	}
}

func TestFailPledge(t *testing.T) {
	env := newTestEnv(t, pendingProvider(t))
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	res, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 1000})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}

	if err := env.pledges.FailPledge(ctx, res.Pledge.ID); err != nil {
		t.Fatalf("FailPledge: %v", err)
	}
	if err := env.pledges.FailPledge(ctx, res.Pledge.ID); err != nil {
		t.Fatalf("FailPledge twice: %v", err)
	}

	_, _, err = env.pledges.CompletePledge(ctx, res.Pledge.ID, &payment.Receipt{Amount: 1000, Status: payment.StatusCaptured})
	expectKind(t, err, apperr.KindInvalidState)
}

func TestHandlePaymentNotification(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("mock").AnyTimes()
	provider.EXPECT().
		Capture(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req payment.CaptureRequest) (*payment.Receipt, error) {
			return &payment.Receipt{OrderID: req.OrderID, Amount: req.Amount, Status: payment.StatusPending, RedirectURL: "https://pay.example"}, nil
		}).
		Times(2)

	env := newTestEnv(t, provider)
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	paid, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 2500})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}
	declined, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 1000})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}

	provider.EXPECT().Verify(gomock.Any(), paid.Pledge.OrderID).
		Return(&payment.Receipt{OrderID: paid.Pledge.OrderID, ExternalID: "tx-9", Amount: 2500, Status: payment.StatusCaptured}, nil).
		Times(2)
	provider.EXPECT().Verify(gomock.Any(), declined.Pledge.OrderID).
		Return(&payment.Receipt{OrderID: declined.Pledge.OrderID, Amount: 1000, Status: payment.StatusFailed}, nil)

	outcome, err := env.pledges.HandlePaymentNotification(ctx, paid.Pledge.OrderID)
	if err != nil || outcome != NotificationCompleted {
		t.Fatalf("expected completed, got %q %v", outcome, err)
	}
	outcome, err = env.pledges.HandlePaymentNotification(ctx, paid.Pledge.OrderID)
	if err != nil || outcome != NotificationDuplicate {
		t.Fatalf("expected duplicate, got %q %v", outcome, err)
	}
	outcome, err = env.pledges.HandlePaymentNotification(ctx, declined.Pledge.OrderID)
	if err != nil || outcome != NotificationCancelled {
		t.Fatalf("expected cancelled, got %q %v", outcome, err)
	}

	settlement, err := repository.NewSettlementRepository().GetByPledgeID(ctx, env.db, paid.Pledge.ID)
	if err != nil {
		t.Fatalf("GetByPledgeID: %v", err)
	}
	if settlement.PlatformFee != 125 || settlement.Payout != 2375 {
		t.Fatalf("unexpected settlement %+v", settlement)
	}
	if status := env.pledgeStatus(t, declined.Pledge.ID); status != models.PledgeCancelled {
		t.Fatalf("declined pledge is %s", status)
	}

	_, err = env.pledges.HandlePaymentNotification(ctx, "PLEDGE-unknown")
	expectKind(t, err, apperr.KindNotFound)
	_, err = env.pledges.HandlePaymentNotification(ctx, "")
	expectKind(t, err, apperr.KindValidation)
}

func TestCaptureForCancelledPledgeIsAcknowledged(t *testing.T) {
	provider := pendingProvider(t)
	env := newTestEnv(t, provider)
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	res, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: 1500})
	if err != nil {
		t.Fatalf("CreatePledge: %v", err)
	}
	if _, err := env.pledges.CancelPledge(ctx, res.Pledge.ID, supporter.ID); err != nil {
		t.Fatalf("CancelPledge: %v", err)
	}

	provider.EXPECT().Verify(gomock.Any(), res.Pledge.OrderID).
		Return(&payment.Receipt{OrderID: res.Pledge.OrderID, ExternalID: "tx-late", Amount: 1500, Status: payment.StatusCaptured}, nil).
		Times(2)

	for i := 0; i < 2; i++ {
		outcome, err := env.pledges.HandlePaymentNotification(ctx, res.Pledge.OrderID)
		if err != nil || outcome != NotificationRefundDue {
			t.Fatalf("notification %d: expected %q, got %q %v", i+1, NotificationRefundDue, outcome, err)
		}
	}
	if status := env.pledgeStatus(t, res.Pledge.ID); status != models.PledgeCancelled {
		t.Fatalf("cancelled pledge moved to %s", status)
	}
	if n := env.settlementCount(t, res.Pledge.ID); n != 0 {
		t.Fatalf("a cancelled pledge must not settle, got %d", n)
	}
}

func TestMarkSettlementsPaid(t *testing.T) {
	env := newTestEnv(t, payment.NewSandbox())
	ctx := context.Background()

	creator := env.register(t, "Miles", "miles@example.com")
	campaign := env.createCampaign(t, creator.ID, "Jazz Album")
	supporter := env.register(t, "Sam", "sam@example.com")

	for _, amount := range []models.Money{800, 2500} {
		if _, err := env.pledges.CreatePledge(ctx, supporter.ID, PledgeInput{CampaignID: campaign.ID, Amount: amount}); err != nil {
			t.Fatalf("CreatePledge: %v", err)
		}
	}

	n, err := env.pledges.MarkSettlementsPaid(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("MarkSettlementsPaid: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 settlements paid, got %d", n)
	}
	n, _ = env.pledges.MarkSettlementsPaid(ctx, campaign.ID)
	if n != 0 {
		t.Fatalf("paid settlements must not be paid again, got %d", n)
	}

	report, err := env.campaigns.ListSettlements(ctx, creator.ID, campaign.ID)
	if err != nil {
		t.Fatalf("ListSettlements: %v", err)
	}
	for _, st := range report.Settlements {
		if st.Status != models.SettlementPaid || st.PaidAt == nil {
			t.Fatalf("expected paid settlement, got %+v", st)
		}
	}

	_, err = env.pledges.MarkSettlementsPaid(ctx, 9999)
	expectKind(t, err, apperr.KindNotFound)
}
