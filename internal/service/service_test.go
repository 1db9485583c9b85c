package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"pledgr/internal/apperr"
	"pledgr/internal/auth"
	"pledgr/internal/database/dbtest"
	"pledgr/internal/models"
	"pledgr/internal/payment"
	"pledgr/internal/payment/mocks"
)

const testPassword = "Secret123"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db        *sqlx.DB
	clock     *fakeClock
	auth      *AuthService
	campaigns *CampaignService
	pledges   *PledgeService
}

func newTestEnv(t *testing.T, provider payment.Provider) *testEnv {
	t.Helper()

	db := dbtest.New(t)
	clock := &fakeClock{now: time.Now().UTC()}

	hasher, err := auth.NewHasher(1000)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	tokens := auth.NewTokenManager(strings.Repeat("k", 32), "pledgr-api", time.Hour)
	lockout := auth.NewLockout(5, 15*time.Minute, 15*time.Minute)
	lockout.SetClock(clock.Now)
	policy := auth.PasswordPolicy{MinLength: 8, RequireUpper: true, RequireDigit: true}

	campaigns := NewCampaignService(db, 30, 5*time.Second)
	campaigns.now = clock.Now

	return &testEnv{
		db:        db,
		clock:     clock,
		auth:      NewAuthService(db, hasher, tokens, lockout, policy, 5*time.Second),
		campaigns: campaigns,
		pledges:   NewPledgeService(db, provider, decimal.NewFromInt(5), "USD", 5*time.Second),
	}
}

// pendingProvider leaves every pledge active until a notification arrives.
func pendingProvider(t *testing.T) *mocks.MockProvider {
	t.Helper()
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("mock").AnyTimes()
	provider.EXPECT().
		Capture(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req payment.CaptureRequest) (*payment.Receipt, error) {
			return &payment.Receipt{
				OrderID:     req.OrderID,
				Amount:      req.Amount,
				Status:      payment.StatusPending,
				RedirectURL: "https://pay.example/" + req.OrderID,
			}, nil
		}).
		AnyTimes()
	return provider
}

func (e *testEnv) register(t *testing.T, name, email string) *models.User {
	t.Helper()
	res, err := e.auth.Register(context.Background(), name, email, testPassword)
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return res.User
}

func (e *testEnv) createCampaign(t *testing.T, ownerID int64, title string) *models.Campaign {
	t.Helper()
	campaign, err := e.campaigns.CreateCampaign(context.Background(), ownerID, CampaignInput{
		Name:        "Blue Notes",
		Title:       title,
		Category:    models.CategoryMusic,
		Description: "Recording " + title,
		Goal:        500000,
	})
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	return campaign
}

func (e *testEnv) addLevel(t *testing.T, ownerID, campaignID int64, amount models.Money) *models.PledgeLevel {
	t.Helper()
	level, err := e.campaigns.AddPledgeLevel(context.Background(), ownerID, campaignID, LevelInput{
		Name:     "Supporter",
		Amount:   amount,
		Benefits: []string{"Digital download"},
	})
	if err != nil {
		t.Fatalf("AddPledgeLevel: %v", err)
	}
	return level
}

func (e *testEnv) pledgeStatus(t *testing.T, pledgeID int64) models.PledgeStatus {
	t.Helper()
	var status models.PledgeStatus
	if err := e.db.Get(&status, e.db.Rebind(`SELECT status FROM pledges WHERE id = ?`), pledgeID); err != nil {
		t.Fatalf("read pledge status: %v", err)
	}
	return status
}

func (e *testEnv) settlementCount(t *testing.T, pledgeID int64) int {
	t.Helper()
	var n int
	if err := e.db.Get(&n, e.db.Rebind(`SELECT COUNT(*) FROM settlements WHERE pledge_id = ?`), pledgeID); err != nil {
		t.Fatalf("count settlements: %v", err)
	}
	return n
}

func (e *testEnv) transactionID(t *testing.T, pledgeID int64) string {
	t.Helper()
	var id string
	if err := e.db.Get(&id, e.db.Rebind(`SELECT transaction_id FROM pledges WHERE id = ?`), pledgeID); err != nil {
		t.Fatalf("read transaction id: %v", err)
	}
	return id
}

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func levelID(id int64) *int64 {
	return &id
}
