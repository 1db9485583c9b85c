package repository

import (
	"context"
	"fmt"
	"time"

	"pledgr/internal/models"
)

const settlementColumns = `id, pledge_id, campaign_id, gross_cents, fee_cents, payout_cents,
	fee_percent, status, created_at, paid_at`

// SettlementRepository stores one fee split per completed pledge.
type SettlementRepository struct{}

func NewSettlementRepository() *SettlementRepository {
	return &SettlementRepository{}
}

// InsertIfAbsent stores s unless a settlement for the same pledge exists.
// The UNIQUE pledge_id makes concurrent retries collapse into one row.
func (r *SettlementRepository) InsertIfAbsent(ctx context.Context, db DBExecutor, s *models.Settlement) (bool, error) {
	query := db.Rebind(`
		INSERT INTO settlements (pledge_id, campaign_id, gross_cents, fee_cents, payout_cents,
		                         fee_percent, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pledge_id) DO NOTHING
	`)

	if s.Status == "" {
		s.Status = models.SettlementPending
	}
	s.CreatedAt = time.Now().UTC()

	result, err := db.ExecContext(ctx, query,
		s.PledgeID, s.CampaignID, s.Gross, s.PlatformFee, s.Payout, s.FeePercent.String(), s.Status, s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert settlement: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *SettlementRepository) GetByPledgeID(ctx context.Context, db DBExecutor, pledgeID int64) (*models.Settlement, error) {
	query := db.Rebind(`SELECT ` + settlementColumns + ` FROM settlements WHERE pledge_id = ?`)

	var s models.Settlement
	if err := db.GetContext(ctx, &s, query, pledgeID); err != nil {
		return nil, fmt.Errorf("failed to get settlement for pledge %d: %w", pledgeID, notFound(err))
	}
	return &s, nil
}

func (r *SettlementRepository) ListForCampaign(ctx context.Context, db DBExecutor, campaignID int64) ([]models.Settlement, error) {
	query := db.Rebind(`SELECT ` + settlementColumns + `
		FROM settlements
		WHERE campaign_id = ?
		ORDER BY created_at DESC, id DESC
	`)

	settlements := []models.Settlement{}
	if err := db.SelectContext(ctx, &settlements, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return settlements, nil
}

// MarkPaid moves every pending settlement of a campaign to paid.
func (r *SettlementRepository) MarkPaid(ctx context.Context, db DBExecutor, campaignID int64) (int64, error) {
	query := db.Rebind(`
		UPDATE settlements SET status = ?, paid_at = ?
		WHERE campaign_id = ? AND status = ?
	`)

	result, err := db.ExecContext(ctx, query, models.SettlementPaid, time.Now().UTC(), campaignID, models.SettlementPending)
	if err != nil {
		return 0, fmt.Errorf("failed to mark settlements paid: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
