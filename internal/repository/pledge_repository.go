package repository

import (
	"context"
	"fmt"
	"time"

	"pledgr/internal/models"
)

const pledgeColumns = `id, user_id, campaign_id, level_id, amount_cents, status, order_id,
	payment_provider, transaction_id, created_at, updated_at`

// PledgeRepository is the pledge ledger.
type PledgeRepository struct{}

func NewPledgeRepository() *PledgeRepository {
	return &PledgeRepository{}
}

func (r *PledgeRepository) CreatePledge(ctx context.Context, db DBExecutor, pledge *models.Pledge) error {
	query := db.Rebind(`
		INSERT INTO pledges (user_id, campaign_id, level_id, amount_cents, status, order_id,
		                     payment_provider, transaction_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	now := time.Now().UTC()
	pledge.CreatedAt = now
	pledge.UpdatedAt = now

	err := db.GetContext(ctx, &pledge.ID, query,
		pledge.UserID, pledge.CampaignID, pledge.LevelID, pledge.Amount, pledge.Status, pledge.OrderID,
		pledge.PaymentProvider, pledge.TransactionID, pledge.CreatedAt, pledge.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pledge: %w", err)
	}
	return nil
}

func (r *PledgeRepository) GetPledge(ctx context.Context, db DBExecutor, id int64) (*models.Pledge, error) {
	query := db.Rebind(`SELECT ` + pledgeColumns + ` FROM pledges WHERE id = ?`)

	var pledge models.Pledge
	if err := db.GetContext(ctx, &pledge, query, id); err != nil {
		return nil, fmt.Errorf("failed to get pledge %d: %w", id, notFound(err))
	}
	return &pledge, nil
}

func (r *PledgeRepository) GetPledgeByOrderID(ctx context.Context, db DBExecutor, orderID string) (*models.Pledge, error) {
	query := db.Rebind(`SELECT ` + pledgeColumns + ` FROM pledges WHERE order_id = ?`)

	var pledge models.Pledge
	if err := db.GetContext(ctx, &pledge, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to get pledge by order id: %w", notFound(err))
	}
	return &pledge, nil
}

// ListPledgesForUser returns the user's pledges newest first, with campaign name and image.
func (r *PledgeRepository) ListPledgesForUser(ctx context.Context, db DBExecutor, userID int64) ([]models.Pledge, error) {
	query := db.Rebind(`
		SELECT p.id, p.user_id, p.campaign_id, p.level_id, p.amount_cents, p.status, p.order_id,
		       p.payment_provider, p.transaction_id, p.created_at, p.updated_at,
		       c.name AS campaign_name, c.image AS campaign_image
		FROM pledges p
		JOIN campaigns c ON c.id = p.campaign_id
		WHERE p.user_id = ?
		ORDER BY p.created_at DESC, p.id DESC
	`)

	pledges := []models.Pledge{}
	if err := db.SelectContext(ctx, &pledges, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list pledges: %w", err)
	}
	return pledges, nil
}

// TransitionStatus moves a pledge from one status to another only if it is
// still in the expected status. It reports whether the row changed.
func (r *PledgeRepository) TransitionStatus(ctx context.Context, db DBExecutor, id int64, from, to models.PledgeStatus, transactionID string) (bool, error) {
	query := `UPDATE pledges SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	args := []interface{}{to, time.Now().UTC(), id, from}
	if transactionID != "" {
		query = `UPDATE pledges SET status = ?, updated_at = ?, transaction_id = ? WHERE id = ? AND status = ?`
		args = []interface{}{to, time.Now().UTC(), transactionID, id, from}
	}

	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to update pledge status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// RecordTransactionID stores the gateway's id on a pledge that is still active.
func (r *PledgeRepository) RecordTransactionID(ctx context.Context, db DBExecutor, id int64, transactionID string) (bool, error) {
	query := db.Rebind(`UPDATE pledges SET transaction_id = ?, updated_at = ? WHERE id = ? AND status = ?`)

	result, err := db.ExecContext(ctx, query, transactionID, time.Now().UTC(), id, models.PledgeActive)
	if err != nil {
		return false, fmt.Errorf("failed to record transaction id: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
