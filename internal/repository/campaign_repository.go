package repository

import (
	"context"
	"fmt"
	"time"

	"pledgr/internal/models"
)

// Pledged and supporters are aggregated over non-cancelled pledges on every read.
const campaignSelect = `
	SELECT c.id, c.user_id, c.name, c.title, c.category, c.description, c.image,
	       c.goal_cents, c.ends_at, c.created_at, c.updated_at,
	       u.name AS creator_name,
	       CAST(COALESCE(SUM(p.amount_cents), 0) AS BIGINT) AS pledged_cents,
	       COUNT(DISTINCT p.user_id) AS supporters
	FROM campaigns c
	JOIN users u ON u.id = c.user_id
	LEFT JOIN pledges p ON p.campaign_id = c.id AND p.status IN ('active', 'completed')
`

const campaignGroupBy = `
	GROUP BY c.id, c.user_id, c.name, c.title, c.category, c.description, c.image,
	         c.goal_cents, c.ends_at, c.created_at, c.updated_at, u.name
`

// CampaignFilter narrows ListCampaigns. An empty Category lists everything.
type CampaignFilter struct {
	Category models.Category
	Limit    int
	Offset   int
}

// CampaignRepository handles campaigns and their pledge levels.
type CampaignRepository struct{}

func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{}
}

func (r *CampaignRepository) CreateCampaign(ctx context.Context, db DBExecutor, campaign *models.Campaign) error {
	query := db.Rebind(`
		INSERT INTO campaigns (user_id, name, title, category, description, image, goal_cents, ends_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	now := time.Now().UTC()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now

	err := db.GetContext(ctx, &campaign.ID, query,
		campaign.UserID, campaign.Name, campaign.Title, campaign.Category, campaign.Description,
		campaign.Image, campaign.Goal, campaign.EndsAt, campaign.CreatedAt, campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) UpdateCampaign(ctx context.Context, db DBExecutor, campaign *models.Campaign) error {
	query := db.Rebind(`
		UPDATE campaigns
		SET name = ?, title = ?, category = ?, description = ?, image = ?, goal_cents = ?, updated_at = ?
		WHERE id = ?
	`)

	campaign.UpdatedAt = time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		campaign.Name, campaign.Title, campaign.Category, campaign.Description, campaign.Image,
		campaign.Goal, campaign.UpdatedAt, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return expectOneRow(result, "campaign")
}

// GetCampaign returns the campaign with its live aggregates, without levels.
func (r *CampaignRepository) GetCampaign(ctx context.Context, db DBExecutor, id int64) (*models.Campaign, error) {
	query := db.Rebind(campaignSelect + ` WHERE c.id = ? ` + campaignGroupBy)

	var campaign models.Campaign
	if err := db.GetContext(ctx, &campaign, query, id); err != nil {
		return nil, fmt.Errorf("failed to get campaign %d: %w", id, notFound(err))
	}
	return &campaign, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, db DBExecutor, filter CampaignFilter) ([]models.Campaign, error) {
	query := campaignSelect
	args := []interface{}{}
	if filter.Category != "" {
		query += ` WHERE c.category = ? `
		args = append(args, filter.Category)
	}
	query += campaignGroupBy + ` ORDER BY c.created_at DESC, c.id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	campaigns := []models.Campaign{}
	if err := db.SelectContext(ctx, &campaigns, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// GetCampaignOwner returns the owning user id of a campaign.
func (r *CampaignRepository) GetCampaignOwner(ctx context.Context, db DBExecutor, id int64) (int64, error) {
	query := db.Rebind(`SELECT user_id FROM campaigns WHERE id = ?`)

	var ownerID int64
	if err := db.GetContext(ctx, &ownerID, query, id); err != nil {
		return 0, fmt.Errorf("failed to get campaign owner: %w", notFound(err))
	}
	return ownerID, nil
}

func (r *CampaignRepository) AggregateForCampaign(ctx context.Context, db DBExecutor, campaignID int64) (*models.Aggregate, error) {
	query := db.Rebind(`
		SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT) AS pledged_cents,
		       COUNT(DISTINCT user_id) AS supporters
		FROM pledges
		WHERE campaign_id = ? AND status IN ('active', 'completed')
	`)

	var agg models.Aggregate
	if err := db.GetContext(ctx, &agg, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to aggregate pledges: %w", err)
	}
	return &agg, nil
}

func (r *CampaignRepository) CreateLevel(ctx context.Context, db DBExecutor, level *models.PledgeLevel) error {
	query := db.Rebind(`
		INSERT INTO pledge_levels (campaign_id, name, amount_cents, description, benefits, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	level.CreatedAt = time.Now().UTC()
	if level.Benefits == nil {
		level.Benefits = models.StringList{}
	}

	err := db.GetContext(ctx, &level.ID, query,
		level.CampaignID, level.Name, level.Amount, level.Description, level.Benefits, level.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pledge level: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetLevel(ctx context.Context, db DBExecutor, id int64) (*models.PledgeLevel, error) {
	query := db.Rebind(`
		SELECT id, campaign_id, name, amount_cents, description, benefits, created_at
		FROM pledge_levels
		WHERE id = ?
	`)

	var level models.PledgeLevel
	if err := db.GetContext(ctx, &level, query, id); err != nil {
		return nil, fmt.Errorf("failed to get pledge level %d: %w", id, notFound(err))
	}
	return &level, nil
}

// ListLevels returns the campaign's levels, cheapest first, with supporter counts.
func (r *CampaignRepository) ListLevels(ctx context.Context, db DBExecutor, campaignID int64) ([]models.PledgeLevel, error) {
	query := db.Rebind(`
		SELECT l.id, l.campaign_id, l.name, l.amount_cents, l.description, l.benefits, l.created_at,
		       COUNT(DISTINCT p.user_id) AS supporters
		FROM pledge_levels l
		LEFT JOIN pledges p ON p.level_id = l.id AND p.status IN ('active', 'completed')
		WHERE l.campaign_id = ?
		GROUP BY l.id, l.campaign_id, l.name, l.amount_cents, l.description, l.benefits, l.created_at
		ORDER BY l.amount_cents ASC, l.id ASC
	`)

	levels := []models.PledgeLevel{}
	if err := db.SelectContext(ctx, &levels, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list pledge levels: %w", err)
	}
	return levels, nil
}
