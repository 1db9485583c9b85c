package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"pledgr/internal/apperr"
	"pledgr/internal/models"
	"pledgr/internal/repository"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	maxDurationDays = 365
)

// CampaignInput carries the writable campaign fields. DurationDays is only
// read on create; zero means the configured default.
type CampaignInput struct {
	Name         string
	Title        string
	Category     models.Category
	Description  string
	Image        string
	Goal         models.Money
	DurationDays int
}

type LevelInput struct {
	Name        string
	Amount      models.Money
	Description string
	Benefits    []string
}

// SettlementReport is the creator's revenue view of one campaign.
type SettlementReport struct {
	Settlements []models.Settlement `json:"settlements"`
	Totals      FeeSplit            `json:"totals"`
}

type CampaignService struct {
	db          *sqlx.DB
	campaigns   *repository.CampaignRepository
	users       *repository.UserRepository
	settlements *repository.SettlementRepository
	defaultDays int
	timeout     time.Duration
	now         func() time.Time
}

func NewCampaignService(db *sqlx.DB, defaultDays int, timeout time.Duration) *CampaignService {
	return &CampaignService{
		db:          db,
		campaigns:   repository.NewCampaignRepository(),
		users:       repository.NewUserRepository(),
		settlements: repository.NewSettlementRepository(),
		defaultDays: defaultDays,
		timeout:     timeout,
		now:         time.Now,
	}
}

// CreateCampaign stores the campaign and marks its owner as a creator in one transaction.
func (s *CampaignService) CreateCampaign(ctx context.Context, ownerID int64, in CampaignInput) (*models.Campaign, error) {
	in, err := s.checkInput(in, true)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	campaign := &models.Campaign{
		UserID:      ownerID,
		Name:        in.Name,
		Title:       in.Title,
		Category:    in.Category,
		Description: in.Description,
		Image:       in.Image,
		Goal:        in.Goal,
		EndsAt:      s.now().UTC().AddDate(0, 0, in.DurationDays),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storeErr(fmt.Errorf("failed to begin transaction: %w", err), "")
	}
	defer tx.Rollback()

	if err := s.users.PromoteToCreator(ctx, tx, ownerID); err != nil {
		return nil, storeErr(err, "user not found")
	}
	if err := s.campaigns.CreateCampaign(ctx, tx, campaign); err != nil {
		return nil, storeErr(err, "")
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr(fmt.Errorf("failed to commit transaction: %w", err), "")
	}

	return s.getCampaign(ctx, campaign.ID)
}

// UpdateCampaign rewrites the campaign's fields. Only the owner may do this.
func (s *CampaignService) UpdateCampaign(ctx context.Context, requesterID, campaignID int64, in CampaignInput) (*models.Campaign, error) {
	in, err := s.checkInput(in, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireOwner(ctx, requesterID, campaignID); err != nil {
		return nil, err
	}

	campaign := &models.Campaign{
		ID:          campaignID,
		Name:        in.Name,
		Title:       in.Title,
		Category:    in.Category,
		Description: in.Description,
		Image:       in.Image,
		Goal:        in.Goal,
	}
	if err := s.campaigns.UpdateCampaign(ctx, s.db, campaign); err != nil {
		return nil, storeErr(err, "campaign not found")
	}

	return s.getCampaign(ctx, campaignID)
}

// PageBounds applies the campaign list paging rules: a missing or
// non-positive limit means DefaultPageSize, limits are capped at MaxPageSize
// and negative offsets start from the top.
func PageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListCampaigns pages through campaigns newest first. An empty or "all"
// category lists every category.
func (s *CampaignService) ListCampaigns(ctx context.Context, category string, limit, offset int) ([]models.Campaign, error) {
	filter := repository.CampaignFilter{Limit: limit, Offset: offset}

	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" && category != "all" {
		filter.Category = models.Category(category)
		if !filter.Category.Valid() {
			return nil, apperr.Validation("unknown category " + category)
		}
	}
	filter.Limit, filter.Offset = PageBounds(limit, offset)

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	campaigns, err := s.campaigns.ListCampaigns(ctx, s.db, filter)
	if err != nil {
		return nil, storeErr(err, "")
	}

	now := s.now()
	for i := range campaigns {
		campaigns[i].ComputeDaysLeft(now)
	}
	return campaigns, nil
}

// GetCampaign returns the campaign with its pledge levels.
func (s *CampaignService) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.getCampaign(ctx, id)
}

func (s *CampaignService) AddPledgeLevel(ctx context.Context, requesterID, campaignID int64, in LevelInput) (*models.PledgeLevel, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return nil, apperr.Validation("level name is required")
	}
	if in.Amount <= 0 {
		return nil, apperr.Validation("level amount must be greater than zero")
	}

	benefits := models.StringList{}
	for _, b := range in.Benefits {
		if b = strings.TrimSpace(b); b != "" {
			benefits = append(benefits, b)
		}
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireOwner(ctx, requesterID, campaignID); err != nil {
		return nil, err
	}

	level := &models.PledgeLevel{
		CampaignID:  campaignID,
		Name:        in.Name,
		Amount:      in.Amount,
		Description: in.Description,
		Benefits:    benefits,
	}
	if err := s.campaigns.CreateLevel(ctx, s.db, level); err != nil {
		return nil, storeErr(err, "")
	}
	return level, nil
}

// ListSettlements returns the fee splits of a campaign with their totals. Owner only.
func (s *CampaignService) ListSettlements(ctx context.Context, requesterID, campaignID int64) (*SettlementReport, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.requireOwner(ctx, requesterID, campaignID); err != nil {
		return nil, err
	}

	settlements, err := s.settlements.ListForCampaign(ctx, s.db, campaignID)
	if err != nil {
		return nil, storeErr(err, "")
	}

	report := &SettlementReport{Settlements: settlements}
	for _, st := range settlements {
		report.Totals.Gross += st.Gross
		report.Totals.Fee += st.PlatformFee
		report.Totals.Payout += st.Payout
	}
	return report, nil
}

func (s *CampaignService) getCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, s.db, id)
	if err != nil {
		return nil, storeErr(err, "campaign not found")
	}

	levels, err := s.campaigns.ListLevels(ctx, s.db, id)
	if err != nil {
		return nil, storeErr(err, "")
	}
	campaign.Levels = levels
	campaign.ComputeDaysLeft(s.now())
	return campaign, nil
}

func (s *CampaignService) requireOwner(ctx context.Context, requesterID, campaignID int64) error {
	ownerID, err := s.campaigns.GetCampaignOwner(ctx, s.db, campaignID)
	if err != nil {
		return storeErr(err, "campaign not found")
	}
	if ownerID != requesterID {
		return apperr.Authorization("only the campaign owner can do this")
	}
	return nil
}

func (s *CampaignService) checkInput(in CampaignInput, creating bool) (CampaignInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Image = strings.TrimSpace(in.Image)
	in.Category = models.Category(strings.ToLower(strings.TrimSpace(string(in.Category))))

	switch {
	case in.Name == "":
		return in, apperr.Validation("name is required")
	case in.Title == "":
		return in, apperr.Validation("title is required")
	case in.Description == "":
		return in, apperr.Validation("description is required")
	case !in.Category.Valid():
		return in, apperr.Validation("category must be one of visual, music, writing, film, other")
	case in.Goal < 0:
		return in, apperr.Validation("goal cannot be negative")
	case in.Image != "" && !isURL(in.Image):
		return in, apperr.Validation("image must be a valid URL")
	}

	if creating {
		if in.DurationDays == 0 {
			in.DurationDays = s.defaultDays
		}
		if in.DurationDays < 1 || in.DurationDays > maxDurationDays {
			return in, apperr.Validation(fmt.Sprintf("duration must be between 1 and %d days", maxDurationDays))
		}
	}
	return in, nil
}
