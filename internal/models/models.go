package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// We use 'db' tags for sqlx to map the snake_case columns onto these structs.
// Amount columns hold cents and are suffixed with _cents.

// User represents an account and its public profile.
type User struct {
	ID              int64     `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	Name            string    `db:"name" json:"name"`
	Avatar          string    `db:"avatar" json:"avatar"`
	IsCreator       bool      `db:"is_creator" json:"is_creator"`
	Bio             string    `db:"bio" json:"bio"`
	Website         string    `db:"website" json:"website"`
	SocialTwitter   string    `db:"social_twitter" json:"social_twitter"`
	SocialInstagram string    `db:"social_instagram" json:"social_instagram"`
	SocialYoutube   string    `db:"social_youtube" json:"social_youtube"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type Category string

const (
	CategoryVisual  Category = "visual"
	CategoryMusic   Category = "music"
	CategoryWriting Category = "writing"
	CategoryFilm    Category = "film"
	CategoryOther   Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryVisual, CategoryMusic, CategoryWriting, CategoryFilm, CategoryOther:
		return true
	}
	return false
}

// Campaign is a creator's funding project. Pledged and Supporters are
// aggregated from pledges on every read.
type Campaign struct {
	ID          int64         `db:"id" json:"id"`
	UserID      int64         `db:"user_id" json:"user_id"`
	Name        string        `db:"name" json:"name"`
	Title       string        `db:"title" json:"title"`
	Category    Category      `db:"category" json:"category"`
	Description string        `db:"description" json:"description"`
	Image       string        `db:"image" json:"image"`
	Goal        Money         `db:"goal_cents" json:"goal"`
	Pledged     Money         `db:"pledged_cents" json:"pledged"`
	Supporters  int64         `db:"supporters" json:"supporters"`
	CreatorName string        `db:"creator_name" json:"creator_name"`
	EndsAt      time.Time     `db:"ends_at" json:"ends_at"`
	DaysLeft    int           `db:"-" json:"days_left"`
	Levels      []PledgeLevel `db:"-" json:"levels,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// ComputeDaysLeft fills DaysLeft relative to now, rounding partial days up.
func (c *Campaign) ComputeDaysLeft(now time.Time) {
	remaining := c.EndsAt.Sub(now)
	if remaining <= 0 {
		c.DaysLeft = 0
		return
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	c.DaysLeft = days
}

// PledgeLevel is a fixed-price support tier of one campaign.
type PledgeLevel struct {
	ID          int64      `db:"id" json:"id"`
	CampaignID  int64      `db:"campaign_id" json:"campaign_id"`
	Name        string     `db:"name" json:"name"`
	Amount      Money      `db:"amount_cents" json:"amount"`
	Description string     `db:"description" json:"description"`
	Benefits    StringList `db:"benefits" json:"benefits"`
	Supporters  int64      `db:"supporters" json:"supporters"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

type PledgeStatus string

const (
	PledgeActive    PledgeStatus = "active"
	PledgeCompleted PledgeStatus = "completed"
	PledgeCancelled PledgeStatus = "cancelled"
)

// Pledge is a ledger entry; it references a user and a campaign but is owned by neither.
type Pledge struct {
	ID              int64        `db:"id" json:"id"`
	UserID          int64        `db:"user_id" json:"user_id"`
	CampaignID      int64        `db:"campaign_id" json:"campaign_id"`
	LevelID         *int64       `db:"level_id" json:"level_id"`
	Amount          Money        `db:"amount_cents" json:"amount"`
	Status          PledgeStatus `db:"status" json:"status"`
	OrderID         string       `db:"order_id" json:"order_id"`
	PaymentProvider string       `db:"payment_provider" json:"payment_provider"`
	TransactionID   string       `db:"transaction_id" json:"transaction_id,omitempty"`
	CampaignName    string       `db:"campaign_name" json:"campaign_name,omitempty"`
	CampaignImage   string       `db:"campaign_image" json:"campaign_image,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementPaid    SettlementStatus = "paid"
)

// Settlement is the fee/payout split recorded once per completed pledge.
type Settlement struct {
	ID          int64            `db:"id" json:"id"`
	PledgeID    int64            `db:"pledge_id" json:"pledge_id"`
	CampaignID  int64            `db:"campaign_id" json:"campaign_id"`
	Gross       Money            `db:"gross_cents" json:"gross_amount"`
	PlatformFee Money            `db:"fee_cents" json:"platform_fee"`
	Payout      Money            `db:"payout_cents" json:"payout_amount"`
	FeePercent  decimal.Decimal  `db:"fee_percent" json:"fee_percent"`
	Status      SettlementStatus `db:"status" json:"status"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	PaidAt      *time.Time       `db:"paid_at" json:"paid_at,omitempty"`
}

// Aggregate is the live pledged total and supporter count of a campaign.
type Aggregate struct {
	Pledged    Money `db:"pledged_cents" json:"pledged"`
	Supporters int64 `db:"supporters" json:"supporters"`
}

// StringList is stored as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("invalid benefits list: %w", err)
	}
	*l = out
	return nil
}
