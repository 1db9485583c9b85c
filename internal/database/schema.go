package database

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		avatar TEXT NOT NULL DEFAULT '',
		is_creator BOOLEAN NOT NULL DEFAULT FALSE,
		bio TEXT NOT NULL DEFAULT '',
		website VARCHAR(500) NOT NULL DEFAULT '',
		social_twitter VARCHAR(255) NOT NULL DEFAULT '',
		social_instagram VARCHAR(255) NOT NULL DEFAULT '',
		social_youtube VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		name VARCHAR(255) NOT NULL,
		title VARCHAR(500) NOT NULL,
		category VARCHAR(32) NOT NULL,
		description TEXT NOT NULL,
		image TEXT NOT NULL DEFAULT '',
		goal_cents BIGINT NOT NULL DEFAULT 0 CHECK (goal_cents >= 0),
		ends_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS pledge_levels (
		id BIGSERIAL PRIMARY KEY,
		campaign_id BIGINT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
		description TEXT NOT NULL DEFAULT '',
		benefits TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS pledges (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		campaign_id BIGINT NOT NULL REFERENCES campaigns(id),
		level_id BIGINT REFERENCES pledge_levels(id),
		amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
		status VARCHAR(20) NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed', 'cancelled')),
		order_id VARCHAR(64) UNIQUE NOT NULL,
		payment_provider VARCHAR(32) NOT NULL,
		transaction_id VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS settlements (
		id BIGSERIAL PRIMARY KEY,
		pledge_id BIGINT NOT NULL UNIQUE REFERENCES pledges(id),
		campaign_id BIGINT NOT NULL REFERENCES campaigns(id),
		gross_cents BIGINT NOT NULL,
		fee_cents BIGINT NOT NULL,
		payout_cents BIGINT NOT NULL,
		fee_percent NUMERIC(5,2) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		paid_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_user_id ON campaigns(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_category ON campaigns(category)`,
	`CREATE INDEX IF NOT EXISTS idx_pledges_user_id ON pledges(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pledges_campaign_status ON pledges(campaign_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_settlements_campaign_id ON settlements(campaign_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL,
		avatar TEXT NOT NULL DEFAULT '',
		is_creator BOOLEAN NOT NULL DEFAULT 0,
		bio TEXT NOT NULL DEFAULT '',
		website TEXT NOT NULL DEFAULT '',
		social_twitter TEXT NOT NULL DEFAULT '',
		social_instagram TEXT NOT NULL DEFAULT '',
		social_youtube TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		image TEXT NOT NULL DEFAULT '',
		goal_cents INTEGER NOT NULL DEFAULT 0 CHECK (goal_cents >= 0),
		ends_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS pledge_levels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		amount_cents INTEGER NOT NULL CHECK (amount_cents > 0),
		description TEXT NOT NULL DEFAULT '',
		benefits TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS pledges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id),
		level_id INTEGER REFERENCES pledge_levels(id),
		amount_cents INTEGER NOT NULL CHECK (amount_cents > 0),
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed', 'cancelled')),
		order_id TEXT UNIQUE NOT NULL,
		payment_provider TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS settlements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pledge_id INTEGER NOT NULL UNIQUE REFERENCES pledges(id),
		campaign_id INTEGER NOT NULL REFERENCES campaigns(id),
		gross_cents INTEGER NOT NULL,
		fee_cents INTEGER NOT NULL,
		payout_cents INTEGER NOT NULL,
		fee_percent TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid')),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		paid_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_user_id ON campaigns(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_category ON campaigns(category)`,
	`CREATE INDEX IF NOT EXISTS idx_pledges_user_id ON pledges(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_pledges_campaign_status ON pledges(campaign_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_settlements_campaign_id ON settlements(campaign_id)`,
}

// Migrate creates the five tables and their indexes for the connected driver.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	statements := postgresSchema
	if db.DriverName() == "sqlite3" {
		statements = sqliteSchema
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Printf("Schema is up to date (%d statements)", len(statements))
	return nil
}
