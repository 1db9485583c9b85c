package server

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"pledgr/internal/auth"
	"pledgr/internal/config"
	"pledgr/internal/payment"
	"pledgr/internal/service"
)

// NewDeps builds the services from cfg on top of db.
func NewDeps(cfg *config.Config, db *sqlx.DB) (Deps, error) {
	hasher, err := auth.NewHasher(cfg.KDFIterations)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to create password hasher: %w", err)
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry)
	lockout := auth.NewLockout(cfg.LoginMaxAttempts, cfg.LoginWindow, cfg.LoginLockout)
	policy := auth.PasswordPolicy{
		MinLength:      cfg.PasswordMinLength,
		RequireUpper:   cfg.PasswordRequireUpper,
		RequireDigit:   cfg.PasswordRequireDigit,
		RequireSpecial: cfg.PasswordRequireSpecial,
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		return Deps{}, err
	}

	return Deps{
		DB:        db,
		Auth:      service.NewAuthService(db, hasher, tokens, lockout, policy, cfg.DBQueryTimeout),
		Campaigns: service.NewCampaignService(db, cfg.CampaignDurationDays, cfg.DBQueryTimeout),
		Pledges:   service.NewPledgeService(db, provider, cfg.FeePercent(), cfg.Currency, cfg.DBQueryTimeout),
	}, nil
}

// NewProvider returns the configured payment provider.
func NewProvider(cfg *config.Config) (payment.Provider, error) {
	switch cfg.PaymentProvider {
	case "", "sandbox":
		log.Println("Using sandbox payment provider: every payment is captured immediately")
		return payment.NewSandbox(), nil
	case "midtrans":
		if cfg.MidtransServerKey == "" {
			return nil, fmt.Errorf("MIDTRANS_SERVER_KEY is required for the midtrans provider")
		}
		return payment.NewMidtrans(cfg.MidtransServerKey, cfg.MidtransEnv), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}
