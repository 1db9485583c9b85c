package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"pledgr/internal/config"
	"pledgr/internal/database"
	"pledgr/internal/models"
	"pledgr/internal/server"
	"pledgr/internal/service"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, err := cmd.Flags().GetString("config-dir")
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

func openDatabase(ctx context.Context, cmd *cobra.Command) (*config.Config, *sqlx.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, err := openDatabase(ctx, cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func feeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fee [amount]",
		Short: "Show the platform fee split for a pledge amount",
		Long: `Show how a completed pledge of the given amount is split between the
platform fee and the creator payout.

Examples:
  pledgrctl fee 25.00
  pledgrctl fee 8 --percent 2.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gross, err := models.ParseMoney(args[0])
			if err != nil {
				return err
			}
			if gross <= 0 {
				return fmt.Errorf("amount must be greater than zero")
			}

			raw, err := cmd.Flags().GetString("percent")
			if err != nil {
				return err
			}
			var percent decimal.Decimal
			if raw == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				percent = cfg.FeePercent()
			} else if percent, err = decimal.NewFromString(raw); err != nil {
				return fmt.Errorf("invalid percent %q: %w", raw, err)
			}
			if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
				return fmt.Errorf("percent must be between 0 and 100, got %s", percent)
			}

			split := service.ComputeFee(gross, percent)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gross:  %s\n", split.Gross)
			fmt.Fprintf(out, "fee:    %s (%s%%)\n", split.Fee, percent)
			fmt.Fprintf(out, "payout: %s\n", split.Payout)
			return nil
		},
	}

	cmd.Flags().String("percent", "", "fee percentage (defaults to PLATFORM_FEE_PERCENT)")
	return cmd
}

func payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Manage creator payouts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "mark-paid [campaign-id]",
		Short: "Mark every pending settlement of a campaign as paid out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			campaignID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || campaignID <= 0 {
				return fmt.Errorf("invalid campaign id %q", args[0])
			}

			ctx := cmd.Context()
			cfg, db, err := openDatabase(ctx, cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			deps, err := server.NewDeps(cfg, db)
			if err != nil {
				return err
			}

			n, err := deps.Pledges.MarkSettlementsPaid(ctx, campaignID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d settlement(s) of campaign %d as paid\n", n, campaignID)
			return nil
		},
	})

	return cmd
}
