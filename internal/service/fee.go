package service

import (
	"github.com/shopspring/decimal"

	"pledgr/internal/models"
)

// FeeSplit divides a gross amount between the platform and the creator.
// Fee + Payout always equals Gross.
type FeeSplit struct {
	Gross  models.Money `json:"gross_amount"`
	Fee    models.Money `json:"platform_fee"`
	Payout models.Money `json:"payout_amount"`
}

// ComputeFee charges percent of gross, rounded half away from zero to the cent.
func ComputeFee(gross models.Money, percent decimal.Decimal) FeeSplit {
	fee := gross.Decimal().Mul(percent).Shift(-2).Round(2)
	feeCents := models.Money(fee.Shift(2).IntPart())
	return FeeSplit{
		Gross:  gross,
		Fee:    feeCents,
		Payout: gross - feeCents,
	}
}
