// Package returns implements the return model: pure functions mapping a plan
// tier, principal and duration to an expected payout curve. Derivation happens
// only at explicit call sites, never in persistence hooks.
package returns

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
)

const (
	// WeeksPerYear is the number of accrual periods per year
	WeeksPerYear = 52

	// SubPeriodsPerWeek is the number of accrual sub-periods per duration week
	SubPeriodsPerWeek = 7

	// SubPeriodLength is the length of a single accrual sub-period
	SubPeriodLength = 24 * time.Hour

	// MinDurationWeeks is the duration floor
	MinDurationWeeks = 1
)

// MinPrincipal is the principal floor in major units
var MinPrincipal = decimal.NewFromInt(50)

// tierRates maps each tier to its fixed annual midpoint rate in percent.
// Rates are not user-settable. The annual-rate formula is the single
// authoritative payout formula.
var tierRates = map[entities.PlanTier]decimal.Decimal{
	entities.TierStarter:  decimal.NewFromInt(15),
	entities.TierSilver:   decimal.NewFromInt(25),
	entities.TierGold:     decimal.NewFromInt(30),
	entities.TierPlatinum: decimal.NewFromInt(40),
}

// Quote holds the derived return fields for a position
type Quote struct {
	RatePct          decimal.Decimal `json:"rate_pct"`
	ExpectedPayout   decimal.Decimal `json:"expected_payout"`
	PerPeriodAccrual decimal.Decimal `json:"per_period_accrual"`
	MaturesAt        time.Time       `json:"matures_at"`
}

// TierRate returns the fixed annual rate for a tier
func TierRate(tier entities.PlanTier) (decimal.Decimal, error) {
	rate, ok := tierRates[tier]
	if !ok {
		return decimal.Zero, domainerrors.ValidationError("tier", "unknown plan tier")
	}
	return rate, nil
}

// Preview computes the expected payout curve for the given inputs without any
// side effects. Commit persists the identical fields, so the two always agree.
func Preview(tier entities.PlanTier, principal decimal.Decimal, durationWeeks int, now time.Time) (*Quote, error) {
	if err := validate(tier, principal, durationWeeks); err != nil {
		return nil, err
	}
	return compute(tier, principal, durationWeeks, now), nil
}

// Commit computes the return fields to be persisted onto a new position
// starting at the given instant. It shares the computation with Preview.
func Commit(tier entities.PlanTier, principal decimal.Decimal, durationWeeks int, startedAt time.Time) (*Quote, error) {
	if err := validate(tier, principal, durationWeeks); err != nil {
		return nil, err
	}
	return compute(tier, principal, durationWeeks, startedAt), nil
}

func validate(tier entities.PlanTier, principal decimal.Decimal, durationWeeks int) error {
	if err := tier.Validate(); err != nil {
		return domainerrors.ValidationError("tier", err.Error())
	}
	if principal.LessThan(MinPrincipal) {
		return domainerrors.ValidationError("principal", "principal below minimum of "+MinPrincipal.String())
	}
	if durationWeeks < MinDurationWeeks {
		return domainerrors.ValidationError("duration_weeks", "duration below minimum of 1 week")
	}
	return nil
}

func compute(tier entities.PlanTier, principal decimal.Decimal, durationWeeks int, startedAt time.Time) *Quote {
	rate := tierRates[tier]

	// expectedPayout = principal * rate% * weeks / 52, rounded to cents
	payout := principal.
		Mul(rate).
		Mul(decimal.NewFromInt(int64(durationWeeks))).
		Div(decimal.NewFromInt(100 * WeeksPerYear)).
		Round(2)

	totalSubPeriods := decimal.NewFromInt(int64(durationWeeks * SubPeriodsPerWeek))
	accrual := payout.Div(totalSubPeriods)

	return &Quote{
		RatePct:          rate,
		ExpectedPayout:   payout,
		PerPeriodAccrual: accrual,
		MaturesAt:        startedAt.Add(time.Duration(durationWeeks) * 7 * 24 * time.Hour),
	}
}
