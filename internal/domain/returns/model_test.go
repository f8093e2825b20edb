package returns

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
	domainerrors "github.com/vestra-platform/vestra_service/internal/domain/errors"
)

func TestTierRate(t *testing.T) {
	tests := []struct {
		tier entities.PlanTier
		want string
	}{
		{entities.TierStarter, "15"},
		{entities.TierSilver, "25"},
		{entities.TierGold, "30"},
		{entities.TierPlatinum, "40"},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			rate, err := TierRate(tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rate.String())
		})
	}
}

func TestTierRateUnknown(t *testing.T) {
	_, err := TierRate(entities.PlanTier("diamond"))
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestPreviewGoldFourWeeks(t *testing.T) {
	now := time.Now()
	quote, err := Preview(entities.TierGold, decimal.NewFromInt(500), 4, now)
	require.NoError(t, err)

	// 500 * 30% * 4/52 = 11.538..., rounded to cents
	assert.True(t, quote.ExpectedPayout.Equal(decimal.NewFromFloat(11.54)),
		"expected payout 11.54, got %s", quote.ExpectedPayout)
	assert.Equal(t, "30", quote.RatePct.String())

	// 4 weeks of daily sub-periods
	total := quote.PerPeriodAccrual.Mul(decimal.NewFromInt(28))
	assert.True(t, total.Round(2).Equal(quote.ExpectedPayout),
		"accrual over all sub-periods must recover the payout, got %s", total)

	assert.Equal(t, now.Add(4*7*24*time.Hour), quote.MaturesAt)
}

func TestPreviewAndCommitAgree(t *testing.T) {
	now := time.Now()
	preview, err := Preview(entities.TierPlatinum, decimal.NewFromInt(1000), 12, now)
	require.NoError(t, err)

	commit, err := Commit(entities.TierPlatinum, decimal.NewFromInt(1000), 12, now)
	require.NoError(t, err)

	assert.True(t, preview.ExpectedPayout.Equal(commit.ExpectedPayout))
	assert.True(t, preview.PerPeriodAccrual.Equal(commit.PerPeriodAccrual))
	assert.Equal(t, preview.MaturesAt, commit.MaturesAt)
}

func TestPreviewRejectsBadInput(t *testing.T) {
	now := time.Now()

	_, err := Preview(entities.TierGold, decimal.NewFromInt(49), 4, now)
	assert.True(t, domainerrors.IsInvalidInput(err), "principal below minimum")

	_, err = Preview(entities.TierGold, decimal.NewFromInt(500), 0, now)
	assert.True(t, domainerrors.IsInvalidInput(err), "duration below minimum")

	_, err = Preview(entities.PlanTier("bronze"), decimal.NewFromInt(500), 4, now)
	assert.True(t, domainerrors.IsInvalidInput(err), "unknown tier")
}

func TestPayoutScalesLinearlyWithDuration(t *testing.T) {
	now := time.Now()
	oneWeek, err := Preview(entities.TierSilver, decimal.NewFromInt(520), 1, now)
	require.NoError(t, err)
	fourWeeks, err := Preview(entities.TierSilver, decimal.NewFromInt(520), 4, now)
	require.NoError(t, err)

	assert.True(t, fourWeeks.ExpectedPayout.Equal(oneWeek.ExpectedPayout.Mul(decimal.NewFromInt(4))))
}

func TestMinimumPrincipalBoundary(t *testing.T) {
	now := time.Now()
	_, err := Preview(entities.TierStarter, decimal.NewFromInt(50), 1, now)
	assert.NoError(t, err, "exactly the minimum principal is accepted")
}
