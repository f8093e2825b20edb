package positions

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
)

func TestSeededNoiseDeterministic(t *testing.T) {
	gen := NewSeededNoise()
	id := uuid.New()

	first := gen.Factor(id, 10, entities.CategoryCrypto)
	second := gen.Factor(id, 10, entities.CategoryCrypto)
	assert.True(t, first.Equal(second), "same inputs must yield the same factor")
}

func TestSeededNoiseVariesWithPeriod(t *testing.T) {
	gen := NewSeededNoise()
	id := uuid.New()

	distinct := map[string]struct{}{}
	for period := int64(0); period < 50; period++ {
		distinct[gen.Factor(id, period, entities.CategoryStocks).String()] = struct{}{}
	}
	assert.Greater(t, len(distinct), 1, "factors should vary across periods")
}

func TestSeededNoiseRespectsBounds(t *testing.T) {
	gen := NewSeededNoise()
	one := decimal.NewFromInt(1)

	for category, bound := range map[entities.PlanCategory]decimal.Decimal{
		entities.CategoryFixedIncome: decimal.NewFromFloat(0.01),
		entities.CategoryRealEstate:  decimal.NewFromFloat(0.02),
		entities.CategoryStocks:      decimal.NewFromFloat(0.03),
		entities.CategoryForex:       decimal.NewFromFloat(0.04),
		entities.CategoryCrypto:      decimal.NewFromFloat(0.05),
	} {
		lo, hi := one.Sub(bound), one.Add(bound)
		for period := int64(0); period < 100; period++ {
			factor := gen.Factor(uuid.New(), period, category)
			assert.True(t, factor.GreaterThanOrEqual(lo) && factor.LessThanOrEqual(hi),
				"factor %s out of [%s, %s] for %s", factor, lo, hi, category)
		}
	}
}

func TestJitterBoundUnknownCategory(t *testing.T) {
	assert.True(t, JitterBound(entities.PlanCategory("bonds")).IsZero())
}

func TestNoNoise(t *testing.T) {
	factor := NoNoise{}.Factor(uuid.New(), 99, entities.CategoryCrypto)
	assert.True(t, factor.Equal(decimal.NewFromInt(1)))
}
