package positions

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vestra-platform/vestra_service/internal/domain/entities"
)

// NoiseGenerator produces the bounded multiplicative jitter applied during
// valuation. Implementations must be deterministic for a given position and
// elapsed period count so valuations are reproducible.
type NoiseGenerator interface {
	Factor(positionID uuid.UUID, elapsedPeriods int64, category entities.PlanCategory) decimal.Decimal
}

// jitterBounds maps each category to its documented jitter amplitude.
// fixed_income ±1%, real_estate ±2%, stocks ±3%, forex ±4%, crypto ±5%.
var jitterBounds = map[entities.PlanCategory]decimal.Decimal{
	entities.CategoryFixedIncome: decimal.NewFromFloat(0.01),
	entities.CategoryRealEstate:  decimal.NewFromFloat(0.02),
	entities.CategoryStocks:      decimal.NewFromFloat(0.03),
	entities.CategoryForex:       decimal.NewFromFloat(0.04),
	entities.CategoryCrypto:      decimal.NewFromFloat(0.05),
}

// JitterBound returns the jitter amplitude for a category
func JitterBound(category entities.PlanCategory) decimal.Decimal {
	if bound, ok := jitterBounds[category]; ok {
		return bound
	}
	return decimal.Zero
}

// SeededNoise is the default noise generator. It hashes the position id and
// elapsed period count, so the same position at the same tick always yields
// the same factor regardless of process or host.
type SeededNoise struct{}

// NewSeededNoise creates the default deterministic noise generator
func NewSeededNoise() *SeededNoise {
	return &SeededNoise{}
}

// Factor returns a multiplicative factor in [1-bound, 1+bound] for the category
func (g *SeededNoise) Factor(positionID uuid.UUID, elapsedPeriods int64, category entities.PlanCategory) decimal.Decimal {
	bound := JitterBound(category)
	if bound.IsZero() {
		return decimal.NewFromInt(1)
	}

	h := fnv.New64a()
	h.Write(positionID[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(elapsedPeriods))
	h.Write(buf[:])

	// Map the hash onto [-1, 1] with four decimal places of resolution.
	unit := decimal.NewFromInt(int64(h.Sum64()%20001) - 10000).Div(decimal.NewFromInt(10000))

	return decimal.NewFromInt(1).Add(unit.Mul(bound))
}

// NoNoise disables jitter entirely; used in tests and previews
type NoNoise struct{}

// Factor always returns exactly 1
func (NoNoise) Factor(uuid.UUID, int64, entities.PlanCategory) decimal.Decimal {
	return decimal.NewFromInt(1)
}
