package cache

import (
	"context"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/productsearch/internal/domain"
)

// counterValue reads the current value of one tier/outcome series.
func counterValue(t *testing.T, tier domain.CacheTier, outcome string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, operationsTotal.WithLabelValues(tier.String(), outcome).Write(m))
	return m.GetCounter().GetValue()
}

func TestOperationsTotal_CountsOutcomes(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	spec := laptopSpec()
	other := domain.QuerySpec{Text: "desk lamp"}.Normalize()

	outcomes := []string{outcomeSet, outcomeHit, outcomeMiss, outcomeInvalidated}
	before := make(map[string]float64, len(outcomes))
	for _, o := range outcomes {
		before[o] = counterValue(t, domain.TierExact, o)
	}

	c.Put(ctx, spec, domain.TierExact, samplePage(spec, 1))
	_, ok := c.Get(ctx, spec, domain.TierExact)
	require.True(t, ok)
	_, ok = c.Get(ctx, other, domain.TierExact)
	require.False(t, ok)
	require.Equal(t, 1, c.Invalidate(ctx, Selector{CategoryIDs: []string{"c-laptops"}}))

	for _, o := range outcomes {
		assert.Equal(t, 1.0, counterValue(t, domain.TierExact, o)-before[o], o)
	}
}
