package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/tasks"
)

func TestFeeRatesEstimate(t *testing.T) {
	// Base 1.0, 0.001 per budget unit.
	rates := FeeRates{
		Base:          fixedpoint.One,
		PerBudgetUnit: 100_000,
		PriorityMultiplierBps: map[string]uint64{
			"high":   15000,
			"medium": 10000,
			"low":    8000,
		},
	}

	tests := []struct {
		name     string
		priority string
		budget   uint64
		want     fixedpoint.Amount
	}{
		{
			name:     "medium is base plus budget",
			priority: "medium",
			budget:   1000,
			want:     200_000_000, // 1.0 + 1000*0.001
		},
		{
			name:     "high scales up by 1.5",
			priority: "high",
			budget:   1000,
			want:     300_000_000,
		},
		{
			name:     "low scales down by 0.8",
			priority: "low",
			budget:   1000,
			want:     160_000_000,
		},
		{
			name:     "unknown priority uses flat multiplier",
			priority: "urgent",
			budget:   0,
			want:     fixedpoint.One,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, rates.estimate(tt.priority, tt.budget))
		})
	}
}

func TestQueueFor(t *testing.T) {
	require.Equal(t, tasks.QueueHigh, tasks.QueueFor("high"))
	require.Equal(t, tasks.QueueMedium, tasks.QueueFor("medium"))
	require.Equal(t, tasks.QueueLow, tasks.QueueFor("low"))
	require.Equal(t, tasks.QueueMedium, tasks.QueueFor(""))
}
