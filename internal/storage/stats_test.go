package storage

import (
	"testing"

	"expense-ledger/internal/models"

	"github.com/stretchr/testify/assert"
)

func expensesWithAmounts(amounts ...float64) []models.Expense {
	out := make([]models.Expense, 0, len(amounts))
	for i, a := range amounts {
		out = append(out, models.Expense{ID: int64(i + 1), Amount: a})
	}
	return out
}

func ids(expenses []models.Expense) []int64 {
	out := make([]int64, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, e.ID)
	}
	return out
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		amounts []float64
		total   float64
		average float64
		topIDs  []int64
	}{
		{"empty", nil, 0, 0, []int64{}},
		{"single", []float64{12}, 12, 12, []int64{1}},
		{"two", []float64{3, 7}, 10, 5, []int64{2, 1}},
		{"reference set", []float64{10, 50, 30, 90, 5}, 185, 37, []int64{4, 2, 3}},
		{"ties keep order", []float64{20, 50, 20, 50, 20}, 160, 32, []int64{2, 4, 1}},
		{"negative amounts", []float64{-5, 10, -1}, 4, 4.0 / 3.0, []int64{2, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := Summarize(expensesWithAmounts(tt.amounts...))
			assert.InDelta(t, tt.total, stats.Total, 1e-9)
			assert.InDelta(t, tt.average, stats.Average, 1e-9)
			assert.NotNil(t, stats.Top)
			assert.Equal(t, tt.topIDs, ids(stats.Top))
		})
	}
}

func TestSummarize_DoesNotReorderInput(t *testing.T) {
	in := expensesWithAmounts(1, 3, 2)
	Summarize(in)
	assert.Equal(t, []int64{1, 2, 3}, ids(in))
}
