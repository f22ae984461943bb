package storage

import (
	"sort"

	"expense-ledger/internal/models"
)

// topExpenses is how many of the largest expenses a summary lists.
const topExpenses = 3

// Summarize computes total, average and the largest expenses. The average of an empty
// set is 0. Equal amounts keep their order in expenses.
func Summarize(expenses []models.Expense) models.ExpenseStats {
	stats := models.ExpenseStats{Top: []models.Expense{}}
	if len(expenses) == 0 {
		return stats
	}

	for _, e := range expenses {
		stats.Total += e.Amount
	}
	stats.Average = stats.Total / float64(len(expenses))

	sorted := make([]models.Expense, len(expenses))
	copy(sorted, expenses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })

	n := min(topExpenses, len(sorted))
	stats.Top = sorted[:n:n]
	return stats
}
