package models

import "time"

// Expense represents a single spending record owned by one user.
type Expense struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Amount    float64   `json:"amount"`
	Category  *string   `json:"category"`
	Merchant  *string   `json:"merchant"`
	CreatedAt time.Time `json:"created_at"`
	UserID    int64     `json:"user_id"`
}

// NewExpense holds the caller-supplied fields of an expense to be created.
type NewExpense struct {
	Title    string
	Amount   float64
	Category *string
	Merchant *string
}

// ExpensePatch lists the fields of a partial update. Nil fields are left untouched.
type ExpensePatch struct {
	Title    *string
	Amount   *float64
	Category *string
	Merchant *string
}

// Empty reports whether the patch changes nothing.
func (p ExpensePatch) Empty() bool {
	return p.Title == nil && p.Amount == nil && p.Category == nil && p.Merchant == nil
}

// Sort keys and orders accepted by ExpenseFilter.
const (
	SortByDate   = "date"
	SortByAmount = "amount"
	OrderAsc     = "asc"
	OrderDesc    = "desc"
)

// ExpenseFilter narrows and orders a listing. Empty strings mean "no filter" or the default.
type ExpenseFilter struct {
	Category string
	Merchant string
	SortBy   string
	Order    string
}

// ExpenseStats summarises a user's full expense set.
type ExpenseStats struct {
	Total   float64   `json:"total_spending"`
	Average float64   `json:"average_spending"`
	Top     []Expense `json:"top_3_expenses"`
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
