package handlers

import (
	"net/http"
	"strconv"

	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"go.uber.org/zap"
)

type createExpenseRequest struct {
	Title    *string  `json:"title" validate:"required"`
	Amount   *float64 `json:"amount" validate:"required"`
	Category *string  `json:"category"`
	Merchant *string  `json:"merchant"`
}

type updateExpenseRequest struct {
	Title    *string  `json:"title"`
	Amount   *float64 `json:"amount"`
	Category *string  `json:"category"`
	Merchant *string  `json:"merchant"`
}

// CreateExpense handles the creation of a new expense.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	var req createExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}

	expense, err := h.db.CreateExpense(r.Context(), user.ID, models.NewExpense{
		Title:    *req.Title,
		Amount:   *req.Amount,
		Category: req.Category,
		Merchant: req.Merchant,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidateStats(user.ID)

	writeJSON(w, http.StatusCreated, map[string]any{"message": "Expense added", "expense": expense})
}

// ListExpenses returns the caller's expenses, optionally filtered and sorted.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	q := r.URL.Query()

	expenses, err := h.db.ListExpenses(r.Context(), user.ID, models.ExpenseFilter{
		Category: q.Get("category"),
		Merchant: q.Get("merchant"),
		SortBy:   q.Get("sort_by"),
		Order:    q.Get("order"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// GetExpense returns one of the caller's expenses.
func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := expenseID(r)
	if !ok {
		h.fail(w, r, storage.ErrNotFound)
		return
	}

	expense, err := h.db.GetExpense(r.Context(), user.ID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// UpdateExpense changes only the fields present in the request body.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := expenseID(r)
	if !ok {
		h.fail(w, r, storage.ErrNotFound)
		return
	}

	var req updateExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}

	expense, err := h.db.UpdateExpense(r.Context(), user.ID, id, models.ExpensePatch{
		Title:    req.Title,
		Amount:   req.Amount,
		Category: req.Category,
		Merchant: req.Merchant,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidateStats(user.ID)

	writeJSON(w, http.StatusOK, map[string]any{"message": "Expense updated", "expense": expense})
}

// DeleteExpense removes one of the caller's expenses.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := expenseID(r)
	if !ok {
		h.fail(w, r, storage.ErrNotFound)
		return
	}

	if err := h.db.DeleteExpense(r.Context(), user.ID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidateStats(user.ID)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}

// expenseID parses the {id} path value. Malformed ids are treated as missing expenses.
func expenseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handlers) invalidateStats(userID int64) {
	if err := h.cache.Invalidate(userID); err != nil {
		h.log.Warn("stats cache invalidation failed, bypassing cache",
			zap.Int64("user_id", userID), zap.Duration("for", h.statsTTL), zap.Error(err))
		h.bypassMu.Lock()
		h.bypass[userID] = h.now().Add(h.statsTTL)
		h.bypassMu.Unlock()
	}
}

// cacheBypassed reports whether userID may still have a stale entry from a failed
// invalidation.
func (h *Handlers) cacheBypassed(userID int64) bool {
	h.bypassMu.Lock()
	defer h.bypassMu.Unlock()

	until, ok := h.bypass[userID]
	if !ok {
		return false
	}
	if !h.now().Before(until) {
		delete(h.bypass, userID)
		return false
	}
	return true
}
