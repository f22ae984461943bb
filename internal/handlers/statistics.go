package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"expense-ledger/internal/export"

	"go.uber.org/zap"
)

// Statistics returns total, average and the three largest expenses of the caller.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	if h.cacheBypassed(user.ID) {
		stats, err := h.db.ExpenseStats(r.Context(), user.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats, gen, ok, cacheErr := h.cache.Get(user.ID)
	if cacheErr != nil {
		h.log.Warn("stats cache read failed", zap.Int64("user_id", user.ID), zap.Error(cacheErr))
	}
	if ok {
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats, err := h.db.ExpenseStats(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// gen was read before the summary, so a write that lands in between has already
	// moved the user past it and this entry is never served. Without a generation there
	// is nothing safe to store under.
	if cacheErr == nil {
		if err := h.cache.Set(user.ID, gen, stats); err != nil {
			h.log.Warn("stats cache write failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// Export streams all of the caller's expenses as CSV (default) or XLSX.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		writeDetail(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	expenses, err := h.db.AllExpenses(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = export.WriteXLSX(&buf, expenses)
	default:
		contentType = "text/csv; charset=utf-8"
		err = export.WriteCSV(&buf, expenses)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"expenses_%s.%s\"",
		time.Now().Format("20060102"), format))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn("export write failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}
