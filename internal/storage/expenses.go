package storage

import (
	"context"
	"database/sql"

	"expense-ledger/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

var expenseColumns = []string{"id", "title", "amount", "category", "merchant", "created_at", "user_id"}

// ownedBy is the predicate every expense statement starts from. Expense methods take
// the owner as a required argument and build on it, so no query can run unscoped.
func ownedBy(userID int64) sq.Eq {
	return sq.Eq{"user_id": userID}
}

func ownedRow(userID, id int64) sq.Eq {
	return sq.Eq{"user_id": userID, "id": id}
}

func (db *DB) selectExpenses(userID int64) sq.SelectBuilder {
	return psql.Select(expenseColumns...).From("expenses").Where(ownedBy(userID))
}

// CreateExpense stores a new expense for userID, stamping it with the current time.
func (db *DB) CreateExpense(ctx context.Context, userID int64, e models.NewExpense) (*models.Expense, error) {
	result, err := psql.Insert("expenses").
		Columns("title", "amount", "category", "merchant", "created_at", "user_id").
		Values(e.Title, e.Amount, e.Category, e.Merchant, db.now().UTC(), userID).
		RunWith(db.conn).
		ExecContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "create expense")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "create expense")
	}
	return db.GetExpense(ctx, userID, id)
}

// GetExpense retrieves a single expense owned by userID.
func (db *DB) GetExpense(ctx context.Context, userID, id int64) (*models.Expense, error) {
	row := db.selectExpenses(userID).
		Where(sq.Eq{"id": id}).
		RunWith(db.conn).
		QueryRowContext(ctx)

	e, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get expense")
	}
	return e, nil
}

// ListExpenses returns userID's expenses matching f.
//
// Sorting by amount is descending only for an explicit or defaulted "desc"; any other
// order value sorts ascending. Sorting by date is always newest first, whatever f.Order
// says; clients rely on that ordering.
func (db *DB) ListExpenses(ctx context.Context, userID int64, f models.ExpenseFilter) ([]models.Expense, error) {
	q := db.selectExpenses(userID)
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": f.Category})
	}
	if f.Merchant != "" {
		q = q.Where(sq.Eq{"merchant": f.Merchant})
	}

	order := f.Order
	if order == "" {
		order = models.OrderDesc
	}

	switch {
	case f.SortBy == models.SortByAmount && order == models.OrderDesc:
		q = q.OrderBy("amount DESC", "id ASC")
	case f.SortBy == models.SortByAmount:
		q = q.OrderBy("amount ASC", "id ASC")
	default:
		q = q.OrderBy("created_at DESC", "id DESC")
	}

	return db.queryExpenses(ctx, q)
}

// AllExpenses returns every expense owned by userID in insertion order.
func (db *DB) AllExpenses(ctx context.Context, userID int64) ([]models.Expense, error) {
	return db.queryExpenses(ctx, db.selectExpenses(userID).OrderBy("id ASC"))
}

// UpdateExpense applies the non-nil fields of p to an expense owned by userID.
func (db *DB) UpdateExpense(ctx context.Context, userID, id int64, p models.ExpensePatch) (*models.Expense, error) {
	if p.Empty() {
		return db.GetExpense(ctx, userID, id)
	}

	q := psql.Update("expenses").Where(ownedRow(userID, id))
	if p.Title != nil {
		q = q.Set("title", *p.Title)
	}
	if p.Amount != nil {
		q = q.Set("amount", *p.Amount)
	}
	if p.Category != nil {
		q = q.Set("category", *p.Category)
	}
	if p.Merchant != nil {
		q = q.Set("merchant", *p.Merchant)
	}

	result, err := q.RunWith(db.conn).ExecContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "update expense")
	}
	if err := requireAffected(result); err != nil {
		return nil, err
	}
	return db.GetExpense(ctx, userID, id)
}

// DeleteExpense permanently removes an expense owned by userID.
func (db *DB) DeleteExpense(ctx context.Context, userID, id int64) error {
	result, err := psql.Delete("expenses").
		Where(ownedRow(userID, id)).
		RunWith(db.conn).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrap(err, "delete expense")
	}
	return requireAffected(result)
}

// ExpenseStats summarises all of userID's expenses.
func (db *DB) ExpenseStats(ctx context.Context, userID int64) (models.ExpenseStats, error) {
	expenses, err := db.AllExpenses(ctx, userID)
	if err != nil {
		return models.ExpenseStats{}, err
	}
	return Summarize(expenses), nil
}

func (db *DB) queryExpenses(ctx context.Context, q sq.SelectBuilder) ([]models.Expense, error) {
	rows, err := q.RunWith(db.conn).QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list expenses")
	}
	defer rows.Close()

	expenses := make([]models.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, errors.Wrap(err, "list expenses")
		}
		expenses = append(expenses, *e)
	}
	return expenses, errors.Wrap(rows.Err(), "list expenses")
}

func scanExpense(row sq.RowScanner) (*models.Expense, error) {
	var (
		e                  models.Expense
		category, merchant sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Amount, &category, &merchant, &e.CreatedAt, &e.UserID); err != nil {
		return nil, err
	}
	if category.Valid {
		e.Category = &category.String
	}
	if merchant.Valid {
		e.Merchant = &merchant.String
	}
	return &e, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
