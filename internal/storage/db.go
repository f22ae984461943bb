package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"expense-ledger/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already exists")
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	// SQLite serialises writers anyway, and a single connection keeps ":memory:"
	// databases from splitting into one database per connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// CreateUser creates a new user with the given email and password hash.
func (db *DB) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	result, err := psql.Insert("users").
		Columns("email", "password_hash", "created_at").
		Values(email, passwordHash, db.now().UTC()).
		RunWith(db.conn).
		ExecContext(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, errors.Wrap(err, "create user")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.getUser(ctx, sq.Eq{"id": id})
}

// GetUserByEmail retrieves a user by exact email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, sq.Eq{"email": email})
}

func (db *DB) getUser(ctx context.Context, where sq.Eq) (*models.User, error) {
	var u models.User
	err := psql.Select("id", "email", "password_hash", "created_at").
		From("users").
		Where(where).
		RunWith(db.conn).
		QueryRowContext(ctx).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get user")
	}
	return &u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := psql.Select("COUNT(*)").From("users").RunWith(db.conn).QueryRowContext(ctx).Scan(&count)
	return count, errors.Wrap(err, "count users")
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// without extended result codes only the primary code is reported
	return se.Code() == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
