package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const userColumns = `u.id, u.account, u.password_hash, u.display_name, u.role, u.class_id, c.name AS class_name, u.enrollment_status, u.created_at`

// Repository persists users and classes in Postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// FindByID returns a user, or nil when none exists.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users u LEFT JOIN class_groups c ON c.id = u.class_id WHERE u.id = $1`
	var u User
	if err := r.db.GetContext(ctx, &u, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &u, nil
}

// FindByAccount returns a user by login account, or nil when none exists.
func (r *Repository) FindByAccount(ctx context.Context, account string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users u LEFT JOIN class_groups c ON c.id = u.class_id WHERE u.account = $1`
	var u User
	if err := r.db.GetContext(ctx, &u, query, account); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by account: %w", err)
	}
	return &u, nil
}

// Create inserts a user and fills in the generated id and creation time.
func (r *Repository) Create(ctx context.Context, u *User) error {
	if u.EnrollmentStatus == "" {
		u.EnrollmentStatus = Unenrolled
	}
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO users (account, password_hash, display_name, role, class_id, enrollment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, u.Account, u.PasswordHash, u.DisplayName, u.Role, u.ClassID, u.EnrollmentStatus)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// MarkEnrolled flips enrollment status to enrolled. Already-enrolled users are
// left unchanged.
func (r *Repository) MarkEnrolled(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET enrollment_status = 'enrolled' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark enrolled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark enrolled: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark enrolled: user %d not found", id)
	}
	return nil
}

// FindClass returns a class, or nil when none exists.
func (r *Repository) FindClass(ctx context.Context, id int64) (*ClassGroup, error) {
	var c ClassGroup
	if err := r.db.GetContext(ctx, &c, `SELECT id, name, code FROM class_groups WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &c, nil
}

// ListClasses returns all classes ordered by name.
func (r *Repository) ListClasses(ctx context.Context) ([]ClassGroup, error) {
	classes := []ClassGroup{}
	if err := r.db.SelectContext(ctx, &classes, `SELECT id, name, code FROM class_groups ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}
