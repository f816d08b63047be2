package sqlite

import (
	"context"
	"database/sql"

	"github.com/resys/shop-auth/internal/tokens/domain"
)

type usersRepo struct {
	db querier
}

const userColumns = `id, username, email, email_verified, is_admin, lockout_ends_at, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = ?`,
		username,
	)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, email_verified, is_admin, lockout_ends_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.EmailVerified, u.IsAdmin,
		mapOptionalTime(u.LockoutEndsAt), u.CreatedAt, u.UpdatedAt,
	)
	return mapConstraint(err)
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u       domain.User
		lockout sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.EmailVerified, &u.IsAdmin,
		&lockout, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.LockoutEndsAt = mapNullTimePtr(lockout)
	return u, nil
}
