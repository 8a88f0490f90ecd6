package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"sanctuary/internal/apperr"
	"sanctuary/internal/models"
)

var (
	ErrEmailTaken   = apperr.Conflict("Email already registered")
	ErrUserNotFound = apperr.NotFound("User not found")
)

const userColumns = "id, email, password_hash, first_name, last_name, is_premium, created_at"

type UserStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewUserStore(db *sqlx.DB, now func() time.Time) *UserStore {
	if now == nil {
		now = time.Now
	}
	return &UserStore{db: db, now: now}
}

// Create inserts u with a fresh id. The unique email constraint makes a
// concurrent duplicate registration fail with ErrEmailTaken.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return apperr.Internal("could not allocate id", err)
	}
	u.ID = id.String()
	u.CreatedAt = s.now().UTC()
	u.IsPremium = false

	res, err := s.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (:id, :email, :password_hash, :first_name, :last_name, :is_premium, :created_at)
		ON CONFLICT (email) DO NOTHING`, u)
	if err != nil {
		return apperr.Internal("could not create user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal("could not create user", err)
	}
	if n == 0 {
		return ErrEmailTaken
	}
	return nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GrantPremium sets the entitlement flag. Granting twice is the same as once.
func (s *UserStore) GrantPremium(ctx context.Context, id string) error {
	n, err := grantPremium(ctx, s.db, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// grantPremium runs on the pool or inside a caller's transaction and reports
// how many users matched id.
func grantPremium(ctx context.Context, ext sqlx.ExtContext, id string) (int64, error) {
	res, err := ext.ExecContext(ctx, ext.Rebind(`UPDATE users SET is_premium = ? WHERE id = ?`), true, id)
	if err != nil {
		return 0, apperr.Internal("could not grant entitlement", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Internal("could not grant entitlement", err)
	}
	return n, nil
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, s.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal("could not fetch user", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
