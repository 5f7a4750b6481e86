package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/internquest/backend/core/identity"
)

const uniqueViolation = "23505"

type identityRow struct {
	UID             string       `db:"uid"`
	Email           string       `db:"email"`
	DisplayName     string       `db:"display_name"`
	EmailVerified   bool         `db:"email_verified"`
	Disabled        bool         `db:"disabled"`
	PasswordHash    []byte       `db:"password_hash"`
	Role            string       `db:"role"`
	MustSetPassword bool         `db:"must_set_password"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
	LastLogin       sql.NullTime `db:"last_login"`
}

func toRow(id identity.Identity) identityRow {
	return identityRow{
		UID:             id.UID,
		Email:           id.Email,
		DisplayName:     id.DisplayName,
		EmailVerified:   id.EmailVerified,
		Disabled:        id.Disabled,
		PasswordHash:    id.PasswordHash,
		Role:            id.Claims.Role,
		MustSetPassword: id.Claims.MustSetPassword,
		CreatedAt:       id.CreatedAt.UTC(),
		UpdatedAt:       id.UpdatedAt.UTC(),
		LastLogin:       sql.NullTime{Time: id.LastLogin.UTC(), Valid: !id.LastLogin.IsZero()},
	}
}

func (row identityRow) identity() identity.Identity {
	id := identity.Identity{
		UID:           row.UID,
		Email:         row.Email,
		DisplayName:   row.DisplayName,
		EmailVerified: row.EmailVerified,
		Disabled:      row.Disabled,
		PasswordHash:  row.PasswordHash,
		Claims: identity.CustomClaims{
			Role:            row.Role,
			MustSetPassword: row.MustSetPassword,
		},
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		id.LastLogin = row.LastLogin.Time.UTC()
	}
	return id
}

type identityRepository struct {
	db *sqlx.DB
}

var _ identity.Repository = (*identityRepository)(nil) // interface compliance check

func NewIdentityRepository(db *sqlx.DB) identity.Repository {
	return &identityRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to identity.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return identity.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const selectIdentity = `SELECT uid, email, display_name, email_verified, disabled, password_hash, role,
	must_set_password, created_at, updated_at, last_login FROM identities`

func (repo *identityRepository) CreateIdentity(ctx context.Context, id identity.Identity) (identity.Identity, error) {
	const q = `INSERT INTO identities (uid, email, display_name, email_verified, disabled, password_hash, role,
		must_set_password, created_at, updated_at, last_login)
		VALUES (:uid, :email, :display_name, :email_verified, :disabled, :password_hash, :role,
		:must_set_password, :created_at, :updated_at, :last_login)`

	row := toRow(id)
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return identity.Identity{}, identity.ErrEmailExists
		}
		return identity.Identity{}, errors.Wrap(err, "inserting identity")
	}
	return row.identity(), nil
}

func (repo *identityRepository) GetIdentity(ctx context.Context, uid string) (identity.Identity, error) {
	var row identityRow
	if err := repo.db.GetContext(ctx, &row, selectIdentity+" WHERE uid = $1", uid); err != nil {
		return identity.Identity{}, trapNoRowsErr(err, "finding identity by UID")
	}
	return row.identity(), nil
}

func (repo *identityRepository) GetIdentityByEmail(ctx context.Context, email string) (identity.Identity, error) {
	var row identityRow
	if err := repo.db.GetContext(ctx, &row, selectIdentity+" WHERE email = $1", email); err != nil {
		return identity.Identity{}, trapNoRowsErr(err, "finding identity by email")
	}
	return row.identity(), nil
}

func (repo *identityRepository) ListIdentities(ctx context.Context, afterUID string, limit int) ([]identity.Identity, error) {
	var rows []identityRow
	if err := repo.db.SelectContext(ctx, &rows, selectIdentity+" WHERE uid > $1 ORDER BY uid LIMIT $2", afterUID, limit); err != nil {
		return nil, errors.Wrap(err, "listing identities")
	}
	ids := make([]identity.Identity, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.identity())
	}
	return ids, nil
}

func (repo *identityRepository) UpdateIdentity(ctx context.Context, id identity.Identity) (identity.Identity, error) {
	const q = `UPDATE identities SET display_name = :display_name, email_verified = :email_verified,
		disabled = :disabled, password_hash = :password_hash, role = :role, must_set_password = :must_set_password,
		updated_at = :updated_at, last_login = :last_login WHERE uid = :uid`

	res, err := repo.db.NamedExecContext(ctx, q, toRow(id))
	if err != nil {
		return identity.Identity{}, errors.Wrap(err, "updating identity")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return identity.Identity{}, identity.ErrNotFound
	}
	return repo.GetIdentity(ctx, id.UID)
}
