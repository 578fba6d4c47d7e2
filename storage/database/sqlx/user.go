package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
)

const userColumns = `id, name, username, email, is_active, roles, password_hash, bio,
	onboarding_status, onboarding_reason, onboarding_reviewer, onboarding_reviewed,
	created_at, updated_at, last_login, password_changed_at`

type userRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Username           null.String    `db:"username"`
	Email              null.String    `db:"email"`
	IsActive           bool           `db:"is_active"`
	Roles              pq.StringArray `db:"roles"`
	PasswordHash       null.Bytes     `db:"password_hash"`
	Bio                string         `db:"bio"`
	OnboardingStatus   string         `db:"onboarding_status"`
	OnboardingReason   string         `db:"onboarding_reason"`
	OnboardingReviewer null.String    `db:"onboarding_reviewer"`
	OnboardingReviewed null.Time      `db:"onboarding_reviewed"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	LastLogin          null.Time      `db:"last_login"`
	PasswordChangedAt  null.Time      `db:"password_changed_at"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:                 usr.ID,
		Name:               usr.Name,
		Username:           null.NewString(usr.Username, usr.Username != ""),
		Email:              null.NewString(usr.Email, usr.Email != ""),
		IsActive:           usr.Active(),
		Roles:              pq.StringArray(usr.Roles),
		PasswordHash:       null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		Bio:                usr.Bio,
		OnboardingStatus:   usr.Onboarding.Status,
		OnboardingReason:   usr.Onboarding.Reason,
		OnboardingReviewer: null.NewString(usr.Onboarding.ReviewedBy, usr.Onboarding.ReviewedBy != ""),
		OnboardingReviewed: null.TimeFromPtr(usr.Onboarding.ReviewedAt),
		CreatedAt:          usr.CreatedAt.UTC(),
		UpdatedAt:          usr.UpdatedAt.UTC(),
		LastLogin:          null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
		PasswordChangedAt:  null.TimeFromPtr(usr.PasswordChangedAt),
	}
}

func (r userRow) toUser() user.User {
	isActive := r.IsActive
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     &isActive,
		Roles:        []string(r.Roles),
		PasswordHash: r.PasswordHash.Bytes,
		Bio:          r.Bio,
		Onboarding: user.Onboarding{
			Status:     r.OnboardingStatus,
			Reason:     r.OnboardingReason,
			ReviewedBy: r.OnboardingReviewer.String,
			ReviewedAt: r.OnboardingReviewed.Ptr(),
		},
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
		LastLogin: r.LastLogin.Time.UTC(),

		PasswordChangedAt: r.PasswordChangedAt.Ptr(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	stmt := `SELECT COALESCE(username, '') AS username, COALESCE(email, '') AS email FROM "user" WHERE (username = ? OR email = ?)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		stmt += " AND id NOT IN (?)"
		args = append(args, validIDs(ids))
	}
	stmt, args, err := sqlx.In(stmt, args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}

	var clashes []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err := repo.db.SelectContext(ctx, &clashes, repo.db.Rebind(stmt), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, c := range clashes {
		if username != "" && c.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && c.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	stmt := `INSERT INTO "user" (` + userColumns + `) VALUES (
		:id, :name, :username, :email, :is_active, :roles, :password_hash, :bio,
		:onboarding_status, :onboarding_reason, :onboarding_reviewer, :onboarding_reviewed,
		:created_at, :updated_at, :last_login, :password_changed_at)`
	if _, err := repo.db.NamedExecContext(ctx, stmt, toUserRow(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, q query.Query) ([]user.User, int, error) {
	var rows []userRow
	count, err := selectPage(ctx, repo.db, &rows, `"user"`, userColumns, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, count, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		where string
		args  []interface{}
	)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		where, args = "id = ?", []interface{}{filter.ID}
	case filter.Username != "":
		where, args = "username = ?", []interface{}{filter.Username}
	case filter.Email != "":
		where, args = "email = ?", []interface{}{filter.Email}
	case len(filter.UsernameOrEmail) > 0:
		ors := make([]string, 0, len(filter.UsernameOrEmail))
		for _, uname := range filter.UsernameOrEmail {
			ors = append(ors, "username = ? OR email = ?")
			args = append(args, uname, uname)
		}
		where = strings.Join(ors, " OR ")
	default:
		return user.User{}, user.ErrNotFound
	}

	var r userRow
	stmt := repo.db.Rebind(`SELECT ` + userColumns + ` FROM "user" WHERE ` + where + ` LIMIT 1`)
	if err := repo.db.GetContext(ctx, &r, stmt, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return r.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	stmt := `UPDATE "user" SET
		name = :name, username = :username, email = :email, is_active = :is_active, roles = :roles,
		password_hash = :password_hash, bio = :bio, onboarding_status = :onboarding_status,
		onboarding_reason = :onboarding_reason, onboarding_reviewer = :onboarding_reviewer,
		onboarding_reviewed = :onboarding_reviewed, updated_at = :updated_at, last_login = :last_login,
		password_changed_at = :password_changed_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, stmt, toUserRow(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, checkAffected(res, user.ErrNotFound)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	stmt, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(stmt), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "getting affected rows")
}
