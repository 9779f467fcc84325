package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, email, password_hash, login_method, email_verified, google_id, picture,
	verification_code, verification_code_expires, reset_code, reset_code_expires, created_at, updated_at`

const summaryColumns = `id, username, email, login_method, email_verified, google_id, picture, created_at, updated_at`

// codeColumns names the code and expiry columns for each code kind.
var codeColumns = map[models.CodeKind][2]string{
	models.CodeKindVerification: {"verification_code", "verification_code_expires"},
	models.CodeKindReset:        {"reset_code", "reset_code_expires"},
}

// UserRepository is the PostgreSQL credential store. Uniqueness and the
// reserved-name rule are backed by constraints, so concurrent writers cannot
// slip past the pre-checks.
type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.UserAccount, error) {
	var u models.UserAccount
	var loginMethod string

	err := scanner.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &loginMethod, &u.EmailVerified,
		&u.GoogleID, &u.Picture,
		&u.VerificationCode, &u.VerificationCodeExpires, &u.ResetCode, &u.ResetCodeExpires,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapUserError(err)
	}
	u.LoginMethod = models.LoginMethod(loginMethod)
	return &u, nil
}

func scanSummaryRows(rows pgx.Rows) ([]*models.UserSummary, error) {
	defer rows.Close()

	users := make([]*models.UserSummary, 0)
	for rows.Next() {
		var s models.UserSummary
		var loginMethod string
		var googleID, picture *string
		if err := rows.Scan(&s.ID, &s.Username, &s.Email, &loginMethod, &s.EmailVerified,
			&googleID, &picture, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		s.LoginMethod = models.LoginMethod(loginMethod)
		if googleID != nil {
			s.GoogleID = *googleID
		}
		if picture != nil {
			s.Picture = *picture
		}
		users = append(users, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return users, nil
}

// mapUserError turns a missing row into ErrUserNotFound and constraint
// violations into their specific conflicts.
func mapUserError(err error) error {
	mapped := database.MapPostgresError(err)
	if mapped == models.ErrNotFound {
		return models.ErrUserNotFound
	}
	return mapped
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.UserAccount, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// FindByUsername matches the username exactly as stored.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, models.NormalizeEmail(email)))
}

// Create inserts a new account. Duplicate email is reported before duplicate username.
func (r *UserRepository) Create(ctx context.Context, u *models.UserAccount) (*models.UserAccount, error) {
	u.ID = uuid.New().String()
	u.Email = models.NormalizeEmail(u.Email)
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.LoginMethod == "" {
		u.LoginMethod = models.LoginMethodUsername
	}

	if err := r.checkAvailable(ctx, u.Email, u.Username); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, login_method, email_verified, google_id, picture,
			verification_code, verification_code_expires, reset_code, reset_code_expires, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.LoginMethod), u.EmailVerified, u.GoogleID, u.Picture,
		u.VerificationCode, u.VerificationCodeExpires, u.ResetCode, u.ResetCodeExpires, u.CreatedAt, u.UpdatedAt,
	))
}

func (r *UserRepository) checkAvailable(ctx context.Context, email, username string) error {
	var emailTaken, usernameTaken bool
	err := r.pool.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE email = $1),
			EXISTS (SELECT 1 FROM users WHERE username = $2)`,
		email, username,
	).Scan(&emailTaken, &usernameTaken)
	if err != nil {
		return fmt.Errorf("failed to check uniqueness: %w", err)
	}
	switch {
	case emailTaken:
		return models.ErrDuplicateEmail
	case usernameTaken:
		return models.ErrDuplicateUsername
	}
	return nil
}

// UpdateFields applies a partial update. Renaming a non-reserved account to the
// reserved name fails with ErrReservedUsername.
func (r *UserRepository) UpdateFields(ctx context.Context, id string, upd models.UserUpdate) (*models.UserAccount, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrUserNotFound
	}

	var updated *models.UserAccount
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT username FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if err != nil {
			return mapUserError(err)
		}

		if upd.Username != nil && models.IsReservedUsername(*upd.Username) && !models.IsReservedUsername(current) {
			return models.ErrReservedUsername
		}

		sets, args := updateAssignments(upd, 2)
		if len(sets) == 0 {
			updated, err = scanUserRow(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
			return err
		}

		query := fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE id = $1 RETURNING %s`,
			strings.Join(sets, ", "), userColumns)
		updated, err = scanUserRow(tx.QueryRow(ctx, query, append([]any{id}, args...)...))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// updateAssignments renders the non-nil fields of upd as "col = $n" starting at placeholder n.
func updateAssignments(upd models.UserUpdate, n int) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
		n++
	}

	if upd.Username != nil {
		add("username", *upd.Username)
	}
	if upd.Email != nil {
		add("email", models.NormalizeEmail(*upd.Email))
	}
	if upd.ClearPasswordHash {
		sets = append(sets, "password_hash = NULL")
	} else if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.LoginMethod != nil {
		add("login_method", string(*upd.LoginMethod))
	}
	if upd.EmailVerified != nil {
		add("email_verified", *upd.EmailVerified)
	}
	if upd.GoogleID != nil {
		add("google_id", *upd.GoogleID)
	}
	if upd.Picture != nil {
		add("picture", *upd.Picture)
	}
	if upd.ClearVerificationCode {
		cols := codeColumns[models.CodeKindVerification]
		sets = append(sets, cols[0]+" = NULL", cols[1]+" = NULL")
	}
	return sets, args
}

// SetCode stores a code and its expiry together, replacing any pending code of that kind.
func (r *UserRepository) SetCode(ctx context.Context, id string, code *models.OneTimeCode) error {
	cols, ok := codeColumns[code.Kind]
	if !ok {
		return fmt.Errorf("unknown code kind %q", code.Kind)
	}

	query := fmt.Sprintf(`UPDATE users SET %s = $2, %s = $3, updated_at = NOW() WHERE id = $1`, cols[0], cols[1])
	tag, err := r.pool.Exec(ctx, query, id, code.Code, code.ExpiresAt)
	if err != nil {
		return mapUserError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// ConsumeCode clears a matching, unexpired code and applies effect in one
// statement. Losing a race to another consumer yields ErrNoPendingCode.
func (r *UserRepository) ConsumeCode(ctx context.Context, id string, kind models.CodeKind, code string, now time.Time, effect models.UserUpdate) (*models.UserAccount, error) {
	cols, ok := codeColumns[kind]
	if !ok {
		return nil, fmt.Errorf("unknown code kind %q", kind)
	}

	sets, args := updateAssignments(effect, 4)
	sets = append(sets, cols[0]+" = NULL", cols[1]+" = NULL", "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $1 AND %s = $2 AND %s >= $3 RETURNING %s`,
		strings.Join(sets, ", "), cols[0], cols[1], userColumns)

	account, err := scanUserRow(r.pool.QueryRow(ctx, query, append([]any{id, code, now}, args...)...))
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, models.ErrNoPendingCode
	}
	return account, err
}

// Delete removes an account. The reserved account cannot be deleted.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrUserNotFound
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var username string
		if err := tx.QueryRow(ctx, `SELECT username FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&username); err != nil {
			return mapUserError(err)
		}
		if models.IsReservedUsername(username) {
			return models.ErrProtectedAccount
		}

		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}

// searchClause builds the WHERE clause for a filter. The search term is a
// literal substring; LIKE wildcards in it are escaped.
func searchClause(filter models.UserFilter) (string, []any) {
	term := strings.TrimSpace(filter.Search)
	if term == "" {
		return "", nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return ` WHERE (username ILIKE $1 ESCAPE '\' OR email ILIKE $1 ESCAPE '\')`, []any{"%" + escaped + "%"}
}

func (r *UserRepository) Count(ctx context.Context, filter models.UserFilter) (int64, error) {
	where, args := searchClause(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return total, nil
}

// Search returns one page of redacted rows, newest first, plus the total match count.
func (r *UserRepository) Search(ctx context.Context, filter models.UserFilter, page, pageSize int) ([]*models.UserSummary, int64, error) {
	total, err := r.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	where, args := searchClause(filter)
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		summaryColumns, where, n+1, n+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", err)
	}

	users, err := scanSummaryRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}
