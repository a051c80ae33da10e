package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// failure. Callers use this to fall back to the fetch path when a
// concurrent insert won the race.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const userColumns = `id, email, display_name, COALESCE(department, ''), COALESCE(password_hash, ''), COALESCE(org_id, ''), default_anonymity, visibility_pref, unread_count, is_email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Department,
		&user.PasswordHash,
		&user.OrgID,
		&user.DefaultAnonymity,
		&user.VisibilityPref,
		&user.UnreadCount,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	anonymity := user.DefaultAnonymity
	if anonymity == 0 {
		anonymity = AnonymityPublic
	}
	visibility := user.VisibilityPref
	if visibility == "" {
		visibility = "everyone"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, department, password_hash, org_id, default_anonymity, visibility_pref, is_email_verified, verification_token, verification_expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, NULLIF($10, ''), $11)
	`, user.ID, user.Email, user.DisplayName, user.Department, user.PasswordHash, user.OrgID, anonymity, visibility, user.IsEmailVerified, user.VerificationToken, user.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// GetOrCreateOrganizationByName treats the organization name as the tenant
// key: members who register under the same name land in the same tenant.
func (s *PostgresStore) GetOrCreateOrganizationByName(ctx context.Context, orgID, name, creatorID string) (Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at FROM organizations WHERE LOWER(name)=LOWER($1)
	`, name).Scan(&org.ID, &org.Name, &org.CreatedBy, &org.CreatedAt)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Organization{}, fmt.Errorf("lookup organization: %w", err)
	}

	org = Organization{}
	insertErr := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations (id, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, name, created_by, created_at
	`, orgID, name, creatorID).Scan(&org.ID, &org.Name, &org.CreatedBy, &org.CreatedAt)
	if insertErr == nil {
		return org, nil
	}
	if !IsUniqueViolation(insertErr) {
		return Organization{}, fmt.Errorf("insert organization: %w", insertErr)
	}

	// Lost the creation race; the winner's row is the tenant.
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at FROM organizations WHERE LOWER(name)=LOWER($1)
	`, name).Scan(&org.ID, &org.Name, &org.CreatedBy, &org.CreatedAt)
	if err != nil {
		return Organization{}, fmt.Errorf("refetch organization: %w", err)
	}
	return org, nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at FROM organizations WHERE id=$1
	`, orgID).Scan(&org.ID, &org.Name, &org.CreatedBy, &org.CreatedAt)
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *PostgresStore) ListOrganizationMembers(ctx context.Context, orgID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE org_id=$1 ORDER BY display_name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

// IncrementUnread adds one to the user's unread-activity counter. The add
// happens storage-side so concurrent events never lose updates.
func (s *PostgresStore) IncrementUnread(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET unread_count = unread_count + 1 WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResetUnread(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET unread_count = 0 WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT unread_count FROM users WHERE id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read unread: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.display_name, COALESCE(u.department, ''), COALESCE(u.password_hash, ''), COALESCE(u.org_id, ''), u.default_anonymity, u.visibility_pref, u.unread_count, u.is_email_verified, COALESCE(u.verification_token, ''), u.verification_expires_at, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash)
	return scanUser(row)
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
