package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cgraph/gatekeeper/core"
)

// SQLiteStore persists users, their backup codes and session handles using
// modernc.org/sqlite. It implements ports.UserStore and ports.SessionStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE,
			username        TEXT NOT NULL,
			password_hash   TEXT NOT NULL DEFAULT '',
			wallet_address  TEXT UNIQUE,
			totp_secret     TEXT NOT NULL DEFAULT '',
			totp_enabled_at DATETIME,
			banned_at       DATETIME,
			deleted_at      DATETIME,
			created_at      DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS backup_codes (
			user_id   TEXT NOT NULL,
			code_hash TEXT NOT NULL,
			PRIMARY KEY (user_id, code_hash),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			token_hash     TEXT NOT NULL UNIQUE,
			user_agent     TEXT NOT NULL DEFAULT '',
			ip             TEXT NOT NULL DEFAULT '',
			created_at     DATETIME NOT NULL,
			last_active_at DATETIME NOT NULL,
			expires_at     DATETIME NOT NULL,
			revoked_at     DATETIME,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const userColumns = `id, email, username, password_hash, wallet_address, totp_secret,
	totp_enabled_at, banned_at, deleted_at, created_at`

// CreateUser inserts a new user row.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *core.User) error {
	var wallet any
	if user.WalletAddress != "" {
		wallet = user.WalletAddress
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, wallet_address, totp_secret,
			totp_enabled_at, banned_at, deleted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Username, user.PasswordHash, wallet, user.TOTPSecret,
		user.TOTPEnabledAt, user.BannedAt, user.DeletedAt, user.CreatedAt,
	)
	if err != nil {
		// A UNIQUE violation on email is the only expected conflict here.
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUserByID fetches a user row by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail fetches a user row by lowercase email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// GetUserByWallet fetches a user row by lowercase wallet address.
func (s *SQLiteStore) GetUserByWallet(ctx context.Context, address string) (*core.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE wallet_address = ?`, address))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	var wallet sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &wallet, &u.TOTPSecret,
		&u.TOTPEnabledAt, &u.BannedAt, &u.DeletedAt, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.WalletAddress = wallet.String
	return &u, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.execForUser(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
}

// SetBanned stamps or clears the ban marker.
func (s *SQLiteStore) SetBanned(ctx context.Context, userID string, bannedAt *time.Time) error {
	return s.execForUser(ctx, `UPDATE users SET banned_at = ? WHERE id = ?`, bannedAt, userID)
}

func (s *SQLiteStore) execForUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// EnableTOTP persists the confirmed secret, the hashed backup codes and the
// enabled timestamp in a single transaction.
func (s *SQLiteStore) EnableTOTP(ctx context.Context, userID, secret string, codeHashes []string, enabledAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET totp_secret = ?, totp_enabled_at = ? WHERE id = ?`,
			secret, enabledAt, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrUserNotFound
		}
		return replaceBackupCodes(ctx, tx, userID, codeHashes)
	})
}

// DisableTOTP clears the secret, the enabled timestamp and all backup codes.
func (s *SQLiteStore) DisableTOTP(ctx context.Context, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET totp_secret = '', totp_enabled_at = NULL WHERE id = ?`, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrUserNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
		return err
	})
}

// ReplaceBackupCodes swaps the whole backup-code set in one transaction,
// invalidating every previously issued code.
func (s *SQLiteStore) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return replaceBackupCodes(ctx, tx, userID, codeHashes)
	})
}

func replaceBackupCodes(ctx context.Context, tx *sql.Tx, userID string, codeHashes []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, h := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, code_hash) VALUES (?, ?)`, userID, h); err != nil {
			return err
		}
	}
	return nil
}

// ConsumeBackupCode removes one matching code. The single DELETE with a
// rows-affected check makes a concurrent double spend of the same code
// impossible: exactly one caller observes the row.
func (s *SQLiteStore) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ? AND code_hash = ?`, userID, codeHash)
	if err != nil {
		return false, 0, fmt.Errorf("consuming backup code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("consuming backup code: %w", err)
	}

	remaining, err := s.CountBackupCodes(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	return n > 0, remaining, nil
}

// CountBackupCodes returns the number of unused codes.
func (s *SQLiteStore) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting backup codes: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const sessionColumns = `id, user_id, token_hash, user_agent, ip, created_at,
	last_active_at, expires_at, revoked_at`

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *core.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, user_agent, ip, created_at,
			last_active_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.TokenHash, session.UserAgent, session.IP,
		session.CreatedAt, session.LastActiveAt, session.ExpiresAt, session.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSessionByID fetches a session row by id, live or not.
func (s *SQLiteStore) GetSessionByID(ctx context.Context, sessionID string) (*core.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID))
}

// GetSessionByTokenHash fetches a session row by token hash, live or not;
// liveness is the caller's check.
func (s *SQLiteStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token_hash = ?`, tokenHash))
}

func scanSession(row *sql.Row) (*core.Session, error) {
	var sess core.Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.UserAgent, &sess.IP,
		&sess.CreatedAt, &sess.LastActiveAt, &sess.ExpiresAt, &sess.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &sess, nil
}

// TouchSession advances last_active_at.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_active_at = ? WHERE id = ?`, at, sessionID)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// RevokeSession stamps revoked_at once; already-revoked sessions keep their
// original timestamp. Rows are never deleted.
func (s *SQLiteStore) RevokeSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, at, sessionID)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeAllSessions revokes every live session for a user.
func (s *SQLiteStore) RevokeAllSessions(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		at, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}
	return int(n), nil
}

// ListActiveSessions returns live sessions, most recently active first.
func (s *SQLiteStore) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*core.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
		 ORDER BY last_active_at DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*core.Session
	for rows.Next() {
		var sess core.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.UserAgent, &sess.IP,
			&sess.CreatedAt, &sess.LastActiveAt, &sess.ExpiresAt, &sess.RevokedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}
