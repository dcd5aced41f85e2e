// Package sqlite is the durable store behind profiles, token pools,
// admission slots, and the activity log.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/monoklix/mkx-cli/internal/domain"
)

type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the database at path, applies pragmas and migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'member',
            personal_auth_token TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE TABLE IF NOT EXISTS pool_tokens (
            token TEXT PRIMARY KEY,
            pool TEXT NOT NULL,
            created_at TEXT NOT NULL,
            usage_count INTEGER NOT NULL DEFAULT 0,
            usage_ceiling INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS generation_slots (
            server_url TEXT PRIMARY KEY,
            last_granted_at INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS activity_log (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            model TEXT NOT NULL,
            prompt TEXT NOT NULL,
            output TEXT NOT NULL,
            token_count INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL,
            error_message TEXT,
            created_at TEXT NOT NULL
        )`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, username, role, personal_auth_token FROM users WHERE id = ?`,
		userID,
	)

	var profile domain.Profile
	var role string
	err := row.Scan(&profile.ID, &profile.Username, &role, &profile.PersonalAuthToken)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	profile.Role = domain.Role(role)

	return profile, nil
}

// SaveProfile inserts or replaces a user record.
func (s *Store) SaveProfile(ctx context.Context, profile domain.Profile) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO users (id, username, role, personal_auth_token)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
            username = excluded.username,
            role = excluded.role,
            personal_auth_token = excluded.personal_auth_token`,
		profile.ID, profile.Username, string(profile.Role), profile.PersonalAuthToken,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) AssignPersonalToken(ctx context.Context, userID, token string) (domain.Profile, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE users SET personal_auth_token = ? WHERE id = ?`,
		token, userID,
	)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("assign personal token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Profile{}, fmt.Errorf("assign personal token rows: %w", err)
	}
	if affected == 0 {
		return domain.Profile{}, domain.ErrProfileNotFound
	}

	return s.GetProfile(ctx, userID)
}

func (s *Store) ListTokens(ctx context.Context, pool domain.TokenPool) ([]domain.PoolToken, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT token, pool, created_at, usage_count, usage_ceiling
         FROM pool_tokens WHERE pool = ? ORDER BY created_at`,
		string(pool),
	)
	if err != nil {
		return nil, fmt.Errorf("list pool tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.PoolToken
	for rows.Next() {
		var token domain.PoolToken
		var poolName, createdAt string
		if err := rows.Scan(&token.Token, &poolName, &createdAt, &token.UsageCount, &token.UsageCeiling); err != nil {
			return nil, fmt.Errorf("scan pool token: %w", err)
		}
		token.Pool = domain.TokenPool(poolName)
		token.CreatedAt = parseTime(createdAt)
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool tokens: %w", err)
	}

	return tokens, nil
}

func (s *Store) AddToken(ctx context.Context, token domain.PoolToken) error {
	if err := token.Validate(); err != nil {
		return err
	}

	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pool_tokens (token, pool, created_at, usage_count, usage_ceiling)
         VALUES (?, ?, ?, ?, ?)`,
		token.Token, string(token.Pool), createdAt.Format(time.RFC3339Nano),
		token.UsageCount, token.UsageCeiling,
	)
	if err != nil {
		return fmt.Errorf("add pool token: %w", err)
	}
	return nil
}

func (s *Store) RemoveToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pool_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("remove pool token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove pool token rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrPoolTokenNotFound
	}
	return nil
}

// IncrementIfAvailable advances the usage count in a single guarded UPDATE.
// The WHERE clause is the whole race-safety story: two claimants racing for
// the last slot both run the statement, and the engine lets exactly one
// through.
func (s *Store) IncrementIfAvailable(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE pool_tokens SET usage_count = usage_count + 1
         WHERE token = ? AND usage_count < usage_ceiling`,
		token,
	)
	if err != nil {
		return false, fmt.Errorf("increment token usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment token usage rows: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	var exists bool
	row := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM pool_tokens WHERE token = ?)`, token)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check token existence: %w", err)
	}
	if !exists {
		return false, domain.ErrPoolTokenNotFound
	}

	return false, nil
}

// AcquireSlot implements advisory per-server rate limiting. A slot is a
// row holding the last grant time; the guarded UPDATE grants immediately
// when the cooldown has elapsed, otherwise the caller waits out the
// remainder and takes the slot. Lost races here only mean a missed delay.
func (s *Store) AcquireSlot(ctx context.Context, serverURL string, cooldown time.Duration) error {
	now := time.Now().UTC().Unix()
	cooldownSecs := int64(cooldown / time.Second)

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE generation_slots SET last_granted_at = ?
         WHERE server_url = ? AND ? - last_granted_at >= ?`,
		now, serverURL, now, cooldownSecs,
	)
	if err != nil {
		return fmt.Errorf("update generation slot: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 1 {
		return nil
	}

	res, err = s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO generation_slots (server_url, last_granted_at) VALUES (?, ?)`,
		serverURL, now,
	)
	if err != nil {
		return fmt.Errorf("insert generation slot: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 1 {
		return nil
	}

	var lastGranted int64
	row := s.db.QueryRowContext(ctx, `SELECT last_granted_at FROM generation_slots WHERE server_url = ?`, serverURL)
	if err := row.Scan(&lastGranted); err != nil {
		return fmt.Errorf("read generation slot: %w", err)
	}

	wait := time.Duration(cooldownSecs-(now-lastGranted)) * time.Second
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE generation_slots SET last_granted_at = ? WHERE server_url = ?`,
		time.Now().UTC().Unix(), serverURL,
	)
	if err != nil {
		return fmt.Errorf("take generation slot: %w", err)
	}
	return nil
}

func (s *Store) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO activity_log (id, user_id, model, prompt, output, token_count, status, error_message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Model, entry.Prompt, entry.Output,
		entry.TokenCount, string(entry.Status), nullableString(entry.Error),
		timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTime(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
