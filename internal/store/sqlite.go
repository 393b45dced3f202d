package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"cipherelay/internal/domain"
)

// SQLiteStore is the durable user directory and message history.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		public_key TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		from_user_id TEXT NOT NULL,
		to_user_id TEXT NOT NULL DEFAULT '',
		ciphertext TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, acct domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, password_hash, public_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		acct.ID,
		string(acct.Username),
		acct.PasswordHash,
		acct.PublicKey,
		formatTime(acct.CreatedAt),
		formatTime(acct.UpdatedAt),
	)
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AccountByUsername(ctx context.Context, username domain.Identity) (domain.Account, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, public_key, created_at, updated_at
		 FROM accounts WHERE username = ?`, string(username))
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, false, nil
	}
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("query account: %w", err)
	}
	return acct, true, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, public_key, created_at, updated_at
		 FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, from_user_id, to_user_id, ciphertext, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID,
		string(msg.From),
		string(msg.To),
		msg.Ciphertext,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages id sent, received or saw
// broadcast, newest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, id domain.Identity, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_user_id, to_user_id, ciphertext, created_at
		 FROM messages
		 WHERE from_user_id = ?1 OR to_user_id = ?1 OR to_user_id = ''
		 ORDER BY created_at DESC, rowid DESC LIMIT ?2`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m          domain.Message
			from, to   string
			createdRaw string
		)
		if err := rows.Scan(&m.ID, &from, &to, &m.Ciphertext, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.From, m.To = domain.Identity(from), domain.Identity(to)
		if m.CreatedAt, err = parseTime(createdRaw); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (domain.Account, error) {
	var (
		acct               domain.Account
		username           string
		createdRaw, updRaw string
	)
	if err := row.Scan(&acct.ID, &username, &acct.PasswordHash, &acct.PublicKey, &createdRaw, &updRaw); err != nil {
		return domain.Account{}, err
	}
	acct.Username = domain.Identity(username)
	var err error
	if acct.CreatedAt, err = parseTime(createdRaw); err != nil {
		return domain.Account{}, err
	}
	if acct.UpdatedAt, err = parseTime(updRaw); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

var (
	_ domain.AccountStore = (*SQLiteStore)(nil)
	_ domain.MessageStore = (*SQLiteStore)(nil)

	_ domain.MessageHistory = (*SQLiteStore)(nil)
)
