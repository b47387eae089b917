// Package repository provides the SQLite-backed store for the gateway.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/telagent/gateway/internal/domain"
)

// SQLiteStore persists auth flow state, sessions, the conversation log,
// and the sales dataset behind the secured-search operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.seedSales(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed sales data: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS auth_flows (
			state TEXT PRIMARY KEY,
			verifier TEXT NOT NULL,
			auth_uri TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			authenticated INTEGER NOT NULL DEFAULT 0,
			role TEXT NOT NULL,
			token TEXT NOT NULL,
			claims TEXT,
			thread_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS sales (
			region TEXT NOT NULL,
			product TEXT NOT NULL,
			units INTEGER NOT NULL,
			revenue REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_region ON sales(region)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (s *SQLiteStore) seedSales() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sales`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	rows := []struct {
		region  string
		product string
		units   int
		revenue float64
	}{
		{"region1", "FiberLink 100", 1200, 540000},
		{"region1", "CloudPBX", 300, 255000},
		{"region2", "FiberLink 100", 950, 427500},
		{"region2", "IoT Fleet Tracker", 2100, 693000},
		{"region3", "CloudPBX", 800, 680000},
		{"region3", "IoT Fleet Tracker", 400, 132000},
	}
	for _, r := range rows {
		if _, err := s.db.Exec(
			`INSERT INTO sales (region, product, units, revenue) VALUES (?, ?, ?, ?)`,
			r.region, r.product, r.units, r.revenue); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveAuthFlow persists one in-flight authorization flow keyed by state.
func (s *SQLiteStore) SaveAuthFlow(ctx context.Context, flow *domain.AuthFlowState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_flows (state, verifier, auth_uri, created_at) VALUES (?, ?, ?, ?)`,
		flow.State, flow.Verifier, flow.AuthURI, flow.CreatedAt)
	return err
}

// TakeAuthFlow returns and deletes the flow for the given state. Returns
// nil when no flow is stored under that state.
func (s *SQLiteStore) TakeAuthFlow(ctx context.Context, state string) (*domain.AuthFlowState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var flow domain.AuthFlowState
	err = tx.QueryRowContext(ctx,
		`SELECT state, verifier, auth_uri, created_at FROM auth_flows WHERE state = ?`, state).
		Scan(&flow.State, &flow.Verifier, &flow.AuthURI, &flow.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_flows WHERE state = ?`, state); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &flow, nil
}

// PurgeAuthFlowsBefore drops abandoned flows older than the cutoff.
func (s *SQLiteStore) PurgeAuthFlowsBefore(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_flows WHERE created_at < ?`, cutoff)
	return err
}

// CreateSession persists a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	token, err := json.Marshal(session.Token)
	if err != nil {
		return err
	}
	authenticated := 0
	if session.Authenticated {
		authenticated = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, authenticated, role, token, claims, thread_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, authenticated, string(session.Role), string(token),
		string(session.Claims), session.ThreadID, session.CreatedAt)
	return err
}

// GetSession retrieves a session by id. Returns nil when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var (
		session       domain.Session
		authenticated int
		role          string
		token         string
		claims        sql.NullString
		threadID      sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, authenticated, role, token, claims, thread_id, created_at
		 FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&session.SessionID, &authenticated, &role, &token, &claims, &threadID, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session.Authenticated = authenticated == 1
	session.Role = domain.Role(role)
	if err := json.Unmarshal([]byte(token), &session.Token); err != nil {
		return nil, fmt.Errorf("corrupt token for session %s: %w", sessionID, err)
	}
	if claims.Valid {
		session.Claims = json.RawMessage(claims.String)
	}
	if threadID.Valid {
		session.ThreadID = threadID.String
	}
	return &session, nil
}

// UpdateSessionToken replaces the stored token set after a refresh.
func (s *SQLiteStore) UpdateSessionToken(ctx context.Context, sessionID string, token domain.TokenSet) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET token = ? WHERE session_id = ?`, string(raw), sessionID)
	return err
}

// UpdateSessionThread pins the conversation thread for a session.
func (s *SQLiteStore) UpdateSessionThread(ctx context.Context, sessionID, threadID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET thread_id = ? WHERE session_id = ?`, threadID, sessionID)
	return err
}

// DeleteSession destroys a session (logout or forced re-auth).
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// AppendMessage appends one message to the conversation log.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, thread_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ThreadID, msg.Role, msg.Content, msg.CreatedAt)
	return err
}

// GetMessages returns up to limit messages of a thread in append order.
func (s *SQLiteStore) GetMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, thread_id, role, content, created_at
		 FROM messages WHERE thread_id = ? ORDER BY created_at ASC LIMIT ?`, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.MessageID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// TopProduct returns the product with the most units sold, optionally
// scoped to a region. found is false when the scope has no sales at all.
func (s *SQLiteStore) TopProduct(ctx context.Context, region string) (product string, units int, found bool, err error) {
	query := `SELECT product, SUM(units) FROM sales GROUP BY product ORDER BY SUM(units) DESC LIMIT 1`
	args := []interface{}{}
	if region != "" {
		query = `SELECT product, SUM(units) FROM sales WHERE region = ? GROUP BY product ORDER BY SUM(units) DESC LIMIT 1`
		args = append(args, region)
	}
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&product, &units)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return product, units, true, nil
}

// ProductRevenue sums revenue for a product, optionally scoped to a region.
func (s *SQLiteStore) ProductRevenue(ctx context.Context, product, region string) (revenue float64, found bool, err error) {
	query := `SELECT COALESCE(SUM(revenue), 0), COUNT(*) FROM sales WHERE 1=1`
	args := []interface{}{}
	if product != "" {
		query += ` AND product = ? COLLATE NOCASE`
		args = append(args, product)
	}
	if region != "" {
		query += ` AND region = ?`
		args = append(args, region)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&revenue, &count); err != nil {
		return 0, false, err
	}
	return revenue, count > 0, nil
}
