/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package storage persists the platform's relational data in SQLite.
//
// Multi-tenancy is enforced at the query level: every read takes the
// caller's company id and never returns rows from another tenant.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // database/sql driver
)

// ErrNotFound is returned when a requested row does not exist
// (or belongs to another company).
var ErrNotFound = errors.New("not found")

// Store provides access to the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database and applies the schema.
func Open(cfg *Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, time.Duration(cfg.BusyTimeout).Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent request handling.
	db.SetMaxOpenConns(1)

	if err = migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		deny_terms TEXT NOT NULL DEFAULT '[]',
		created_at_ms INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id),
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		session_token TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_profiles_session_token
		ON user_profiles(session_token) WHERE session_token != ''`,
	`CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id),
		title TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		uploaded_by TEXT NOT NULL,
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recordings_company ON recordings(company_id)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		recording_id TEXT PRIMARY KEY REFERENCES recordings(id),
		language TEXT NOT NULL DEFAULT '',
		words TEXT NOT NULL DEFAULT '[]',
		matches TEXT NOT NULL DEFAULT '[]',
		redacted_text TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS training_assignments (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id),
		user_id TEXT NOT NULL,
		video_id TEXT NOT NULL,
		title TEXT NOT NULL,
		assigned_by TEXT NOT NULL,
		status TEXT NOT NULL,
		due_at_ms INTEGER NOT NULL DEFAULT 0,
		completed_at_ms INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_company ON training_assignments(company_id)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id),
		user_id TEXT NOT NULL,
		user_name TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_company ON chat_messages(company_id, created_at_ms)`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// CreateCompany inserts a new company.
func (s *Store) CreateCompany(ctx context.Context, c *Company) error {
	denyTerms, err := json.Marshal(c.DenyTerms)
	if err != nil {
		return fmt.Errorf("marshal deny terms: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, deny_terms, created_at_ms) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, string(denyTerms), c.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

// GetCompany returns a company by id.
func (s *Store) GetCompany(ctx context.Context, id string) (*Company, error) {
	var c Company
	var denyTerms string
	var createdAtMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, deny_terms, created_at_ms FROM companies WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &denyTerms, &createdAtMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select company: %w", err)
	}
	if err = json.Unmarshal([]byte(denyTerms), &c.DenyTerms); err != nil {
		return nil, fmt.Errorf("unmarshal deny terms: %w", err)
	}
	c.CreatedAt = time.UnixMilli(createdAtMS)
	return &c, nil
}

// CreateUserProfile inserts a new user profile.
func (s *Store) CreateUserProfile(ctx context.Context, u *UserProfile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (id, company_id, email, name, role, session_token, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.CompanyID, u.Email, u.Name, string(u.Role), u.SessionToken, u.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert user profile: %w", err)
	}
	return nil
}

// GetUserProfile returns a user profile by id.
func (s *Store) GetUserProfile(ctx context.Context, id string) (*UserProfile, error) {
	return s.selectUserProfile(ctx, `id = ?`, id)
}

// GetUserProfileBySessionToken resolves a bearer token to a user profile.
func (s *Store) GetUserProfileBySessionToken(ctx context.Context, token string) (*UserProfile, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.selectUserProfile(ctx, `session_token = ?`, token)
}

func (s *Store) selectUserProfile(ctx context.Context, where string, arg interface{}) (*UserProfile, error) {
	var u UserProfile
	var role string
	var createdAtMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, email, name, role, session_token, created_at_ms
		FROM user_profiles WHERE `+where, arg).
		Scan(&u.ID, &u.CompanyID, &u.Email, &u.Name, &role, &u.SessionToken, &createdAtMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user profile: %w", err)
	}
	u.Role = Role(role)
	u.CreatedAt = time.UnixMilli(createdAtMS)
	return &u, nil
}

// CreateRecording inserts a new recording.
func (s *Store) CreateRecording(ctx context.Context, r *Recording) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recordings (id, company_id, title, storage_key, uploaded_by, status, duration_ms, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, r.Title, r.StorageKey, r.UploadedBy, string(r.Status), r.DurationMS, r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// GetRecording returns a recording by id scoped to a company.
func (s *Store) GetRecording(ctx context.Context, companyID, id string) (*Recording, error) {
	var r Recording
	var status string
	var createdAtMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, title, storage_key, uploaded_by, status, duration_ms, created_at_ms
		FROM recordings WHERE id = ? AND company_id = ?`, id, companyID).
		Scan(&r.ID, &r.CompanyID, &r.Title, &r.StorageKey, &r.UploadedBy, &status, &r.DurationMS, &createdAtMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select recording: %w", err)
	}
	r.Status = RecordingStatus(status)
	r.CreatedAt = time.UnixMilli(createdAtMS)
	return &r, nil
}

// ListRecordings returns all of a company's recordings, newest first.
func (s *Store) ListRecordings(ctx context.Context, companyID string) ([]*Recording, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, title, storage_key, uploaded_by, status, duration_ms, created_at_ms
		FROM recordings WHERE company_id = ? ORDER BY created_at_ms DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("select recordings: %w", err)
	}
	defer rows.Close()

	var recordings []*Recording
	for rows.Next() {
		var r Recording
		var status string
		var createdAtMS int64
		if err = rows.Scan(&r.ID, &r.CompanyID, &r.Title, &r.StorageKey, &r.UploadedBy,
			&status, &r.DurationMS, &createdAtMS); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		r.Status = RecordingStatus(status)
		r.CreatedAt = time.UnixMilli(createdAtMS)
		recordings = append(recordings, &r)
	}
	return recordings, rows.Err()
}

// UpdateRecordingStatus sets a recording's pipeline status.
func (s *Store) UpdateRecordingStatus(ctx context.Context, companyID, id string, status RecordingStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recordings SET status = ? WHERE id = ? AND company_id = ?`, string(status), id, companyID)
	if err != nil {
		return fmt.Errorf("update recording status: %w", err)
	}
	return errNotFoundIfNoRows(res)
}

// UpsertTranscript stores (or replaces) the transcript for a recording.
func (s *Store) UpsertTranscript(ctx context.Context, t *Transcript) error {
	words, err := json.Marshal(t.Words)
	if err != nil {
		return fmt.Errorf("marshal words: %w", err)
	}
	matches, err := json.Marshal(t.Matches)
	if err != nil {
		return fmt.Errorf("marshal matches: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (recording_id, language, words, matches, redacted_text, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(recording_id) DO UPDATE SET
			language = excluded.language,
			words = excluded.words,
			matches = excluded.matches,
			redacted_text = excluded.redacted_text,
			created_at_ms = excluded.created_at_ms`,
		t.RecordingID, t.Language, string(words), string(matches), t.RedactedText, t.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

// GetTranscript returns the transcript for a recording.
func (s *Store) GetTranscript(ctx context.Context, recordingID string) (*Transcript, error) {
	var t Transcript
	var words, matches string
	var createdAtMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT recording_id, language, words, matches, redacted_text, created_at_ms
		FROM transcripts WHERE recording_id = ?`, recordingID).
		Scan(&t.RecordingID, &t.Language, &words, &matches, &t.RedactedText, &createdAtMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select transcript: %w", err)
	}
	if err = json.Unmarshal([]byte(words), &t.Words); err != nil {
		return nil, fmt.Errorf("unmarshal words: %w", err)
	}
	if err = json.Unmarshal([]byte(matches), &t.Matches); err != nil {
		return nil, fmt.Errorf("unmarshal matches: %w", err)
	}
	t.CreatedAt = time.UnixMilli(createdAtMS)
	return &t, nil
}

// CreateAssignment inserts a new training assignment.
func (s *Store) CreateAssignment(ctx context.Context, a *TrainingAssignment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_assignments
		(id, company_id, user_id, video_id, title, assigned_by, status, due_at_ms, completed_at_ms, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CompanyID, a.UserID, a.VideoID, a.Title, a.AssignedBy, string(a.Status),
		timeToMS(a.DueAt), timeToMS(a.CompletedAt), a.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// GetAssignment returns an assignment by id scoped to a company.
func (s *Store) GetAssignment(ctx context.Context, companyID, id string) (*TrainingAssignment, error) {
	rows, err := s.queryAssignments(ctx, `id = ? AND company_id = ?`, id, companyID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// ListAssignments returns a company's assignments, optionally filtered by user.
func (s *Store) ListAssignments(ctx context.Context, companyID, userID string) ([]*TrainingAssignment, error) {
	if userID != "" {
		return s.queryAssignments(ctx, `company_id = ? AND user_id = ?`, companyID, userID)
	}
	return s.queryAssignments(ctx, `company_id = ?`, companyID)
}

func (s *Store) queryAssignments(ctx context.Context, where string, args ...interface{}) ([]*TrainingAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, user_id, video_id, title, assigned_by, status, due_at_ms, completed_at_ms, created_at_ms
		FROM training_assignments WHERE `+where+` ORDER BY created_at_ms DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("select assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*TrainingAssignment
	for rows.Next() {
		var a TrainingAssignment
		var status string
		var dueAtMS, completedAtMS, createdAtMS int64
		if err = rows.Scan(&a.ID, &a.CompanyID, &a.UserID, &a.VideoID, &a.Title, &a.AssignedBy,
			&status, &dueAtMS, &completedAtMS, &createdAtMS); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.Status = AssignmentStatus(status)
		a.DueAt = msToTime(dueAtMS)
		a.CompletedAt = msToTime(completedAtMS)
		a.CreatedAt = time.UnixMilli(createdAtMS)
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

// CompleteAssignment marks an assignment completed at the given time.
func (s *Store) CompleteAssignment(ctx context.Context, companyID, id string, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE training_assignments SET status = ?, completed_at_ms = ?
		WHERE id = ? AND company_id = ?`,
		string(AssignmentStatusCompleted), completedAt.UnixMilli(), id, companyID)
	if err != nil {
		return fmt.Errorf("complete assignment: %w", err)
	}
	return errNotFoundIfNoRows(res)
}

// InsertChatMessage persists one chat message.
func (s *Store) InsertChatMessage(ctx context.Context, m *ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, company_id, user_id, user_name, body, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.CompanyID, m.UserID, m.UserName, m.Body, m.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// ListRecentChatMessages returns up to limit most recent messages of a
// company's chat room in chronological order.
func (s *Store) ListRecentChatMessages(ctx context.Context, companyID string, limit int) ([]*ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, user_id, user_name, body, created_at_ms FROM (
			SELECT * FROM chat_messages WHERE company_id = ? ORDER BY created_at_ms DESC LIMIT ?
		) ORDER BY created_at_ms ASC`, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("select chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		var createdAtMS int64
		if err = rows.Scan(&m.ID, &m.CompanyID, &m.UserID, &m.UserName, &m.Body, &createdAtMS); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(createdAtMS)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func errNotFoundIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func timeToMS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
