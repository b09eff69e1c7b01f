// Package audit records research sessions, agent interactions and code
// executions in a relational store.
package audit

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusHalted     = "halted"
)

type Interaction struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

type CodeExecution struct {
	ID            int64     `json:"id"`
	SessionID     int64     `json:"session_id"`
	Code          string    `json:"code"`
	Output        string    `json:"output"`
	Error         string    `json:"error"`
	ExecutionTime time.Time `json:"execution_time"`
}

type Session struct {
	ID               int64     `json:"id"`
	Query            string    `json:"query"`
	CreatedAt        time.Time `json:"created_at"`
	Status           string    `json:"status"`
	FinalAnswer      string    `json:"final_answer"`
	ContextVariables string    `json:"context_variables"`
}

// SessionHistory is everything recorded for one session.
type SessionHistory struct {
	Session        Session         `json:"session"`
	Interactions   []Interaction   `json:"interactions"`
	CodeExecutions []CodeExecution `json:"code_executions"`
}

// Log is write-mostly: callers log failures and carry on.
type Log interface {
	CreateSession(ctx context.Context, query string) (int64, error)
	LogInteraction(ctx context.Context, sessionID int64, agent, action, result string) error
	LogCodeExecution(ctx context.Context, sessionID int64, code, output, stderr string) error
	UpdateSession(ctx context.Context, sessionID int64, status, finalAnswer, contextVariables string) error
	SessionHistory(ctx context.Context, sessionID int64) (*SessionHistory, error)
	Close() error
}

var ErrSessionNotFound = errors.New("session not found")

const sqliteAuditSchemaV1 = `
CREATE TABLE IF NOT EXISTS research_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    status TEXT DEFAULT 'in_progress',
    final_answer TEXT,
    context_variables TEXT
);

CREATE TABLE IF NOT EXISTS agent_interactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER,
    agent_name TEXT NOT NULL,
    action TEXT NOT NULL,
    result TEXT,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES research_sessions (id)
);

CREATE TABLE IF NOT EXISTS code_executions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER,
    code TEXT NOT NULL,
    output TEXT,
    error TEXT,
    execution_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES research_sessions (id)
);
`

type SQLiteLog struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

var _ Log = &SQLiteLog{}

func NewSQLiteLog(dsn string) (*SQLiteLog, error) {
	if dsn == "" {
		return nil, errors.New("sqlite audit log: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", dsn)
	}
	l := &SQLiteLog{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) migrate() error {
	if _, err := l.db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return errors.Wrap(err, "could not enable foreign keys")
	}
	if _, err := l.db.Exec(sqliteAuditSchemaV1); err != nil {
		return errors.Wrap(err, "could not create audit schema")
	}
	return nil
}

func (l *SQLiteLog) ensureOpen() error {
	if l.closed {
		return errors.New("sqlite audit log closed")
	}
	return nil
}

func (l *SQLiteLog) CreateSession(ctx context.Context, query string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureOpen(); err != nil {
		return 0, err
	}
	res, err := l.db.ExecContext(ctx, `INSERT INTO research_sessions (query, status) VALUES (?, ?)`, query, StatusInProgress)
	if err != nil {
		return 0, errors.Wrap(err, "could not create session")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "could not read session id")
	}
	return id, nil
}

func (l *SQLiteLog) LogInteraction(ctx context.Context, sessionID int64, agent, action, result string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureOpen(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO agent_interactions (session_id, agent_name, action, result) VALUES (?, ?, ?, ?)`,
		sessionID, agent, action, result)
	return errors.Wrap(err, "could not log interaction")
}

func (l *SQLiteLog) LogCodeExecution(ctx context.Context, sessionID int64, code, output, stderr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureOpen(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO code_executions (session_id, code, output, error) VALUES (?, ?, ?, ?)`,
		sessionID, code, output, stderr)
	return errors.Wrap(err, "could not log code execution")
}

func (l *SQLiteLog) UpdateSession(ctx context.Context, sessionID int64, status, finalAnswer, contextVariables string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureOpen(); err != nil {
		return err
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE research_sessions SET status = ?, final_answer = ?, context_variables = ? WHERE id = ?`,
		status, finalAnswer, contextVariables, sessionID)
	if err != nil {
		return errors.Wrap(err, "could not update session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "could not update session")
	}
	if n == 0 {
		return errors.Wrapf(ErrSessionNotFound, "session %d", sessionID)
	}
	return nil
}

func (l *SQLiteLog) SessionHistory(ctx context.Context, sessionID int64) (*SessionHistory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureOpen(); err != nil {
		return nil, err
	}

	h := &SessionHistory{Interactions: []Interaction{}, CodeExecutions: []CodeExecution{}}
	var finalAnswer, contextVariables sql.NullString
	err := l.db.QueryRowContext(ctx,
		`SELECT id, query, created_at, status, final_answer, context_variables FROM research_sessions WHERE id = ?`,
		sessionID).Scan(&h.Session.ID, &h.Session.Query, &h.Session.CreatedAt, &h.Session.Status, &finalAnswer, &contextVariables)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrSessionNotFound, "session %d", sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not read session")
	}
	h.Session.FinalAnswer = finalAnswer.String
	h.Session.ContextVariables = contextVariables.String

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, agent_name, action, result, timestamp FROM agent_interactions WHERE session_id = ? ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "could not read interactions")
	}
	for rows.Next() {
		var i Interaction
		var result sql.NullString
		if err := rows.Scan(&i.ID, &i.SessionID, &i.Agent, &i.Action, &result, &i.Timestamp); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "could not scan interaction")
		}
		i.Result = result.String
		h.Interactions = append(h.Interactions, i)
	}
	_ = rows.Close()

	rows, err = l.db.QueryContext(ctx,
		`SELECT id, session_id, code, output, error, execution_time FROM code_executions WHERE session_id = ? ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "could not read code executions")
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var c CodeExecution
		var output, stderr sql.NullString
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Code, &output, &stderr, &c.ExecutionTime); err != nil {
			return nil, errors.Wrap(err, "could not scan code execution")
		}
		c.Output = output.String
		c.Error = stderr.String
		h.CodeExecutions = append(h.CodeExecutions, c)
	}
	return h, rows.Err()
}

func (l *SQLiteLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

// Nop discards everything.
type Nop struct{}

var _ Log = Nop{}

func (Nop) CreateSession(ctx context.Context, query string) (int64, error) { return 0, nil }
func (Nop) LogInteraction(ctx context.Context, sessionID int64, agent, action, result string) error {
	return nil
}
func (Nop) LogCodeExecution(ctx context.Context, sessionID int64, code, output, stderr string) error {
	return nil
}
func (Nop) UpdateSession(ctx context.Context, sessionID int64, status, finalAnswer, contextVariables string) error {
	return nil
}
func (Nop) SessionHistory(ctx context.Context, sessionID int64) (*SessionHistory, error) {
	return nil, errors.Wrapf(ErrSessionNotFound, "session %d", sessionID)
}
func (Nop) Close() error { return nil }
