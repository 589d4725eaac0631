package internal

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const transcriptSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	scope_doc_id  TEXT,
	scope_name    TEXT,
	created_at    TEXT,
	exported_at   TEXT,
	message_count INTEGER NOT NULL,
	turn_count    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	position   INTEGER NOT NULL,
	id         TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	error      TEXT,
	PRIMARY KEY (session_id, position)
);
CREATE TABLE IF NOT EXISTS sources (
	session_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	idx        INTEGER NOT NULL,
	doc_name   TEXT NOT NULL,
	content    TEXT NOT NULL,
	score      REAL NOT NULL
);`

// OpenDatabase opens (creating if needed) a transcript database
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(transcriptSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// WriteTranscript stores a session, replacing any earlier copy with the same id
func WriteTranscript(ctx context.Context, db *sql.DB, session *Session) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM sources WHERE session_id = ?",
		"DELETE FROM messages WHERE session_id = ?",
		"DELETE FROM sessions WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, session.ID); err != nil {
			return fmt.Errorf("clear previous transcript: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, scope_doc_id, scope_name, created_at, exported_at, message_count, turn_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, nullString(session.Scope.DocID), session.Scope.String(),
		nullString(session.Metadata.CreatedAt), nullString(session.Metadata.ExportedAt),
		session.Metadata.MessageCount, session.Metadata.TurnCount,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	msgStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (session_id, position, id, role, content, error) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare messages: %w", err)
	}
	defer func() { _ = msgStmt.Close() }()

	srcStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO sources (session_id, message_id, idx, doc_name, content, score) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare sources: %w", err)
	}
	defer func() { _ = srcStmt.Close() }()

	for i, msg := range session.Messages {
		if _, err := msgStmt.ExecContext(ctx, session.ID, i, string(msg.ID), string(msg.Role), msg.Content, nullString(msg.Error)); err != nil {
			return fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
		for rank, src := range msg.Sources {
			if _, err := srcStmt.ExecContext(ctx, session.ID, string(msg.ID), rank, src.DocName, src.Content, src.Score); err != nil {
				return fmt.Errorf("insert source for %s: %w", msg.ID, err)
			}
		}
	}

	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// TranscriptSummary is one row of the sessions table
type TranscriptSummary struct {
	ID           string
	Scope        string
	CreatedAt    string
	ExportedAt   string
	MessageCount int
	TurnCount    int
}

// ListTranscripts returns the stored sessions, most recently exported first
func ListTranscripts(ctx context.Context, db *sql.DB) ([]TranscriptSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, COALESCE(scope_name, ''), COALESCE(created_at, ''), COALESCE(exported_at, ''),
		       message_count, turn_count
		FROM sessions
		ORDER BY exported_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TranscriptSummary
	for rows.Next() {
		var s TranscriptSummary
		if err := rows.Scan(&s.ID, &s.Scope, &s.CreatedAt, &s.ExportedAt, &s.MessageCount, &s.TurnCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadTranscript returns the messages of one stored session in order, with
// their sources attached
func ReadTranscript(ctx context.Context, db *sql.DB, sessionID string) ([]Message, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, role, content, COALESCE(error, '') FROM messages WHERE session_id = ? ORDER BY position",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	index := map[MessageID]int{}
	for rows.Next() {
		var m Message
		var id, role string
		if err := rows.Scan(&id, &role, &m.Content, &m.Error); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID, m.Role = MessageID(id), Role(role)
		index[m.ID] = len(messages)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no transcript %q", sessionID)
	}

	srcRows, err := db.QueryContext(ctx,
		"SELECT message_id, doc_name, content, score FROM sources WHERE session_id = ? ORDER BY message_id, idx",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = srcRows.Close() }()

	for srcRows.Next() {
		var msgID string
		var src SourceRef
		if err := srcRows.Scan(&msgID, &src.DocName, &src.Content, &src.Score); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if i, ok := index[MessageID(msgID)]; ok {
			messages[i].Sources = append(messages[i].Sources, src)
		}
	}
	return messages, srcRows.Err()
}
