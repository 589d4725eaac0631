package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/iksnae/kbchat/internal"
)

// SQLiteExporter writes a session as a SQLite database with sessions,
// messages and sources tables
type SQLiteExporter struct{}

// Export builds the database in a scratch file and copies it to w
func (e *SQLiteExporter) Export(session *internal.Session, w io.Writer) error {
	dir, err := os.MkdirTemp("", "kbchat-export-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, "transcript.db")
	if err := WriteSQLite(context.Background(), path, session); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}
	return nil
}

// WriteSQLite stores session in the database at path, creating it if needed.
// Other sessions already in the file are kept.
func WriteSQLite(ctx context.Context, path string, session *internal.Session) error {
	db, err := internal.OpenDatabase(path)
	if err != nil {
		return err
	}
	if err := internal.WriteTranscript(ctx, db, session); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}

// Extension returns the file extension for this format
func (e *SQLiteExporter) Extension() string {
	return "db"
}
