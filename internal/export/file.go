package export

import (
	"context"
	"os"
	"path/filepath"

	"github.com/iksnae/kbchat/internal"
)

// WriteFile exports session to path. SQLite output is merged into an
// existing database; every other format replaces the file.
func WriteFile(ctx context.Context, session *internal.Session, path, format string) error {
	if format == "" {
		format = FormatFromPath(path)
	}
	exporter, err := NewExporter(format)
	if err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &internal.ExportError{Format: format, Path: path, Err: err}
		}
	}

	if _, ok := exporter.(*SQLiteExporter); ok {
		if err := WriteSQLite(ctx, path, session); err != nil {
			return &internal.ExportError{Format: format, Path: path, Err: err}
		}
		return nil
	}

	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := exporter.Export(session, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	internal.LogDebug("Exported session %s to %s (%s)", session.ID, path, format)
	return nil
}
