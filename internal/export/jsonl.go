package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/kbchat/internal"
)

// JSONLExporter exports sessions in JSONL format (one message per line)
type JSONLExporter struct{}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, msg := range session.Messages {
		obj := map[string]interface{}{
			"session_id": session.ID,
			"id":         msg.ID,
			"role":       msg.Role,
			"content":    msg.Content,
		}
		if len(msg.Sources) > 0 {
			obj["sources"] = msg.Sources
		}
		if msg.Error != "" {
			obj["error"] = msg.Error
		}

		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
