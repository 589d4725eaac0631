package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iksnae/kbchat/internal"
	"github.com/iksnae/kbchat/internal/export"
)

// formatUsage lists the accepted --format values
var formatUsage = fmt.Sprintf("Export format (%s); inferred from the file extension when empty",
	strings.Join(export.Formats, ", "))

// writeTranscript normalizes a session snapshot and writes it to path
func writeTranscript(ctx context.Context, snap internal.Snapshot, startedAt time.Time, path, format string) (*internal.Session, error) {
	normalizer := internal.NewNormalizer(startedAt, cfg.ServerURL)
	session, err := normalizer.NormalizeSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize session: %w", err)
	}
	if err := export.WriteFile(ctx, session, path, format); err != nil {
		return nil, err
	}
	internal.LogInfo("Exported %d messages to %s", len(session.Messages), path)
	return session, nil
}

// lastMessageID returns the id of the newest message in snap
func lastMessageID(snap internal.Snapshot) internal.MessageID {
	if len(snap.Messages) == 0 {
		return ""
	}
	return snap.Messages[len(snap.Messages)-1].ID
}
