package domain

import (
	"context"
	"time"
)

// MirrorStore journals mirror outcomes. Rows are written and never read back
// by the mirror itself.
type MirrorStore interface {
	Record(ctx context.Context, outcome MirrorOutcome) error
}

// AuditEntry is one operator-visible audit row.
type AuditEntry struct {
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore journals lifecycle events (startup, degraded mode, manual cancels).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
