package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
)

// InsertMetricsBatch writes a batch of processing metrics in a single
// round trip (spec.md §4.6). Metrics are best-effort: a failed batch is
// logged and dropped by the caller, never retried against the main
// processing path.
func (s *Store) InsertMetricsBatch(ctx context.Context, batch []*event.ProcessingMetric) error {
	if len(batch) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO processing_metrics (event_type, topic, outcome, processing_time_ms) VALUES `)
	args := make([]any, 0, len(batch)*4)
	for i, m := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, m.EventType, m.Topic, string(m.Outcome), m.ProcessingTimeMS)
	}

	if _, err := s.conn.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert metrics batch: %w", err)
	}
	return nil
}
