package recap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recaps/internal/types"
)

// DefaultSnapshotBatchSize bounds the rows written per snapshot insert.
const DefaultSnapshotBatchSize = 300

// Snapshot freezes the audience of a report so that pages sliced by offset
// stay stable while the live population changes.
type Snapshot struct {
	Source    AudienceSource
	Audience  AudienceStore
	Lifecycle *Lifecycle
	BatchSize int
	Log       *slog.Logger
}

// SnapshotResult describes one Compute call.
type SnapshotResult struct {
	ReportID   int64 `json:"reportId"`
	TotalUsers int   `json:"totalUsers"`
	Inserted   int64 `json:"inserted"`
	Reused     bool  `json:"reused"`
}

// Compute runs the audience query for the report period and persists the
// result in batches. It is re-entrant: inserts skip rows already present,
// and a snapshot whose size already matches Report.TotalUsers is reused
// without querying.
func (s *Snapshot) Compute(ctx context.Context, report *types.Report) (*SnapshotResult, error) {
	existing, err := s.Audience.Count(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	if existing > 0 && existing == report.TotalUsers {
		s.Log.InfoContext(ctx, "audience snapshot already complete",
			"report_id", report.ID, "total_users", existing)
		return &SnapshotResult{ReportID: report.ID, TotalUsers: existing, Reused: true}, nil
	}

	start := time.Now()
	members, err := s.Source.Audience(ctx, report.Period())
	if err != nil {
		return nil, fmt.Errorf("snapshot: audience query for report %d: %w", report.ID, err)
	}

	size := s.BatchSize
	if size <= 0 {
		size = DefaultSnapshotBatchSize
	}

	var inserted int64
	for lo := 0; lo < len(members); lo += size {
		hi := min(lo+size, len(members))
		n, err := s.Audience.InsertBatch(ctx, report.ID, members[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("snapshot: insert rows %d-%d for report %d: %w", lo, hi, report.ID, err)
		}
		inserted += n
	}

	total, err := s.Audience.Count(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	if err := s.Lifecycle.SetTotalUsers(ctx, report.ID, total); err != nil {
		return nil, err
	}
	report.TotalUsers = total

	s.Log.InfoContext(ctx, "audience snapshot persisted",
		"report_id", report.ID,
		"queried", len(members),
		"inserted", inserted,
		"total_users", total,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &SnapshotResult{ReportID: report.ID, TotalUsers: total, Inserted: inserted}, nil
}
