package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"
)

// DigestArgs runs one digest pass for a (portal, frequency) pair.
type DigestArgs struct {
	PortalID  string `json:"portal_id"`
	Frequency string `json:"frequency"`
}

// Kind returns the job kind identifier for digest runs.
func (DigestArgs) Kind() string { return "digest_run" }

// InsertOpts ensures at most one digest job per (portal, frequency) is
// enqueued within an hour; the run itself is idempotent on top of that
// because the window only advances as its last durable step.
func (DigestArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// DigestWorker executes digest runs.
type DigestWorker struct {
	river.WorkerDefaults[DigestArgs]
	generator *Generator
}

func NewDigestWorker(generator *Generator) *DigestWorker {
	return &DigestWorker{generator: generator}
}

// Work runs the digest for the job's portal and frequency.
func (w *DigestWorker) Work(ctx context.Context, job *river.Job[DigestArgs]) error {
	if w == nil || w.generator == nil {
		return fmt.Errorf("digest worker is not initialized")
	}
	freq, err := domain.ParseFrequency(job.Args.Frequency)
	if err != nil {
		return fmt.Errorf("digest job: %w", err)
	}
	_, err = w.generator.Run(ctx, job.Args.PortalID, freq)
	return err
}

// CleanupArgs is the periodic maintenance job removing notification events
// outside every digest window.
type CleanupArgs struct{}

// Kind returns the job kind identifier for event retention cleanup.
func (CleanupArgs) Kind() string { return "event_retention_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued within the same day.
func (CleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// CleanupWorker deletes events older than the retention threshold. The
// digest runs clean up opportunistically as well; this job bounds storage
// growth on portals with no digest activity.
type CleanupWorker struct {
	river.WorkerDefaults[CleanupArgs]
	events    domain.EventStore
	retention time.Duration
}

// NewCleanupWorker creates a cleanup worker. Non-positive retention falls
// back to the derived default.
func NewCleanupWorker(events domain.EventStore, retention time.Duration) *CleanupWorker {
	if retention <= 0 {
		retention = RetentionFor(domain.LongestDigestPeriod)
	}
	return &CleanupWorker{events: events, retention: retention}
}

// Work removes expired event rows.
func (w *CleanupWorker) Work(ctx context.Context, _ *river.Job[CleanupArgs]) error {
	if w == nil || w.events == nil {
		return fmt.Errorf("cleanup worker is not initialized")
	}

	cutoff := time.Now().UTC().Add(-w.retention)
	deleted, err := w.events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired events before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("event retention cleanup completed",
		zap.Int64("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("retention", w.retention),
	)
	return nil
}
