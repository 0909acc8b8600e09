package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/tranvd/jobflow-be/internal/domain"
)

// outcome tells the pool what to do with the broker message
type outcome int

const (
	// acknowledge removes the message; the job reached a terminal state or
	// the message is not actionable (orphan, duplicate delivery)
	acknowledge outcome = iota

	// redeliver nacks the message; a transient failure prevented any
	// terminal write, so the broker should retry or dead-letter it
	redeliver
)

// processMessage drives one dequeued message through the job state machine.
// The invariant throughout: a terminal status is written to the store before
// the message is acknowledged, so the broker's retry behavior can never mask
// a user-visible result.
func (w *Worker) processMessage(ctx context.Context, msg domain.JobMessage) outcome {
	log := w.logger.With(
		slog.String("job_id", msg.JobID),
		slog.String("resource_id", msg.ResourceID),
	)

	job, err := w.store.GetJobByID(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			// Orphan message: the submitter enqueued first and the job
			// record never landed. Nothing to execute.
			log.Warn("Dropping message with no matching job record")
			return acknowledge
		}
		log.Error("Failed to look up job",
			slog.String("error", err.Error()),
		)
		return redeliver
	}

	claimed, err := w.store.Claim(ctx, msg.JobID)
	if err != nil {
		log.Error("Failed to claim job",
			slog.String("error", err.Error()),
		)
		return redeliver
	}
	if !claimed {
		// Duplicate delivery: another worker claimed or finished this job
		log.Warn("Job not claimable, skipping",
			slog.String("status", job.Status),
		)
		return acknowledge
	}

	execCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, execErr := w.executor.Execute(execCtx, job.ResourceID, json.RawMessage(job.TaskParameters))
	if execErr != nil {
		log.Error("Job execution failed",
			slog.String("error", execErr.Error()),
		)

		failed, err := w.store.Fail(ctx, msg.JobID, domain.TruncateErrorMessage(execErr.Error()))
		if err != nil {
			// No terminal state written yet; let the broker redeliver
			log.Error("Failed to record job failure",
				slog.String("error", err.Error()),
			)
			return redeliver
		}
		if !failed {
			log.Warn("Job already terminal when recording failure")
		}

		return acknowledge
	}

	completed, err := w.store.Complete(ctx, msg.JobID, string(result))
	if err != nil {
		log.Error("Failed to record job completion",
			slog.String("error", err.Error()),
		)
		return redeliver
	}
	if !completed {
		// The stale reconciler won the race; its terminal state stands
		log.Warn("Job already terminal when recording completion")
		return acknowledge
	}

	log.Info("Job completed")
	return acknowledge
}
