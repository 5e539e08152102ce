package runner

import (
	"context"
	"path/filepath"
	"time"

	"github.com/seqlab-io/baktarun/internal/bakta"
)

// downloadCandidates is the fixed retrieval priority: plain JSON first,
// compressed fallback second.
var downloadCandidates = []struct {
	Kind string
	Ext  string
}{
	{bakta.ResultKindJSON, ".json"},
	{bakta.ResultKindJSONGZ, ".json.gz"},
}

// monitorJob polls one running job until it reaches a terminal remote
// state or the wall-clock budget runs out, then retrieves its result.
// Returns true only when the record ends up completed. Never panics; on
// every exit path the record is terminal and inspectable.
func (r *Runner) monitorJob(ctx context.Context, job *Job) bool {
	if job.JobID == "" || job.Secret == "" {
		job.fail("job was never initialized")
		return false
	}
	handle := &bakta.JobHandle{JobID: job.JobID, Secret: job.Secret}

	var elapsed time.Duration
	for elapsed < r.cfg.JobTimeout {
		status, err := r.gw.JobStatus(ctx, handle)
		if err != nil {
			// One-shot hard failure of the monitoring call itself, not a
			// poll to be retried.
			r.log("error", "Could not get status for job %s: %v", job.JobID, err)
			job.fail("status query failed")
			return false
		}

		switch status.State {
		case bakta.RemoteStateSuccessful:
			job.CompleteTime = time.Now()
			r.log("info", "Job %s completed remotely, retrieving results...", job.FileID)
			return r.retrieveResults(ctx, job, handle)

		case bakta.RemoteStateError:
			job.CompleteTime = time.Now()
			message := status.Error
			if message == "" {
				message = "Unknown error"
			}
			job.fail(message)
			r.log("error", "Job failed remotely: %s - %s", job.FileID, message)
			if logs, err := r.gw.JobLogs(ctx, handle); err == nil && logs != "" {
				r.log("debug", "Remote logs for %s:\n%s", job.FileID, logs)
			}
			return false

		case bakta.RemoteStatePending, bakta.RemoteStateSubmitted, bakta.RemoteStateRunning,
			bakta.RemoteStateInit, bakta.RemoteStateUploading:
			// Still in progress.

		default:
			// Unrecognized states are treated as transiently retryable so
			// they never hard-fail a job; the budget still bounds them.
			r.log("warning", "Unknown job status for %s: %s", job.FileID, status.State)
		}

		if err := ctx.Err(); err != nil {
			job.fail("monitoring cancelled: " + err.Error())
			return false
		}
		sleepCtx(ctx, r.cfg.PollInterval)
		elapsed += r.cfg.PollInterval
	}

	job.State = StateTimeout
	job.CompleteTime = time.Now()
	r.log("error", "Job timed out: %s", job.FileID)
	return false
}

// retrieveResults fetches the result manifest and downloads the first
// artifact available in priority order.
func (r *Runner) retrieveResults(ctx context.Context, job *Job, handle *bakta.JobHandle) bool {
	manifest, err := r.gw.JobResults(ctx, handle)
	if err != nil {
		r.log("error", "Could not retrieve result links for %s: %v", job.FileID, err)
		job.State = StateNoResults
		return false
	}

	anyPresent := false
	for _, candidate := range downloadCandidates {
		url, ok := manifest[candidate.Kind]
		if !ok || url == "" {
			continue
		}
		anyPresent = true

		dest := filepath.Join(r.cfg.ResultsDir, job.FileID+"_bakta_results"+candidate.Ext)
		r.log("info", "Downloading %s results for %s...", candidate.Kind, job.FileID)
		if err := r.gw.DownloadResult(ctx, url, dest); err != nil {
			r.log("warning", "Failed to download %s results for %s: %v", candidate.Kind, job.FileID, err)
			continue
		}

		job.ResultPath = dest
		job.State = StateCompleted
		return true
	}

	if anyPresent {
		job.State = StateDownloadFailed
		r.log("error", "Failed to download any result file for %s", job.FileID)
	} else {
		job.State = StateNoResults
		r.log("error", "Result manifest for %s listed no downloadable kind", job.FileID)
	}
	return false
}
