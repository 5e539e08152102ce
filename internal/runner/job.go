// Package runner orchestrates batches of Bakta annotation jobs: it
// submits each input file as a remote job, monitors the jobs until they
// reach a terminal state, downloads results and summarizes the run.
//
// Architecture:
//
//	parameter set → Runner → (per batch) fan-out submit → barrier →
//	fan-out monitor → barrier → pause → next batch → run report
//
// Every submission and monitoring task is isolated: the worst outcome of
// one bad file is a Job record in a failure state, never an aborted run.
package runner

import "time"

// State is the orchestrator's own lifecycle state of one job, distinct
// from the remote state reported by the API.
type State string

const (
	// StatePending is the initial state of a freshly created record.
	StatePending State = "pending"

	// StateRunning means the job was submitted and annotation is in
	// progress remotely.
	StateRunning State = "running"

	// StateCompleted means the job finished and a result artifact was
	// downloaded.
	StateCompleted State = "completed"

	// StateFailed covers submission failures, remote execution errors and
	// failed status queries.
	StateFailed State = "failed"

	// StateTimeout means the monitoring wall-clock budget was exhausted.
	StateTimeout State = "timeout"

	// StateNoResults means the job succeeded remotely but its manifest
	// listed no downloadable result kind.
	StateNoResults State = "no_results"

	// StateDownloadFailed means the job succeeded remotely but every
	// download attempt failed.
	StateDownloadFailed State = "download_failed"
)

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	return s != StatePending && s != StateRunning
}

// Job tracks one unit of work end to end. Records are owned by the
// Runner; each is mutated by exactly one submission task and, after that,
// by exactly one monitoring task, never concurrently.
type Job struct {
	// FileID is the stable key into the input parameter set.
	FileID string

	// FastaPath is the local primary sequence file.
	FastaPath string

	// JobID and Secret are assigned together by job initialization and
	// never change once set.
	JobID  string
	Secret string

	State State

	// SubmitTime is set once, immediately after successful initialization.
	SubmitTime time.Time

	// CompleteTime is set when the record reaches a timestamp-bearing
	// terminal state (completed, remote error, timeout, download_failed,
	// no_results).
	CompleteTime time.Time

	// ErrorMessage is present only on failure states.
	ErrorMessage string

	// ResultPath is non-empty only when State is StateCompleted.
	ResultPath string

	// RetryCount is tracked but does not drive re-submission.
	RetryCount int
}

// fail moves the record into StateFailed with the given message.
func (j *Job) fail(message string) {
	j.State = StateFailed
	j.ErrorMessage = message
}
