package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seqlab-io/baktarun/internal/bakta"
	"github.com/seqlab-io/baktarun/internal/params"
)

// Gateway is the remote-service surface the runner depends on. The
// production implementation is *bakta.Client; tests substitute fakes.
type Gateway interface {
	InitJob(ctx context.Context, name, repliconTableType string) (*bakta.JobHandle, *bakta.UploadLinks, error)
	UploadFile(ctx context.Context, uploadURL, path string) error
	StartJob(ctx context.Context, handle *bakta.JobHandle, config bakta.JobConfig) error
	JobStatus(ctx context.Context, handle *bakta.JobHandle) (*bakta.JobStatus, error)
	JobResults(ctx context.Context, handle *bakta.JobHandle) (map[string]string, error)
	JobLogs(ctx context.Context, handle *bakta.JobHandle) (string, error)
	DownloadResult(ctx context.Context, downloadURL, dest string) error
}

// LogFn is an optional callback for leveled log output.
type LogFn func(level, msg string)

// Config holds configuration for a batch run.
type Config struct {
	// BatchSize is the number of files per batch (default: 10)
	BatchSize int

	// MaxConcurrent bounds the worker pool used for both the submission
	// and the monitoring phase of a batch (default: 5)
	MaxConcurrent int

	// PollInterval is the sleep between status queries (default: 30s)
	PollInterval time.Duration

	// JobTimeout is the wall-clock budget for monitoring one job
	// (default: 1h)
	JobTimeout time.Duration

	// BatchPause is the pause between batches (default: 10s)
	BatchPause time.Duration

	// ResultsDir receives downloaded artifacts and per-file replicon
	// subsets
	ResultsDir string

	// DryRun logs intended work without any remote call
	DryRun bool

	// LogFn is an optional callback for logging
	LogFn LogFn
}

// Runner drives a whole batch run against one gateway.
type Runner struct {
	gw  Gateway
	cfg Config
}

// New creates a runner, applying configuration defaults.
func New(gw Gateway, cfg Config) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = time.Hour
	}
	if cfg.BatchPause == 0 {
		cfg.BatchPause = 10 * time.Second
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "bakta_results"
	}
	return &Runner{gw: gw, cfg: cfg}
}

func (r *Runner) log(level, format string, args ...any) {
	if r.cfg.LogFn != nil {
		r.cfg.LogFn(level, fmt.Sprintf(format, args...))
	}
}

// Run processes every file in the parameter set and returns one Job
// record per file identifier. Records never propagate errors upward; a
// failed file shows up as a record in a failure state.
func (r *Runner) Run(ctx context.Context, parameters map[string]params.Entry, replicons []params.Replicon) []*Job {
	fileIDs := make([]string, 0, len(parameters))
	for id := range parameters {
		fileIDs = append(fileIDs, id)
	}
	sort.Strings(fileIDs)

	r.log("info", "Starting run for %d files (batch size %d, max concurrent %d)",
		len(fileIDs), r.cfg.BatchSize, r.cfg.MaxConcurrent)

	if r.cfg.DryRun {
		r.log("info", "DRY RUN MODE - no API calls will be made")
		for _, id := range fileIDs {
			r.log("info", "Would process: %s -> %s", id, parameters[id].FastaFile)
		}
		return nil
	}

	var all []*Job
	for start := 0; start < len(fileIDs); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(fileIDs) {
			end = len(fileIDs)
		}
		batch := fileIDs[start:end]
		r.log("info", "Processing batch %d: files %d-%d", start/r.cfg.BatchSize+1, start+1, end)

		records := r.submitBatch(ctx, batch, parameters, replicons)
		all = append(all, records...)

		var running []*Job
		for _, job := range records {
			if job.State == StateRunning {
				running = append(running, job)
			} else {
				r.log("error", "Job submission failed for %s: %s", job.FileID, job.ErrorMessage)
			}
		}
		r.log("info", "Submitted %d jobs in batch", len(running))

		r.monitorBatch(ctx, running)

		if end < len(fileIDs) {
			r.log("info", "Pausing %s between batches...", r.cfg.BatchPause)
			sleepCtx(ctx, r.cfg.BatchPause)
		}
	}
	return all
}

// submitBatch fans out submissions under the worker-pool bound and blocks
// until every task has produced a record (the barrier before monitoring).
func (r *Runner) submitBatch(ctx context.Context, batch []string, parameters map[string]params.Entry, replicons []params.Replicon) []*Job {
	sem := make(chan struct{}, r.cfg.MaxConcurrent)
	results := make(chan *Job, len(batch))

	var wg sync.WaitGroup
	for _, fileID := range batch {
		wg.Add(1)
		go func(fileID string, entry params.Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			job := &Job{FileID: fileID, FastaPath: entry.FastaFile, State: StatePending}
			defer func() {
				if p := recover(); p != nil {
					job.fail(fmt.Sprintf("panic during submission: %v", p))
					r.log("error", "Submission panic for %s: %v", fileID, p)
				}
				results <- job
			}()
			r.submitJob(ctx, job, entry, replicons)
		}(fileID, parameters[fileID])
	}
	wg.Wait()
	close(results)

	records := make([]*Job, 0, len(batch))
	for job := range results {
		records = append(records, job)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].FileID < records[j].FileID })
	return records
}

// monitorBatch fans out monitoring for the running jobs of one batch
// under the same worker-pool bound and drains completely before
// returning.
func (r *Runner) monitorBatch(ctx context.Context, running []*Job) {
	if len(running) == 0 {
		return
	}

	sem := make(chan struct{}, r.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for _, job := range running {
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			defer func() {
				if p := recover(); p != nil {
					if !job.State.Terminal() {
						job.fail(fmt.Sprintf("panic during monitoring: %v", p))
					}
					r.log("error", "Monitoring panic for %s: %v", job.FileID, p)
				}
			}()

			ok := r.monitorJob(ctx, job)
			mu.Lock()
			completed++
			done := completed
			mu.Unlock()
			if ok {
				r.log("success", "Job completed: %s (%d/%d)", job.FileID, done, len(running))
			} else {
				r.log("error", "Job failed: %s (%s)", job.FileID, job.State)
			}
		}(job)
	}
	wg.Wait()
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
