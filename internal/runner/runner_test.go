package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seqlab-io/baktarun/internal/bakta"
	"github.com/seqlab-io/baktarun/internal/params"
)

// fakeGateway records every call and delegates to overridable behaviors.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	initFn     func(name string) (*bakta.JobHandle, *bakta.UploadLinks, error)
	uploadFn   func(uploadURL, path string) error
	startFn    func(handle *bakta.JobHandle, config bakta.JobConfig) error
	statusFn   func(handle *bakta.JobHandle) (*bakta.JobStatus, error)
	resultsFn  func(handle *bakta.JobHandle) (map[string]string, error)
	downloadFn func(downloadURL, dest string) error
}

func (f *fakeGateway) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeGateway) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGateway) InitJob(ctx context.Context, name, repliconTableType string) (*bakta.JobHandle, *bakta.UploadLinks, error) {
	f.record("init:%s", name)
	if f.initFn != nil {
		return f.initFn(name)
	}
	fileID := strings.TrimPrefix(name, "bakta_job_")
	return &bakta.JobHandle{JobID: "job-" + fileID, Secret: "secret-" + fileID},
		&bakta.UploadLinks{Fasta: "https://up.example/fasta", Replicons: "https://up.example/replicons"},
		nil
}

func (f *fakeGateway) UploadFile(ctx context.Context, uploadURL, path string) error {
	f.record("upload:%s", uploadURL)
	if f.uploadFn != nil {
		return f.uploadFn(uploadURL, path)
	}
	return nil
}

func (f *fakeGateway) StartJob(ctx context.Context, handle *bakta.JobHandle, config bakta.JobConfig) error {
	f.record("start:%s", handle.JobID)
	if f.startFn != nil {
		return f.startFn(handle, config)
	}
	return nil
}

func (f *fakeGateway) JobStatus(ctx context.Context, handle *bakta.JobHandle) (*bakta.JobStatus, error) {
	f.record("status:%s", handle.JobID)
	if f.statusFn != nil {
		return f.statusFn(handle)
	}
	return &bakta.JobStatus{State: bakta.RemoteStateSuccessful}, nil
}

func (f *fakeGateway) JobResults(ctx context.Context, handle *bakta.JobHandle) (map[string]string, error) {
	f.record("results:%s", handle.JobID)
	if f.resultsFn != nil {
		return f.resultsFn(handle)
	}
	return map[string]string{bakta.ResultKindJSON: "https://down.example/result.json"}, nil
}

func (f *fakeGateway) JobLogs(ctx context.Context, handle *bakta.JobHandle) (string, error) {
	f.record("logs:%s", handle.JobID)
	return "", nil
}

func (f *fakeGateway) DownloadResult(ctx context.Context, downloadURL, dest string) error {
	f.record("download:%s", downloadURL)
	if f.downloadFn != nil {
		return f.downloadFn(downloadURL, dest)
	}
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		BatchSize:     10,
		MaxConcurrent: 5,
		PollInterval:  time.Millisecond,
		JobTimeout:    time.Second,
		BatchPause:    time.Millisecond,
		ResultsDir:    t.TempDir(),
	}
}

func testParameters(fileIDs ...string) map[string]params.Entry {
	entries := make(map[string]params.Entry, len(fileIDs))
	for _, id := range fileIDs {
		entries[id] = params.Entry{
			FastaFile:  "/assemblies/" + id + ".fasta",
			SequenceID: id + "_1",
			Genus:      "Escherichia",
			Species:    "coli",
		}
	}
	return entries
}

func TestSubmitJobSuccess(t *testing.T) {
	gw := &fakeGateway{}
	r := New(gw, testConfig(t))

	job := &Job{FileID: "sample1", FastaPath: "/assemblies/sample1.fasta", State: StatePending}
	r.submitJob(context.Background(), job, testParameters("sample1")["sample1"], nil)

	if job.State != StateRunning {
		t.Fatalf("State = %s, want running (error: %s)", job.State, job.ErrorMessage)
	}
	if job.JobID != "job-sample1" || job.Secret != "secret-sample1" {
		t.Errorf("handle = %s/%s", job.JobID, job.Secret)
	}
	if job.SubmitTime.IsZero() {
		t.Error("SubmitTime not set")
	}
}

func TestSubmitJobFailures(t *testing.T) {
	tests := []struct {
		name        string
		configure   func(gw *fakeGateway)
		wantMessage string
	}{
		{
			name: "init failure",
			configure: func(gw *fakeGateway) {
				gw.initFn = func(string) (*bakta.JobHandle, *bakta.UploadLinks, error) {
					return nil, nil, errors.New("boom")
				}
			},
			wantMessage: "Job initialization failed",
		},
		{
			name: "missing fasta upload link",
			configure: func(gw *fakeGateway) {
				gw.initFn = func(name string) (*bakta.JobHandle, *bakta.UploadLinks, error) {
					return &bakta.JobHandle{JobID: "j", Secret: "s"}, &bakta.UploadLinks{}, nil
				}
			},
			wantMessage: "FASTA upload failed",
		},
		{
			name: "fasta upload failure",
			configure: func(gw *fakeGateway) {
				gw.uploadFn = func(string, string) error { return errors.New("transfer reset") }
			},
			wantMessage: "FASTA upload failed",
		},
		{
			name: "start failure",
			configure: func(gw *fakeGateway) {
				gw.startFn = func(*bakta.JobHandle, bakta.JobConfig) error { return errors.New("rejected") }
			},
			wantMessage: "Job start failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			tt.configure(gw)
			r := New(gw, testConfig(t))

			job := &Job{FileID: "sample1", FastaPath: "/assemblies/sample1.fasta", State: StatePending}
			r.submitJob(context.Background(), job, testParameters("sample1")["sample1"], nil)

			if job.State != StateFailed {
				t.Fatalf("State = %s, want failed", job.State)
			}
			if job.ErrorMessage != tt.wantMessage {
				t.Errorf("ErrorMessage = %q, want %q", job.ErrorMessage, tt.wantMessage)
			}
		})
	}
}

func TestSubmitJobRepliconUploadIsBestEffort(t *testing.T) {
	gw := &fakeGateway{}
	gw.uploadFn = func(uploadURL, path string) error {
		if uploadURL == "https://up.example/replicons" {
			return errors.New("replicon channel down")
		}
		return nil
	}
	var startConfig bakta.JobConfig
	gw.startFn = func(_ *bakta.JobHandle, config bakta.JobConfig) error {
		startConfig = config
		return nil
	}
	r := New(gw, testConfig(t))

	replicons := []params.Replicon{{Locus: "sample1_1", NewLocus: "sample1_1", Type: "chromosome", Topology: "circular", Name: "sample1_1"}}
	job := &Job{FileID: "sample1", FastaPath: "/assemblies/sample1.fasta", State: StatePending}
	r.submitJob(context.Background(), job, testParameters("sample1")["sample1"], replicons)

	if job.State != StateRunning {
		t.Fatalf("State = %s, want running; replicon failure must not fail submission", job.State)
	}
	if startConfig.HasReplicons {
		t.Error("HasReplicons = true after failed replicon upload")
	}
}

func TestSubmitJobStartConfig(t *testing.T) {
	gw := &fakeGateway{}
	var startConfig bakta.JobConfig
	gw.startFn = func(_ *bakta.JobHandle, config bakta.JobConfig) error {
		startConfig = config
		return nil
	}
	r := New(gw, testConfig(t))

	entry := params.Entry{FastaFile: "/a/s.fasta", SequenceID: "s_1", Genus: "Escherichia", Species: "coli", Circular: true}
	job := &Job{FileID: "sample1", FastaPath: entry.FastaFile, State: StatePending}
	r.submitJob(context.Background(), job, entry, nil)

	if startConfig.TranslationTable != 11 || startConfig.MinContigLength != 1 || !startConfig.Compliant {
		t.Errorf("config = %+v", startConfig)
	}
	if !startConfig.CompleteGenome {
		t.Error("CompleteGenome should follow the circular flag")
	}
	if startConfig.LocusTag != "ESCOL" {
		t.Errorf("LocusTag = %q, want ESCOL", startConfig.LocusTag)
	}
	if startConfig.Locus != "ESCOL_job-samp" {
		t.Errorf("Locus = %q, want ESCOL_job-samp", startConfig.Locus)
	}
}

func TestMonitorJobCompletedWithCompressedFallback(t *testing.T) {
	gw := &fakeGateway{}
	gw.resultsFn = func(*bakta.JobHandle) (map[string]string, error) {
		return map[string]string{bakta.ResultKindJSONGZ: "https://down.example/result.json.gz"}, nil
	}
	r := New(gw, testConfig(t))

	job := &Job{FileID: "sample1", JobID: "job-sample1", Secret: "s", State: StateRunning}
	if ok := r.monitorJob(context.Background(), job); !ok {
		t.Fatalf("monitorJob() = false, state %s (%s)", job.State, job.ErrorMessage)
	}
	if job.State != StateCompleted {
		t.Errorf("State = %s, want completed", job.State)
	}
	if !strings.HasSuffix(job.ResultPath, "sample1_bakta_results.json.gz") {
		t.Errorf("ResultPath = %q", job.ResultPath)
	}
	if job.CompleteTime.IsZero() {
		t.Error("CompleteTime not set")
	}
}

func TestMonitorJobRemoteError(t *testing.T) {
	gw := &fakeGateway{}
	gw.statusFn = func(*bakta.JobHandle) (*bakta.JobStatus, error) {
		return &bakta.JobStatus{State: bakta.RemoteStateError, Error: "contig too short"}, nil
	}
	r := New(gw, testConfig(t))
	r.cfg.PollInterval = time.Hour // a sleep would hang the test

	job := &Job{FileID: "sample1", JobID: "j", Secret: "s", State: StateRunning}
	if ok := r.monitorJob(context.Background(), job); ok {
		t.Fatal("monitorJob() = true for remote error")
	}
	if job.State != StateFailed || job.ErrorMessage != "contig too short" {
		t.Errorf("job = %s / %q", job.State, job.ErrorMessage)
	}

	statusCalls := 0
	for _, c := range gw.callLog() {
		if strings.HasPrefix(c, "status:") {
			statusCalls++
		}
	}
	if statusCalls != 1 {
		t.Errorf("status calls = %d, want exactly 1 (no waiting for timeout)", statusCalls)
	}
}

func TestMonitorJobRemoteErrorWithoutDetail(t *testing.T) {
	gw := &fakeGateway{}
	gw.statusFn = func(*bakta.JobHandle) (*bakta.JobStatus, error) {
		return &bakta.JobStatus{State: bakta.RemoteStateError}, nil
	}
	r := New(gw, testConfig(t))

	job := &Job{FileID: "sample1", JobID: "j", Secret: "s", State: StateRunning}
	r.monitorJob(context.Background(), job)
	if job.ErrorMessage != "Unknown error" {
		t.Errorf("ErrorMessage = %q, want %q", job.ErrorMessage, "Unknown error")
	}
}

func TestMonitorJobTimeout(t *testing.T) {
	gw := &fakeGateway{}
	gw.statusFn = func(*bakta.JobHandle) (*bakta.JobStatus, error) {
		return &bakta.JobStatus{State: bakta.RemoteStateRunning}, nil
	}
	cfg := testConfig(t)
	cfg.PollInterval = time.Millisecond
	cfg.JobTimeout = 10 * time.Millisecond
	r := New(gw, cfg)

	job := &Job{FileID: "sample1", JobID: "j", Secret: "s", State: StateRunning}
	if ok := r.monitorJob(context.Background(), job); ok {
		t.Fatal("monitorJob() = true for stuck job")
	}
	if job.State != StateTimeout {
		t.Errorf("State = %s, want timeout", job.State)
	}
	if calls := len(gw.callLog()); calls > 15 {
		t.Errorf("polled %d times, budget should bound the loop", calls)
	}
}

func TestMonitorJobStatusQueryFailure(t *testing.T) {
	gw := &fakeGateway{}
	gw.statusFn = func(*bakta.JobHandle) (*bakta.JobStatus, error) {
		return nil, errors.New("connection refused")
	}
	r := New(gw, testConfig(t))

	job := &Job{FileID: "sample1", JobID: "j", Secret: "s", State: StateRunning}
	if ok := r.monitorJob(context.Background(), job); ok {
		t.Fatal("monitorJob() = true after transport failure")
	}
	if job.State != StateFailed {
		t.Errorf("State = %s, want failed", job.State)
	}
	if statusCalls := len(gw.callLog()); statusCalls != 1 {
		t.Errorf("status calls = %d, want 1 (one-shot hard failure)", statusCalls)
	}
}

func TestMonitorJobUnknownStateIsRetried(t *testing.T) {
	gw := &fakeGateway{}
	var polls int
	gw.statusFn = func(*bakta.JobHandle) (*bakta.JobStatus, error) {
		polls++
		if polls < 3 {
			return &bakta.JobStatus{State: "REBALANCING"}, nil
		}
		return &bakta.JobStatus{State: bakta.RemoteStateSuccessful}, nil
	}
	r := New(gw, testConfig(t))

	job := &Job{FileID: "sample1", JobID: "j", Secret: "s", State: StateRunning}
	if ok := r.monitorJob(context.Background(), job); !ok {
		t.Fatalf("monitorJob() = false, state %s", job.State)
	}
	if job.State != StateCompleted {
		t.Errorf("State = %s, want completed after unknown states resolved", job.State)
	}
}

func TestMonitorJobNoResults(t *testing.T) {
	gw := &fakeGateway{}
	gw.resultsFn = func(*bakta.JobHandle) (map[string]string, error) {
		return map[string]string{"TSV": "https://down.example/result.tsv"}, nil
	}
	r := New(gw, testConfig(t))

	job := &Job{FileID: "sample1", JobID: "j", Secret: "s", State: StateRunning}
	r.monitorJob(context.Background(), job)
	if job.State != StateNoResults {
		t.Errorf("State = %s, want no_results when no known kind is listed", job.State)
	}
	if job.ResultPath != "" {
		t.Errorf("ResultPath = %q, want empty", job.ResultPath)
	}
}

func TestMonitorJobDownloadFailed(t *testing.T) {
	gw := &fakeGateway{}
	gw.resultsFn = func(*bakta.JobHandle) (map[string]string, error) {
		return map[string]string{
			bakta.ResultKindJSON:   "https://down.example/result.json",
			bakta.ResultKindJSONGZ: "https://down.example/result.json.gz",
		}, nil
	}
	gw.downloadFn = func(string, string) error { return errors.New("presigned link expired") }
	r := New(gw, testConfig(t))

	job := &Job{FileID: "sample1", JobID: "j", Secret: "s", State: StateRunning}
	r.monitorJob(context.Background(), job)
	if job.State != StateDownloadFailed {
		t.Errorf("State = %s, want download_failed", job.State)
	}

	downloads := 0
	for _, c := range gw.callLog() {
		if strings.HasPrefix(c, "download:") {
			downloads++
		}
	}
	if downloads != 2 {
		t.Errorf("download attempts = %d, want both kinds tried", downloads)
	}
}

func TestRunOneRecordPerFile(t *testing.T) {
	gw := &fakeGateway{}
	cfg := testConfig(t)
	cfg.BatchSize = 2
	r := New(gw, cfg)

	jobs := r.Run(context.Background(), testParameters("f1", "f2", "f3", "f4", "f5"), nil)

	if len(jobs) != 5 {
		t.Fatalf("records = %d, want 5", len(jobs))
	}
	seen := map[string]bool{}
	for _, job := range jobs {
		if seen[job.FileID] {
			t.Errorf("duplicate record for %s", job.FileID)
		}
		seen[job.FileID] = true
	}
}

func TestRunBatchPhaseOrdering(t *testing.T) {
	gw := &fakeGateway{}
	cfg := testConfig(t)
	cfg.BatchSize = 2
	cfg.MaxConcurrent = 2
	r := New(gw, cfg)

	r.Run(context.Background(), testParameters("f1", "f2", "f3", "f4", "f5"), nil)

	calls := gw.callLog()
	indexOf := func(call string) int {
		for i, c := range calls {
			if c == call {
				return i
			}
		}
		t.Fatalf("call %q not found in %v", call, calls)
		return -1
	}

	batches := [][]string{{"f1", "f2"}, {"f3", "f4"}, {"f5"}}
	for k := 0; k < len(batches)-1; k++ {
		lastOfBatch := 0
		for _, id := range batches[k] {
			for _, call := range []string{"start:job-" + id, "status:job-" + id} {
				if i := indexOf(call); i > lastOfBatch {
					lastOfBatch = i
				}
			}
		}
		for _, id := range batches[k+1] {
			if i := indexOf("init:bakta_job_" + id); i < lastOfBatch {
				t.Errorf("batch %d began (call %d) before batch %d drained (call %d)", k+2, i, k+1, lastOfBatch)
			}
		}
	}

	// Within a batch, every submission finishes before any monitoring poll.
	for _, batch := range batches {
		lastStart, firstStatus := 0, len(calls)
		for _, id := range batch {
			if i := indexOf("start:job-" + id); i > lastStart {
				lastStart = i
			}
			if i := indexOf("status:job-" + id); i < firstStatus {
				firstStatus = i
			}
		}
		if firstStatus < lastStart {
			t.Errorf("monitoring began (call %d) before submissions finished (call %d)", firstStatus, lastStart)
		}
	}
}

func TestRunSubmissionFailureExcludedFromMonitoring(t *testing.T) {
	gw := &fakeGateway{}
	gw.initFn = func(name string) (*bakta.JobHandle, *bakta.UploadLinks, error) {
		if name == "bakta_job_bad" {
			return nil, nil, errors.New("rejected")
		}
		fileID := strings.TrimPrefix(name, "bakta_job_")
		return &bakta.JobHandle{JobID: "job-" + fileID, Secret: "s"},
			&bakta.UploadLinks{Fasta: "https://up.example/fasta"}, nil
	}
	r := New(gw, testConfig(t))

	jobs := r.Run(context.Background(), testParameters("bad", "good"), nil)

	if len(jobs) != 2 {
		t.Fatalf("records = %d, want 2", len(jobs))
	}
	for _, c := range gw.callLog() {
		if c == "status:job-bad" {
			t.Error("failed submission was monitored")
		}
	}
	for _, job := range jobs {
		if job.FileID == "bad" && job.State != StateFailed {
			t.Errorf("bad record state = %s, want failed", job.State)
		}
		if job.FileID == "good" && job.State != StateCompleted {
			t.Errorf("good record state = %s, want completed", job.State)
		}
	}
}

func TestRunPanicIsIsolated(t *testing.T) {
	gw := &fakeGateway{}
	gw.uploadFn = func(uploadURL, path string) error {
		if strings.Contains(path, "f2") {
			panic("corrupted entry")
		}
		return nil
	}
	r := New(gw, testConfig(t))

	jobs := r.Run(context.Background(), testParameters("f1", "f2", "f3"), nil)

	if len(jobs) != 3 {
		t.Fatalf("records = %d, want 3", len(jobs))
	}
	for _, job := range jobs {
		switch job.FileID {
		case "f2":
			if job.State != StateFailed || !strings.Contains(job.ErrorMessage, "panic") {
				t.Errorf("f2 = %s / %q", job.State, job.ErrorMessage)
			}
		default:
			if job.State != StateCompleted {
				t.Errorf("%s state = %s, want completed", job.FileID, job.State)
			}
		}
	}
}

func TestRunDryRun(t *testing.T) {
	gw := &fakeGateway{}
	cfg := testConfig(t)
	cfg.DryRun = true
	r := New(gw, cfg)

	jobs := r.Run(context.Background(), testParameters("f1", "f2"), nil)

	if len(jobs) != 0 {
		t.Errorf("records = %d, want 0 in dry-run", len(jobs))
	}
	if calls := gw.callLog(); len(calls) != 0 {
		t.Errorf("gateway calls in dry-run: %v", calls)
	}
}

func TestRunResultPathOnlyWhenCompleted(t *testing.T) {
	gw := &fakeGateway{}
	gw.statusFn = func(h *bakta.JobHandle) (*bakta.JobStatus, error) {
		if h.JobID == "job-f2" {
			return &bakta.JobStatus{State: bakta.RemoteStateError, Error: "broken"}, nil
		}
		return &bakta.JobStatus{State: bakta.RemoteStateSuccessful}, nil
	}
	r := New(gw, testConfig(t))

	jobs := r.Run(context.Background(), testParameters("f1", "f2"), nil)
	for _, job := range jobs {
		if job.State != StateCompleted && job.ResultPath != "" {
			t.Errorf("%s has ResultPath %q in state %s", job.FileID, job.ResultPath, job.State)
		}
	}
}
