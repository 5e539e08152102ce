// Package bakta provides a typed client for the Bakta genome annotation
// web API.
//
// The client is a thin, stateless-per-call wrapper over the API's five
// remote operations plus result download. It performs no retries and no
// scheduling; each call reports its own success or failure and the
// orchestrator above decides what to do with it.
//
// Architecture:
//
//	baktarun CLI                           Bakta API
//	┌─────────────┐   POST /job/init      ┌─────────────┐
//	│   Client    │ ────────────────────▶ │ /api/v1/... │
//	│             │   PUT  presigned URL  │             │
//	│             │ ────────────────────▶ │  S3 storage │
//	└─────────────┘   GET  presigned URL  └─────────────┘
package bakta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// LogFn is an optional callback for leveled log output. If nil, the client
// stays silent; it never touches ambient global logging state.
type LogFn func(level, msg string)

// Client talks to one Bakta API endpoint.
type Client struct {
	baseURL string
	logFn   LogFn

	// Control-plane calls (init, start, status, result manifest) share a
	// short timeout and a rate limiter protecting the remote service.
	httpClient *http.Client
	limiter    *rate.Limiter

	// Data-plane transfers get their own clients with extended timeouts
	// sized for large FASTA uploads and result downloads.
	uploadClient   *http.Client
	downloadClient *http.Client
}

// ClientConfig holds configuration for the API client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "https://api.bakta.computational.bio"
	BaseURL string

	// Timeout is the control-plane request timeout (default: 30s)
	Timeout time.Duration

	// UploadTimeout bounds one presigned-URL upload (default: 5m)
	UploadTimeout time.Duration

	// DownloadTimeout bounds one result download (default: 10m)
	DownloadTimeout time.Duration

	// RequestsPerSecond caps control-plane calls (default: 5)
	RequestsPerSecond float64

	// LogFn is an optional callback for logging
	LogFn LogFn
}

// NewClient creates a new Bakta API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = 5 * time.Minute
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = 10 * time.Minute
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		logFn:          cfg.LogFn,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		uploadClient:   &http.Client{Timeout: cfg.UploadTimeout},
		downloadClient: &http.Client{Timeout: cfg.DownloadTimeout},
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) log(level, format string, args ...any) {
	if c.logFn != nil {
		c.logFn(level, fmt.Sprintf(format, args...))
	}
}

// postJSON issues one rate-limited control-plane POST and decodes the
// response body into out (if out is non-nil).
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "baktarun/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", path, err)
		}
	}
	return nil
}

// InitJob creates a new remote job record and returns its handle together
// with the presigned upload links for the input channels.
func (c *Client) InitJob(ctx context.Context, name, repliconTableType string) (*JobHandle, *UploadLinks, error) {
	var out initResponse
	in := initRequest{Name: name, RepliconTableType: repliconTableType}
	if err := c.postJSON(ctx, "/api/v1/job/init", in, &out); err != nil {
		return nil, nil, err
	}
	if out.Job.JobID == "" || out.Job.Secret == "" {
		return nil, nil, fmt.Errorf("init response missing job ID or secret")
	}

	c.log("info", "Job initialized: %s", out.Job.JobID)
	handle := &JobHandle{JobID: out.Job.JobID, Secret: out.Job.Secret}
	links := &UploadLinks{
		Fasta:     out.UploadLinkFasta,
		Prodigal:  out.UploadLinkProdigal,
		Replicons: out.UploadLinkReplicons,
	}
	return handle, links, nil
}

// UploadFile transfers the file at path to a presigned upload URL. The
// upload uses the extended data-plane timeout; a missing local file or a
// non-2xx response is a failure.
func (c *Client) UploadFile(ctx context.Context, uploadURL, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open upload file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat upload file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, f)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = info.Size()

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload of %s returned status %d", path, resp.StatusCode)
	}

	c.log("info", "File uploaded: %s (%d bytes)", path, info.Size())
	return nil
}

// StartJob supplies the annotation configuration and triggers execution of
// an initialized job.
func (c *Client) StartJob(ctx context.Context, handle *JobHandle, config JobConfig) error {
	in := startRequest{
		Job:    jobRef{JobID: handle.JobID, Secret: handle.Secret},
		Config: config,
	}
	if err := c.postJSON(ctx, "/api/v1/job/start", in, nil); err != nil {
		return err
	}
	c.log("info", "Job started: %s", handle.JobID)
	return nil
}

// JobStatus queries the current remote state of one job. The call is
// idempotent and safe to repeat.
func (c *Client) JobStatus(ctx context.Context, handle *JobHandle) (*JobStatus, error) {
	var out listResponse
	in := listRequest{Jobs: []jobRef{{JobID: handle.JobID, Secret: handle.Secret}}}
	if err := c.postJSON(ctx, "/api/v1/job/list", in, &out); err != nil {
		return nil, err
	}
	if len(out.Jobs) == 0 {
		return nil, fmt.Errorf("no job data returned for %s", handle.JobID)
	}

	listed := out.Jobs[0]
	return &JobStatus{
		State:         listed.JobStatus,
		ResultSummary: listed.Result,
		Error:         listed.Error,
	}, nil
}

// JobResults fetches the result manifest of a finished job: a mapping of
// result kind (e.g. JSON, JSONGZ) to presigned download URL. Valid only
// once the remote state is SUCCESSFUL.
func (c *Client) JobResults(ctx context.Context, handle *JobHandle) (map[string]string, error) {
	var out resultResponse
	in := resultRequest{JobID: handle.JobID, Secret: handle.Secret}
	if err := c.postJSON(ctx, "/api/v1/job/result", in, &out); err != nil {
		return nil, err
	}
	c.log("info", "Retrieved %d result links for job %s", len(out.ResultFiles), handle.JobID)
	return out.ResultFiles, nil
}

// JobLogs fetches the remote execution log of a job. Best-effort: used for
// diagnostics when a job ends in ERROR.
func (c *Client) JobLogs(ctx context.Context, handle *JobHandle) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/job/%s/logs?secret=%s", c.baseURL, handle.JobID, handle.Secret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create logs request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch job logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("job logs returned status %d", resp.StatusCode)
	}

	logs, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read job logs: %w", err)
	}
	return string(logs), nil
}

// DownloadResult transfers one result artifact from a presigned URL to a
// local file, using the extended download timeout.
func (c *Client) DownloadResult(ctx context.Context, downloadURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	c.log("info", "Result downloaded: %s (%d bytes)", dest, n)
	return nil
}
