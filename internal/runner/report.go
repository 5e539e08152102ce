package runner

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ReportFilename is the run report written into the results directory.
const ReportFilename = "bakta_run_report.txt"

// BuildReport renders the run summary for a record collection. Pure
// function: it only formats, it never touches the records.
//
// Successful means completed; failed covers failed, timeout and
// download_failed. Records in no_results stay out of both buckets on
// purpose (the totals line makes the gap visible).
func BuildReport(runID string, jobs []*Job) string {
	sorted := make([]*Job, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FileID < sorted[j].FileID })

	var successful, failed []*Job
	for _, job := range sorted {
		switch job.State {
		case StateCompleted:
			successful = append(successful, job)
		case StateFailed, StateTimeout, StateDownloadFailed:
			failed = append(failed, job)
		}
	}

	var b strings.Builder
	b.WriteString("BAKTA API RUN SUMMARY REPORT\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	if runID != "" {
		fmt.Fprintf(&b, "Run ID: %s\n", runID)
	}
	fmt.Fprintf(&b, "Total files processed: %d\n", len(sorted))
	fmt.Fprintf(&b, "Successful: %d\n", len(successful))
	fmt.Fprintf(&b, "Failed: %d\n\n", len(failed))

	if len(successful) > 0 {
		b.WriteString("SUCCESSFUL JOBS:\n")
		b.WriteString(strings.Repeat("-", 20) + "\n")
		for _, job := range successful {
			minutes := job.CompleteTime.Sub(job.SubmitTime).Minutes()
			fmt.Fprintf(&b, "%s: %s (%.1f minutes)\n", job.FileID, job.ResultPath, minutes)
		}
		b.WriteString("\n")
	}

	if len(failed) > 0 {
		b.WriteString("FAILED JOBS:\n")
		b.WriteString(strings.Repeat("-", 20) + "\n")
		for _, job := range failed {
			fmt.Fprintf(&b, "%s: %s - %s\n", job.FileID, job.State, job.ErrorMessage)
		}
	}

	return b.String()
}

// WriteReport persists the run summary to path.
func WriteReport(path, runID string, jobs []*Job) error {
	if err := os.WriteFile(path, []byte(BuildReport(runID, jobs)), 0644); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	return nil
}

// CountByState tallies the record collection, for the console summary.
func CountByState(jobs []*Job) map[State]int {
	counts := make(map[State]int)
	for _, job := range jobs {
		counts[job.State]++
	}
	return counts
}
