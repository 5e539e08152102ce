// cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/seqlab-io/baktarun/internal/bakta"
	"github.com/seqlab-io/baktarun/internal/params"
	"github.com/seqlab-io/baktarun/internal/runner"
	"github.com/seqlab-io/baktarun/internal/ui"
)

var (
	dryRun        bool
	maxConcurrent int
	batchSize     int
	paramsFile    string
	repliconFile  string
	resultsDir    string
	logDir        string
	pollInterval  time.Duration
	jobTimeout    time.Duration
	batchPause    time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit, monitor and download a batch of annotation jobs",
	Long: `Processes every file in the parameter set through the Bakta API.

Files are handled in fixed-size batches: each batch is submitted under a
bounded worker pool, then monitored under the same pool until every job
reaches a terminal state, with a pause before the next batch starts. One
failing file never aborts the run; the final report lists every outcome.

The parameter set is the JSON produced by 'baktarun extract'.`,
	Example: `  # Dry run: log intended work, no API calls
  baktarun run --params-file bakta_params/bakta_parameters.json --dry-run

  # Full run with custom batching
  baktarun run --params-file bakta_params/bakta_parameters.json \
    --replicon-file bakta_params/replicons.csv \
    --batch-size 10 --max-concurrent 5`,
	Run: func(cmd *cobra.Command, args []string) {
		runBatch(cmd)
	},
}

func runBatch(cmd *cobra.Command) {
	fileCfg, err := loadFileConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	applyFileConfig(cmd, fileCfg)

	parameters, err := params.Load(paramsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		fmt.Fprintln(os.Stderr, "   Hint: Run 'baktarun extract' first to build the parameter set.")
		os.Exit(1)
	}
	if len(parameters) == 0 {
		fmt.Fprintln(os.Stderr, "❌ Parameter set is empty, nothing to do.")
		os.Exit(1)
	}

	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create results directory: %v\n", err)
		os.Exit(1)
	}

	runID := uuid.NewString()[:8]
	logger, err := ui.NewLogger(logDir, runID, debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Logf("info", "Loaded parameters for %d files", len(parameters))

	var replicons []params.Replicon
	if repliconFile != "" {
		if _, err := os.Stat(repliconFile); err == nil {
			replicons, err = params.LoadReplicons(repliconFile)
			if err != nil {
				logger.Logf("warning", "Could not load replicon table: %v", err)
			} else {
				logger.Logf("info", "Loaded replicon table with %d entries", len(replicons))
			}
		}
	}

	client := bakta.NewClient(bakta.ClientConfig{
		BaseURL: apiURL,
		LogFn:   logger.Log,
	})
	batchRunner := runner.New(client, runner.Config{
		BatchSize:     batchSize,
		MaxConcurrent: maxConcurrent,
		PollInterval:  pollInterval,
		JobTimeout:    jobTimeout,
		BatchPause:    batchPause,
		ResultsDir:    resultsDir,
		DryRun:        dryRun,
		LogFn:         logger.Log,
	})

	jobs := batchRunner.Run(context.Background(), parameters, replicons)

	if dryRun {
		logger.Log("success", "Dry run complete.")
		return
	}

	reportPath := filepath.Join(resultsDir, runner.ReportFilename)
	if err := runner.WriteReport(reportPath, runID, jobs); err != nil {
		logger.Logf("error", "%v", err)
		os.Exit(1)
	}

	counts := runner.CountByState(jobs)
	succeeded := counts[runner.StateCompleted]
	failed := counts[runner.StateFailed] + counts[runner.StateTimeout] + counts[runner.StateDownloadFailed]
	logger.Logf("info", "Final report generated: %s", reportPath)
	logger.Logf("success", "SUMMARY: %d successful, %d failed out of %d total",
		succeeded, failed, len(jobs))
}

// applyFileConfig fills in values from the YAML config for every flag the
// user did not set explicitly.
func applyFileConfig(cmd *cobra.Command, cfg *fileConfig) {
	flags := cmd.Flags()
	if cfg.API != "" && !cmd.Root().PersistentFlags().Changed("api") {
		apiURL = cfg.API
	}
	if cfg.ResultsDir != "" && !flags.Changed("results-dir") {
		resultsDir = cfg.ResultsDir
	}
	if cfg.LogDir != "" && !flags.Changed("log-dir") {
		logDir = cfg.LogDir
	}
	if cfg.BatchSize > 0 && !flags.Changed("batch-size") {
		batchSize = cfg.BatchSize
	}
	if cfg.MaxConcurrent > 0 && !flags.Changed("max-concurrent") {
		maxConcurrent = cfg.MaxConcurrent
	}
	if cfg.PollIntervalSeconds > 0 && !flags.Changed("poll-interval") {
		pollInterval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}
	if cfg.JobTimeoutSeconds > 0 && !flags.Changed("job-timeout") {
		jobTimeout = time.Duration(cfg.JobTimeoutSeconds) * time.Second
	}
	if cfg.BatchPauseSeconds > 0 && !flags.Changed("batch-pause") {
		batchPause = time.Duration(cfg.BatchPauseSeconds) * time.Second
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log intended work without any API call")
	runCmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 5, "Maximum concurrent jobs per batch phase")
	runCmd.Flags().IntVar(&batchSize, "batch-size", 10, "Number of files per batch")
	runCmd.Flags().StringVar(&paramsFile, "params-file", "bakta_params/bakta_parameters.json", "Parameters JSON file")
	runCmd.Flags().StringVar(&repliconFile, "replicon-file", "bakta_params/replicons.csv", "Replicon table CSV file")
	runCmd.Flags().StringVar(&resultsDir, "results-dir", "bakta_results", "Directory for downloaded results and the run report")
	runCmd.Flags().StringVar(&logDir, "log-dir", "logs", "Directory for session log files")
	runCmd.Flags().DurationVar(&pollInterval, "poll-interval", 30*time.Second, "Sleep between status checks")
	runCmd.Flags().DurationVar(&jobTimeout, "job-timeout", time.Hour, "Wall-clock budget for monitoring one job")
	runCmd.Flags().DurationVar(&batchPause, "batch-pause", 10*time.Second, "Pause between batches")
}
