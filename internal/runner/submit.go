package runner

import (
	"context"
	"path/filepath"
	"time"

	"github.com/seqlab-io/baktarun/internal/bakta"
	"github.com/seqlab-io/baktarun/internal/params"
)

// repliconTableType is the format of uploaded replicon tables.
const repliconTableType = "CSV"

// submitJob turns one input file into a running remote job, mutating the
// record in place. Every step is a hard stop on failure except the
// replicon upload, which is a best-effort secondary channel. The caller's
// task boundary guards against panics, so this never aborts a batch.
func (r *Runner) submitJob(ctx context.Context, job *Job, entry params.Entry, replicons []params.Replicon) {
	handle, links, err := r.gw.InitJob(ctx, "bakta_job_"+job.FileID, repliconTableType)
	if err != nil {
		r.log("error", "Init failed for %s: %v", job.FileID, err)
		job.fail("Job initialization failed")
		return
	}
	job.JobID = handle.JobID
	job.Secret = handle.Secret
	job.SubmitTime = time.Now()

	if links.Fasta == "" {
		r.log("error", "Init response for %s carried no FASTA upload link", job.FileID)
		job.fail("FASTA upload failed")
		return
	}
	if err := r.gw.UploadFile(ctx, links.Fasta, job.FastaPath); err != nil {
		r.log("error", "FASTA upload failed for %s: %v", job.FileID, err)
		job.fail("FASTA upload failed")
		return
	}

	hasReplicons := r.uploadReplicons(ctx, job, entry, links, replicons)

	locusTag := bakta.DeriveLocusTag(entry.Genus, entry.Species, job.FileID)
	config := bakta.JobConfig{
		TranslationTable: 11,
		CompleteGenome:   entry.Circular,
		MinContigLength:  1,
		Compliant:        true,
		Genus:            entry.Genus,
		Species:          entry.Species,
		Strain:           entry.Strain,
		LocusTag:         locusTag,
		Locus:            bakta.DeriveLocus(locusTag, handle.JobID),
		HasReplicons:     hasReplicons,
	}
	if err := r.gw.StartJob(ctx, handle, config); err != nil {
		r.log("error", "Start failed for %s: %v", job.FileID, err)
		job.fail("Job start failed")
		return
	}

	job.State = StateRunning
	r.log("info", "Job submitted: %s -> %s", job.FileID, handle.JobID)
}

// uploadReplicons writes the per-file replicon subset and uploads it.
// Failures are logged and the submission continues without the table.
func (r *Runner) uploadReplicons(ctx context.Context, job *Job, entry params.Entry, links *bakta.UploadLinks, replicons []params.Replicon) bool {
	sequenceID := entry.SequenceID
	if sequenceID == "" {
		sequenceID = job.FileID
	}
	subset := params.SubsetFor(replicons, sequenceID)
	if len(subset) == 0 {
		return false
	}

	if links.Replicons == "" {
		r.log("warning", "No replicon upload link for %s, continuing without replicon table", job.FileID)
		return false
	}

	subsetPath := filepath.Join(r.cfg.ResultsDir, job.FileID+"_replicons.csv")
	if err := params.WriteReplicons(subsetPath, subset); err != nil {
		r.log("warning", "Could not write replicon subset for %s: %v", job.FileID, err)
		return false
	}
	if err := r.gw.UploadFile(ctx, links.Replicons, subsetPath); err != nil {
		r.log("warning", "Replicon upload failed for %s, continuing without it: %v", job.FileID, err)
		return false
	}
	return true
}
