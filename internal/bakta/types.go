package bakta

import "encoding/json"

// Remote job lifecycle states as reported by the Bakta API.
const (
	RemoteStateInit       = "INIT"
	RemoteStateUploading  = "UPLOADING"
	RemoteStatePending    = "PENDING"
	RemoteStateSubmitted  = "SUBMITTED"
	RemoteStateRunning    = "RUNNING"
	RemoteStateSuccessful = "SUCCESSFUL"
	RemoteStateError      = "ERROR"
)

// Result file kinds the API may list in a result manifest.
const (
	ResultKindJSON   = "JSON"
	ResultKindJSONGZ = "JSONGZ"
)

// JobHandle identifies one remote job. The secret is issued together with
// the job ID at initialization and is required for every subsequent call.
type JobHandle struct {
	JobID  string
	Secret string
}

// UploadLinks holds the presigned upload URLs returned by job
// initialization, one per input channel. Any of them may be empty if the
// API did not include the link in its response. The links are short-lived
// and must only be used for the upload step of the same submission.
type UploadLinks struct {
	Fasta     string
	Prodigal  string
	Replicons string
}

// JobConfig is the annotation configuration sent with a start request.
// Field names and types mirror the API contract exactly.
type JobConfig struct {
	TranslationTable     int     `json:"translationTable"`
	CompleteGenome       bool    `json:"completeGenome"`
	KeepContigHeaders    bool    `json:"keepContigHeaders"`
	MinContigLength      int     `json:"minContigLength"`
	Compliant            bool    `json:"compliant"`
	Genus                string  `json:"genus"`
	Species              string  `json:"species"`
	Strain               string  `json:"strain"`
	LocusTag             string  `json:"locusTag"`
	Locus                string  `json:"locus"`
	HasReplicons         bool    `json:"hasReplicons"`
	DermType             *string `json:"dermType"`
	Plasmid              *string `json:"plasmid"`
	ProdigalTrainingFile *string `json:"prodigalTrainingFile"`
}

// JobStatus is the decoded outcome of a status query for one job.
type JobStatus struct {
	// State is one of the RemoteState* values, or whatever unknown string
	// the API returned. Callers decide how to treat unrecognized states.
	State string

	// ResultSummary carries the raw result block, if any. The orchestrator
	// does not interpret it; it is kept for diagnostics only.
	ResultSummary json.RawMessage

	// Error holds the remote error detail when State is ERROR.
	Error string
}

// Wire-level request/response bodies. These stay private: callers work
// with the typed values above and malformed responses surface as named
// decode errors instead of silent zero values.

type jobRef struct {
	JobID  string `json:"jobID"`
	Secret string `json:"secret"`
}

type initRequest struct {
	Name              string `json:"name"`
	RepliconTableType string `json:"repliconTableType"`
}

type initResponse struct {
	Job                 jobRef `json:"job"`
	UploadLinkFasta     string `json:"uploadLinkFasta"`
	UploadLinkProdigal  string `json:"uploadLinkProdigal"`
	UploadLinkReplicons string `json:"uploadLinkReplicons"`
}

type startRequest struct {
	Job    jobRef    `json:"job"`
	Config JobConfig `json:"config"`
}

type listRequest struct {
	Jobs []jobRef `json:"jobs"`
}

type listResponse struct {
	Jobs []listedJob `json:"jobs"`
}

type listedJob struct {
	JobID     string          `json:"jobID"`
	JobStatus string          `json:"jobStatus"`
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error"`
}

type resultRequest struct {
	JobID  string `json:"jobID"`
	Secret string `json:"secret"`
}

type resultResponse struct {
	ResultFiles map[string]string `json:"ResultFiles"`
}
