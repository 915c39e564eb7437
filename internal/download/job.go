package download

import (
	"time"

	"github.com/reelfetch/reelfetch/internal/format"
	"github.com/reelfetch/reelfetch/internal/platform"
)

// Job status values reported to progress subscribers
const (
	StatusStarting    = "starting"
	StatusDownloading = "downloading"
	StatusConverting  = "converting"
	StatusFinalizing  = "finalizing"
	StatusComplete    = "complete"
	StatusFailed      = "failed"
)

// ProgressFunc receives status updates while a job runs.
type ProgressFunc func(status string, percent float64)

// Request is a validated-on-use download request
type Request struct {
	URL    string
	Format string

	// ProgressID correlates websocket subscribers with this job. Optional.
	ProgressID string
}

// JobSpec is everything needed to run one extractor invocation. It is built
// by Runner.Plan and consumed once by Runner.Run.
type JobSpec struct {
	Platform       platform.Kind
	Format         format.Format
	ContentID      string
	CreatedAt      time.Time
	Prefix         string
	OutputTemplate string
	Args           []string
	Extension      string
}

// Artifact is a file produced by a job and awaiting streaming and deletion.
type Artifact struct {
	Path string
	Name string
	Size int64
	Spec *JobSpec
}
