package uploader

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Status is the outcome of one job
type Status int

const (
	StatusFailed Status = iota
	StatusUploaded
	StatusSkipped
	StatusPlanned
)

func (s Status) String() string {
	switch s {
	case StatusUploaded:
		return "uploaded"
	case StatusSkipped:
		return "skipped"
	case StatusPlanned:
		return "planned"
	default:
		return "failed"
	}
}

// Result is what happened to one job
type Result struct {
	Job
	URL    string
	Size   int64
	Status Status
	Err    error
}

// Stored reports whether the object is available remotely after this run
func (r Result) Stored() bool {
	return r.Status == StatusUploaded || r.Status == StatusSkipped
}

// Report collects the results of a run
type Report struct {
	RunID   string
	Results []Result
}

// Count returns how many results have the given status
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Stored returns the results whose objects exist remotely
func (r *Report) Stored() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Stored() {
			out = append(out, res)
		}
	}
	return out
}

// Bytes is the total size of files sent in this run
func (r *Report) Bytes() uint64 {
	var total uint64
	for _, res := range r.Results {
		if res.Status == StatusUploaded {
			total += uint64(res.Size)
		}
	}
	return total
}

// Summary is a one-line description of the run
func (r *Report) Summary() string {
	if n := r.Count(StatusPlanned); n > 0 {
		return fmt.Sprintf("%d files planned, %d unchanged", n, r.Count(StatusSkipped))
	}
	return fmt.Sprintf("Uploaded %d files (%s), %d unchanged, %d failed",
		r.Count(StatusUploaded),
		humanize.Bytes(r.Bytes()),
		r.Count(StatusSkipped),
		r.Count(StatusFailed))
}
