package fetch

import "time"

// Status is the terminal outcome of one asset fetch.
type Status string

const (
	// StatusDownloaded means the asset was fetched and moved into place.
	StatusDownloaded Status = "downloaded"
	// StatusSkippedExists means a satisfying file already existed at the
	// destination and no network call was made.
	StatusSkippedExists Status = "skipped_exists"
	// StatusFailed means the asset could not be fetched. Err carries the
	// terminating error; the rest of the batch is unaffected.
	StatusFailed Status = "failed"
)

// Result is the outcome for a single descriptor. Results are immutable once
// returned; the fetcher retains nothing after reporting them.
type Result struct {
	ID       string
	Path     string // final destination path, relative to the output folder root
	Status   Status
	Bytes    int64 // bytes written for downloaded assets
	Attempts int   // download attempts made, 0 for skipped assets
	Duration time.Duration
	Err      error // populated only when Status is StatusFailed
}

// Failed reports whether this asset ended in failure.
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

// Summary aggregates a batch of results for reporting.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Summarize counts the results per terminal status.
func Summarize(results []Result) Summary {
	var s Summary

	for _, r := range results {
		switch r.Status {
		case StatusDownloaded:
			s.Downloaded++
		case StatusSkippedExists:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}

	return s
}

// OK reports whether every asset either downloaded or was already present.
func (s Summary) OK() bool {
	return s.Failed == 0
}
