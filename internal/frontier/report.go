package frontier

import (
	"time"
)

// Status is the outcome of processing one URL.
type Status string

const (
	// StatusCrawled means the page was fetched and stored.
	StatusCrawled Status = "crawled"
	// StatusSkipped means the store already held the URL.
	StatusSkipped Status = "skipped"
	// StatusFailed means the fetch or extraction failed.
	StatusFailed Status = "failed"
)

// Result records what happened to one URL.
type Result struct {
	URL    string `json:"url"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
	// Links is the number of resolved outbound links of a crawled page.
	Links int `json:"links,omitempty"`
}

// Report summarises a finished run.
type Report struct {
	SessionID  string        `json:"session_id"`
	Crawled    int           `json:"crawled"`
	Results    []Result      `json:"results"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Failures returns the results whose fetch or extraction failed.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Count returns how many results carry status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}
