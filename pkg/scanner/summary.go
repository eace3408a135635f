package scanner

import (
	"fmt"
	"time"
)

// Summary is the outcome of one full scan: reconciliation counts plus a
// bounded sample of per-item errors. Per-item failures never abort a scan,
// they only show up here.
type Summary struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Found     int `json:"found"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Purged    int `json:"purged"`

	SkippedArchives int `json:"skipped_archives"`
	EmptiedCatalogs int `json:"emptied_catalogs"`

	Errors       int      `json:"errors"`
	ErrorSamples []string `json:"error_samples,omitempty"`
}

func (s *Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

func (s *Summary) String() string {
	return fmt.Sprintf("found=%d inserted=%d updated=%d unchanged=%d deleted=%d purged=%d errors=%d in %s",
		s.Found, s.Inserted, s.Updated, s.Unchanged, s.Deleted, s.Purged, s.Errors, s.Duration().Round(time.Millisecond))
}
