package types

import "time"

// WriteReport summarizes one delete-then-insert write.
type WriteReport struct {
	Received   int      `json:"received"`
	Duplicates int      `json:"duplicates"`
	Matched    int      `json:"matched"`
	Deleted    int      `json:"deleted"`
	Inserted   int      `json:"inserted"`
	Failed     int      `json:"failed"`
	FailedKeys []string `json:"failed_keys,omitempty"`
}

// CrawlStats counts what a crawl run saw before indexing.
type CrawlStats struct {
	Options          int   `json:"options"`
	PagesFetched     int64 `json:"pages_fetched"`
	PagesFailed      int64 `json:"pages_failed"`
	CardsExtracted   int64 `json:"cards_extracted"`
	ExtractionErrors int64 `json:"extraction_errors"`
	RecordsDropped   int64 `json:"records_dropped"`
	ListingsKept     int64 `json:"listings_kept"`
}

// CrawlReport is returned by the crawl trigger.
type CrawlReport struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Stats          CrawlStats    `json:"stats"`
	SkippedOptions []string      `json:"skipped_options,omitempty"`
	Write          *WriteReport  `json:"write,omitempty"`
	Error          string        `json:"error,omitempty"`

	// Interrupted is set when the run's context ended before paging finished.
	Interrupted bool `json:"interrupted,omitempty"`
}
