package domain

// PollResult summarizes one full ingestion cycle.
type PollResult struct {
	Fetched  int // records returned by the upstream API
	Upserted int // records written to the store
	Errors   int // malformed records dropped during normalization
	Pages    int // pages fetched
	Retries  int // transient-failure retries across all pages
}

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	TotalUpdated int64
	Batches      int
}

// ArchiveResult summarizes one archiver run.
type ArchiveResult struct {
	Archived     int64
	SnapshotPath string // blob path of the pre-archive CSV export, "" if none
}
