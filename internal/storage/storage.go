package storage

// FetchRecord is one journaled asset outcome. The journal is an optional
// layer on top of the fetcher: the fetcher itself stays stateless across
// batches, while the CLI records results here for status reporting and
// retention cleanup.
type FetchRecord struct {
	BatchID   string
	AssetID   string
	FilePath  string
	Status    string
	Error     string
	FetchedAt string
}

type JournalReadRepository interface {
	GetRecords() ([]FetchRecord, error)
	GetBatchRecords(batchID string) ([]FetchRecord, error)
}

type JournalWriteRepository interface {
	RecordResult(rec FetchRecord) error
	DeleteRecord(assetID string) error
}
