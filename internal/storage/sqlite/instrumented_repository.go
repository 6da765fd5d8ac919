package sqlite

import (
	"context"

	"github.com/italolelis/geofetch/internal/storage"
	"github.com/italolelis/geofetch/internal/telemetry"
)

// InstrumentedJournal wraps a JournalRepository with telemetry for the
// journal database operations.
type InstrumentedJournal struct {
	repo *JournalRepository
	tel  *telemetry.Telemetry
}

func NewInstrumentedJournal(repo *JournalRepository, tel *telemetry.Telemetry) *InstrumentedJournal {
	return &InstrumentedJournal{repo: repo, tel: tel}
}

func (j *InstrumentedJournal) RecordResult(rec storage.FetchRecord) error {
	return j.tel.InstrumentDBOperation(context.Background(), "record_result", func(context.Context) error {
		return j.repo.RecordResult(rec)
	})
}

func (j *InstrumentedJournal) GetRecords() ([]storage.FetchRecord, error) {
	var records []storage.FetchRecord

	err := j.tel.InstrumentDBOperation(context.Background(), "get_records", func(context.Context) error {
		var innerErr error
		records, innerErr = j.repo.GetRecords()

		return innerErr
	})

	return records, err
}

func (j *InstrumentedJournal) GetBatchRecords(batchID string) ([]storage.FetchRecord, error) {
	var records []storage.FetchRecord

	err := j.tel.InstrumentDBOperation(context.Background(), "get_batch_records", func(context.Context) error {
		var innerErr error
		records, innerErr = j.repo.GetBatchRecords(batchID)

		return innerErr
	})

	return records, err
}

func (j *InstrumentedJournal) DeleteRecord(assetID string) error {
	return j.tel.InstrumentDBOperation(context.Background(), "delete_record", func(context.Context) error {
		return j.repo.DeleteRecord(assetID)
	})
}
