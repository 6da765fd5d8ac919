package sqlite

import (
	"database/sql"
	"time"

	"github.com/italolelis/geofetch/internal/storage"
)

type JournalRepository struct {
	db *sql.DB
}

func NewJournalRepository(dbConn *sql.DB) *JournalRepository {
	return &JournalRepository{db: dbConn}
}

// RecordResult upserts the outcome for an asset. Re-running a batch over the
// same assets refreshes the existing rows rather than growing the journal.
func (r *JournalRepository) RecordResult(rec storage.FetchRecord) error {
	fetchedAt := rec.FetchedAt
	if fetchedAt == "" {
		fetchedAt = time.Now().Format(time.RFC3339)
	}

	_, err := r.db.Exec(`
		INSERT INTO fetches (batch_id, asset_id, file_path, status, error, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			batch_id = excluded.batch_id,
			file_path = excluded.file_path,
			status = excluded.status,
			error = excluded.error,
			fetched_at = excluded.fetched_at
	`, rec.BatchID, rec.AssetID, rec.FilePath, rec.Status, rec.Error, fetchedAt)

	return err
}

func (r *JournalRepository) GetRecords() ([]storage.FetchRecord, error) {
	return r.query(`SELECT batch_id, asset_id, file_path, status, error, fetched_at FROM fetches ORDER BY fetched_at`)
}

func (r *JournalRepository) GetBatchRecords(batchID string) ([]storage.FetchRecord, error) {
	return r.query(`SELECT batch_id, asset_id, file_path, status, error, fetched_at FROM fetches WHERE batch_id = ? ORDER BY fetched_at`, batchID)
}

func (r *JournalRepository) DeleteRecord(assetID string) error {
	_, err := r.db.Exec(`DELETE FROM fetches WHERE asset_id = ?`, assetID)

	return err
}

func (r *JournalRepository) query(q string, args ...any) ([]storage.FetchRecord, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.FetchRecord

	for rows.Next() {
		var rec storage.FetchRecord

		var errMsg sql.NullString

		if err := rows.Scan(&rec.BatchID, &rec.AssetID, &rec.FilePath, &rec.Status, &errMsg, &rec.FetchedAt); err != nil {
			return nil, err
		}

		if errMsg.Valid {
			rec.Error = errMsg.String
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
