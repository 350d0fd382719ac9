package core

import "errors"

var (
	// ErrUnreadableWorkbook means the upload is not a readable xlsx workbook.
	ErrUnreadableWorkbook = errors.New("unreadable workbook")

	// ErrInvalidRequest wraps validation failures of an ingest request.
	ErrInvalidRequest = errors.New("invalid ingest request")

	// ErrTenantBusy means another ingestion of the same tenant holds the lock.
	ErrTenantBusy = errors.New("tenant ingestion already running")
)

// maxBatchErrorLen bounds the error message stored on a failed batch.
const maxBatchErrorLen = 450

func batchErrorMessage(err error) string {
	return truncateRunes(err.Error(), maxBatchErrorLen)
}
