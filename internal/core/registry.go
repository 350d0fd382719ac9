package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Registry is the persistent store of children, visits and upload batches.
type Registry interface {
	// WithTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx RegistryTx) error) error

	CreateBatch(ctx context.Context, b *UploadBatch) error
	FinishBatch(ctx context.Context, b *UploadBatch) error
	ListBatches(ctx context.Context, tenantID int64, limit int) ([]UploadBatch, error)

	// PeriodVisits lists the visits of a tenant in period joined with their
	// child, filtered by f.
	PeriodVisits(ctx context.Context, tenantID int64, period Period, f ReportFilter) ([]VisitRecord, error)
}

// RegistryTx is the bulk surface reconciliation writes through.
type RegistryTx interface {
	FindChildrenByKeys(ctx context.Context, tenantID int64, keys []string) ([]Child, error)
	// FindVisits returns the visits of childIDs on date, ordered by id.
	FindVisits(ctx context.Context, tenantID int64, childIDs []int64, date time.Time) ([]Visit, error)
	UpdateChildren(ctx context.Context, children []Child) error
	// CreateChildren returns assigned ids in input order.
	CreateChildren(ctx context.Context, children []Child) ([]int64, error)
	UpdateVisits(ctx context.Context, visits []Visit) error
	CreateVisits(ctx context.Context, visits []Visit) error
}

// ReportFilter narrows a monthly report.
type ReportFilter struct {
	// Search matches the child document, child name or mother name.
	Search string
	// Facility is compared against canonical assigned facilities.
	Facility string
	Status   VisitStatus
	// OnlyNew keeps children whose first visit falls in the period.
	OnlyNew bool
}

// VisitRecord is a visit joined with its child.
type VisitRecord struct {
	Child Child
	Visit Visit
}

// newBatch starts a batch record for an ingestion run.
func newBatch(req IngestRequest) *UploadBatch {
	now := time.Now().UTC()
	return &UploadBatch{
		ID:        uuid.New(),
		TenantID:  req.TenantID,
		FileName:  req.FileName,
		Month:     req.Month,
		Year:      req.Year,
		State:     BatchProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
