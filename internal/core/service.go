package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alysalud/visitas/internal/logging"
)

// DefaultIngestTimeout bounds one ingestion run when Options leaves it unset.
const DefaultIngestTimeout = 5 * time.Minute

// Options tunes a Service.
type Options struct {
	MaxConcurrent int
	MaxWait       time.Duration
	Timeout       time.Duration
	PreviewLimit  int
}

// Service runs ingestion, previews, history and reports for the HTTP layer.
type Service struct {
	registry Registry
	locker   TenantLocker
	limiter  *IngestLimiter
	validate *validator.Validate

	timeout      time.Duration
	previewLimit int
}

// NewService wires a Service. A nil locker falls back to LocalLocker.
func NewService(registry Registry, locker TenantLocker, opts Options) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultIngestTimeout
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = DefaultPreviewLimit
	}
	return &Service{
		registry:     registry,
		locker:       locker,
		limiter:      NewIngestLimiter(opts.MaxConcurrent, opts.MaxWait),
		validate:     validator.New(),
		timeout:      opts.Timeout,
		previewLimit: opts.PreviewLimit,
	}
}

// IngestRequest identifies one upload of a monthly export.
type IngestRequest struct {
	TenantID int64  `validate:"gt=0"`
	FileName string `validate:"required,max=255"`
	Month    int    `validate:"min=1,max=12"`
	Year     int    `validate:"min=2000,max=2100"`
	// Facility optionally restricts the import to one assigned facility.
	Facility string `validate:"max=150"`
}

func (r IngestRequest) period() Period {
	return Period{Month: r.Month, Year: r.Year}
}

func (s *Service) validateRequest(req IngestRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fe.Field() + " " + fe.Tag()
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
}

// Ingest reads a workbook and reconciles it into the registry for the
// requested period. The workbook is parsed before anything is written; an
// unreadable file leaves no trace. Once parsed, the run is tracked by an
// upload batch that ends completed or error. The reconciliation commits
// atomically.
func (s *Service) Ingest(ctx context.Context, req IngestRequest, r io.Reader) (*IngestResult, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := logging.WithFields(ctx, "period", req.period().String(), "file", req.FileName)

	unlock, err := s.locker.Lock(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release tenant lock", "error", err)
		}
	}()

	sheets, err := ReadWorkbook(r)
	if err != nil {
		return nil, err
	}
	rows, err := ExtractWorkbook(ctx, sheets, log)
	if err != nil {
		return nil, fmt.Errorf("extract rows: %w", err)
	}
	groups := Unify(rows, req.Facility)

	batch := newBatch(req)
	if err := s.registry.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	log = log.With("batch_id", batch.ID)
	log.Info("ingestion started", "sheets", len(sheets), "rows", len(rows), "identities", len(groups))

	summary, err := s.reconcile(ctx, req, groups)
	if err != nil {
		batch.State = BatchError
		batch.ErrorMessage = batchErrorMessage(err)
		if ferr := s.registry.FinishBatch(context.WithoutCancel(ctx), batch); ferr != nil {
			log.Error("mark batch failed", "error", ferr)
		}
		log.Error("ingestion failed", "error", err)
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	batch.State = BatchCompleted
	batch.TotalVisits = summary.TotalVisits
	batch.NewChildren = summary.NewChildren
	batch.ExistingChildren = summary.ExistingChildren
	if err := s.registry.FinishBatch(ctx, batch); err != nil {
		// The reconciliation is committed; only the batch bookkeeping is stale.
		log.Error("finish batch", "error", err)
	}

	log.Info("ingestion completed",
		"total_visits", summary.TotalVisits,
		"new_children", summary.NewChildren,
		"existing_children", summary.ExistingChildren,
	)
	return &IngestResult{
		BatchID:  batch.ID,
		FileName: req.FileName,
		State:    BatchCompleted,
		Summary:  summary,
	}, nil
}

// reconcile plans and applies groups inside one registry transaction.
func (s *Service) reconcile(ctx context.Context, req IngestRequest, groups []ChildGroup) (Summary, error) {
	if len(groups) == 0 {
		return Summary{}, nil
	}

	var summary Summary
	err := s.registry.WithTx(ctx, func(tx RegistryTx) error {
		snap, err := loadSnapshot(ctx, tx, req.TenantID, req.period(), groups)
		if err != nil {
			return err
		}
		plan := PlanReconciliation(groups, req.period(), req.TenantID, snap)
		if err := applyPlan(ctx, tx, plan); err != nil {
			return err
		}
		summary = plan.Summary
		return nil
	})
	return summary, err
}

// Preview projects the identities in a workbook without touching the registry.
func (s *Service) Preview(ctx context.Context, fileName string, r io.Reader) (PreviewResult, error) {
	res, err := PreviewWorkbook(ctx, r, s.previewLimit, logging.FromContext(ctx))
	if err != nil {
		return PreviewResult{}, err
	}
	res.FileName = fileName
	return res, nil
}

// historyLimit caps the batches returned by History.
const historyLimit = 100

// History lists the tenant's upload batches, newest first.
func (s *Service) History(ctx context.Context, tenantID int64) ([]UploadBatch, error) {
	batches, err := s.registry.ListBatches(ctx, tenantID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// ErrInvalidPeriod is returned for report periods outside 1-12 / 2000-2100.
var ErrInvalidPeriod = errors.New("invalid period")

// ExportReport writes the monthly xlsx report of a tenant to w.
func (s *Service) ExportReport(ctx context.Context, w io.Writer, tenantID int64, period Period, f ReportFilter) error {
	if period.Month < 1 || period.Month > 12 || period.Year < 2000 || period.Year > 2100 {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	if f.Status != "" {
		f.Status = VisitStatus(strings.ToLower(strings.TrimSpace(string(f.Status))))
	}
	if f.Facility != "" {
		f.Facility, _ = NormalizeFacility(f.Facility)
	}
	records, err := s.registry.PeriodVisits(ctx, tenantID, period, f)
	if err != nil {
		return fmt.Errorf("period visits: %w", err)
	}
	return WriteReport(w, records)
}

// LimiterStatus reports ingestion slot usage.
func (s *Service) LimiterStatus() IngestLimiterStatus {
	return s.limiter.Status()
}

// WaitForIngestions blocks until running ingestions finish or ctx ends.
func (s *Service) WaitForIngestions(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
