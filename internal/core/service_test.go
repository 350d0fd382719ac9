package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

type testSheet struct {
	name string
	rows [][]any
}

func buildWorkbook(t *testing.T, sheets ...testSheet) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				t.Fatalf("write row: %v", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

var summarySheet = testSheet{
	name: "Resumen",
	rows: [][]any{
		{"RESUMEN MENSUAL"},
		{"Total niños", 3},
	},
}

var registrySheet = testSheet{
	name: "Padron",
	rows: [][]any{
		{"PADRON NOMINAL DE NIÑOS"},
		{"N°", "DNI", "APELLIDOS Y NOMBRES", "FECHA DE NACIMIENTO", "EESS", "HISTORIA CLINICA", "NRO VISITAS", "ESTADO"},
		{1, "71234567", "ana torres", 43586, "P.S. San Juan", "", 1, "Encontrado"},
		{2, 1234567, "luis rojas", "03/05/2020", "PS SAN JUAN", "", 2, "No encontrado"},
		{3, "", "maria paz", "", "San Juan", "555", 1, ""},
	},
}

func mayRequest() IngestRequest {
	return IngestRequest{TenantID: 1, FileName: "mayo.xlsx", Month: 5, Year: 2024}
}

func TestService_Ingest(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	svc := NewService(reg, nil, Options{})
	workbook := buildWorkbook(t, summarySheet, registrySheet)

	res, err := svc.Ingest(ctx, mayRequest(), bytes.NewReader(workbook))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	want := Summary{TotalVisits: 4, ExistingChildren: 0, NewChildren: 3}
	if res.Summary != want {
		t.Errorf("Summary = %+v, want %+v", res.Summary, want)
	}
	if res.State != BatchCompleted || res.FileName != "mayo.xlsx" {
		t.Errorf("result = %+v", res)
	}
	if children, visits := reg.counts(); children != 3 || visits != 4 {
		t.Errorf("registry holds %d children and %d visits, want 3 and 4", children, visits)
	}

	batches, err := svc.History(ctx, 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("History() = %d batches, want 1", len(batches))
	}
	b := batches[0]
	if b.ID != res.BatchID || b.State != BatchCompleted || b.TotalVisits != 4 || b.NewChildren != 3 {
		t.Errorf("batch = %+v", b)
	}

	t.Run("second run is idempotent", func(t *testing.T) {
		res, err := svc.Ingest(ctx, mayRequest(), bytes.NewReader(workbook))
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		want := Summary{TotalVisits: 4, ExistingChildren: 3, NewChildren: 0}
		if res.Summary != want {
			t.Errorf("Summary = %+v, want %+v", res.Summary, want)
		}
		if children, visits := reg.counts(); children != 3 || visits != 4 {
			t.Errorf("registry holds %d children and %d visits, want 3 and 4", children, visits)
		}
		batches, _ := svc.History(ctx, 1)
		if len(batches) != 2 || batches[0].ID != res.BatchID {
			t.Errorf("History() should list the newest batch first")
		}
	})

	t.Run("other period adds visits only", func(t *testing.T) {
		req := mayRequest()
		req.Month = 6
		res, err := svc.Ingest(ctx, req, bytes.NewReader(workbook))
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if res.Summary.ExistingChildren != 3 {
			t.Errorf("ExistingChildren = %d, want 3", res.Summary.ExistingChildren)
		}
		if children, visits := reg.counts(); children != 3 || visits != 8 {
			t.Errorf("registry holds %d children and %d visits, want 3 and 8", children, visits)
		}
	})

	t.Run("other tenant is isolated", func(t *testing.T) {
		req := mayRequest()
		req.TenantID = 2
		res, err := svc.Ingest(ctx, req, bytes.NewReader(workbook))
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if res.Summary.NewChildren != 3 {
			t.Errorf("NewChildren = %d, want 3", res.Summary.NewChildren)
		}
	})
}

func TestService_Ingest_StoredValues(t *testing.T) {
	reg := newMemRegistry()
	svc := NewService(reg, nil, Options{})

	if _, err := svc.Ingest(context.Background(), mayRequest(), bytes.NewReader(buildWorkbook(t, registrySheet))); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	byKey := make(map[string]Child)
	for _, c := range reg.children {
		byKey[c.DocumentKey] = c
	}

	ana, ok := byKey["71234567"]
	if !ok {
		t.Fatal("child 71234567 not stored")
	}
	if ana.Name != "ANA TORRES" || ana.Facility != "SAN JUAN" {
		t.Errorf("ana = %+v", ana)
	}
	if ana.BirthDate == nil || !ana.BirthDate.Equal(time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ana birth date = %v, want 2019-05-01", ana.BirthDate)
	}
	if _, ok := byKey["01234567"]; !ok {
		t.Error("numeric document was not padded to eight digits")
	}
	if _, ok := byKey["HC-555"]; !ok {
		t.Error("clinical record fallback key not stored")
	}

	for _, v := range reg.visits {
		if !v.Date.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("visit date = %v, want first day of the period", v.Date)
		}
		if byKey["01234567"].ID == v.ChildID && v.Status != StatusNotFound {
			t.Errorf("luis visit status = %q, want not_found", v.Status)
		}
	}
}

func TestService_Ingest_FacilityFilter(t *testing.T) {
	reg := newMemRegistry()
	svc := NewService(reg, nil, Options{})

	sheet := testSheet{name: "Padron", rows: [][]any{
		{"DNI", "NOMBRES", "EESS"},
		{"11111111", "ANA", "P.S. SAN JUAN"},
		{"22222222", "LUIS", "C.S. MORALES"},
	}}
	req := mayRequest()
	req.Facility = "Puesto de Salud San Juan"

	res, err := svc.Ingest(context.Background(), req, bytes.NewReader(buildWorkbook(t, sheet)))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Summary.NewChildren != 1 {
		t.Errorf("NewChildren = %d, want 1", res.Summary.NewChildren)
	}
}

func TestService_Ingest_NoTables(t *testing.T) {
	reg := newMemRegistry()
	svc := NewService(reg, nil, Options{})

	res, err := svc.Ingest(context.Background(), mayRequest(), bytes.NewReader(buildWorkbook(t, summarySheet)))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Summary != (Summary{}) || res.State != BatchCompleted {
		t.Errorf("result = %+v, want a completed empty run", res)
	}
	if reg.txCount != 0 {
		t.Errorf("empty run opened %d transactions", reg.txCount)
	}
	if len(reg.batches) != 1 {
		t.Errorf("batches = %d, want 1", len(reg.batches))
	}
}

func TestService_Ingest_UnreadableWorkbook(t *testing.T) {
	reg := newMemRegistry()
	svc := NewService(reg, nil, Options{})

	_, err := svc.Ingest(context.Background(), mayRequest(), strings.NewReader("nombre;dni\nana;123"))
	if !errors.Is(err, ErrUnreadableWorkbook) {
		t.Fatalf("Ingest() error = %v, want ErrUnreadableWorkbook", err)
	}
	if len(reg.batches) != 0 || reg.txCount != 0 {
		t.Errorf("unreadable upload touched the registry: %d batches, %d transactions", len(reg.batches), reg.txCount)
	}
}

func TestService_Ingest_FailureRollsBack(t *testing.T) {
	reg := newMemRegistry()
	reg.failCreateVisits = errors.New("value too long for type character varying(150)")
	svc := NewService(reg, nil, Options{})

	_, err := svc.Ingest(context.Background(), mayRequest(), bytes.NewReader(buildWorkbook(t, registrySheet)))
	if err == nil {
		t.Fatal("Ingest() should fail")
	}
	if children, visits := reg.counts(); children != 0 || visits != 0 {
		t.Errorf("failed run left %d children and %d visits", children, visits)
	}
	if len(reg.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(reg.batches))
	}
	b := reg.batches[0]
	if b.State != BatchError || !strings.Contains(b.ErrorMessage, "value too long") {
		t.Errorf("batch = %+v, want error state with message", b)
	}
	if got := MapError(err).Code; got != "DB008" {
		t.Errorf("MapError code = %q, want DB008", got)
	}
}

func TestService_Ingest_InvalidRequest(t *testing.T) {
	svc := NewService(newMemRegistry(), nil, Options{})

	tests := []struct {
		name   string
		mutate func(*IngestRequest)
	}{
		{"month zero", func(r *IngestRequest) { r.Month = 0 }},
		{"month thirteen", func(r *IngestRequest) { r.Month = 13 }},
		{"year too old", func(r *IngestRequest) { r.Year = 1999 }},
		{"missing tenant", func(r *IngestRequest) { r.TenantID = 0 }},
		{"missing file name", func(r *IngestRequest) { r.FileName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mayRequest()
			tt.mutate(&req)
			_, err := svc.Ingest(context.Background(), req, strings.NewReader(""))
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Ingest() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestService_Ingest_TenantBusy(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	svc := NewService(newMemRegistry(), locker, Options{})
	workbook := buildWorkbook(t, registrySheet)

	unlock, err := locker.Lock(ctx, 1)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if _, err := svc.Ingest(ctx, mayRequest(), bytes.NewReader(workbook)); !errors.Is(err, ErrTenantBusy) {
		t.Fatalf("Ingest() error = %v, want ErrTenantBusy", err)
	}

	other := mayRequest()
	other.TenantID = 2
	if _, err := svc.Ingest(ctx, other, bytes.NewReader(workbook)); err != nil {
		t.Errorf("other tenant blocked: %v", err)
	}

	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	if _, err := svc.Ingest(ctx, mayRequest(), bytes.NewReader(workbook)); err != nil {
		t.Errorf("Ingest() after unlock error = %v", err)
	}
}

func TestService_Preview(t *testing.T) {
	// A nil registry proves preview never reaches storage.
	svc := NewService(nil, nil, Options{PreviewLimit: 2})

	res, err := svc.Preview(context.Background(), "mayo.xlsx", bytes.NewReader(buildWorkbook(t, summarySheet, registrySheet)))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if res.FileName != "mayo.xlsx" || res.TotalFound != 3 || len(res.Records) != 2 {
		t.Fatalf("Preview() = %+v", res)
	}

	ana := res.Records[0]
	if ana.DocumentKey != "71234567" || ana.Name != "ANA TORRES" || ana.BirthDate != "01/05/2019" {
		t.Errorf("first record = %+v", ana)
	}
	if ana.AssignedFacility != "SAN JUAN" || ana.Status != "ENCONTRADO" || ana.MotherName != placeholder {
		t.Errorf("first record = %+v", ana)
	}

	luis := res.Records[1]
	if luis.DocumentKey != "01234567" || luis.BirthDate != "03/05/2020" || luis.Status != "NO ENCONTRADO" {
		t.Errorf("second record = %+v", luis)
	}
}

func TestService_Preview_Unreadable(t *testing.T) {
	svc := NewService(nil, nil, Options{})
	if _, err := svc.Preview(context.Background(), "x.xlsx", strings.NewReader("garbage")); !errors.Is(err, ErrUnreadableWorkbook) {
		t.Errorf("Preview() error = %v, want ErrUnreadableWorkbook", err)
	}
}

func TestService_ExportReport(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	svc := NewService(reg, nil, Options{})
	if _, err := svc.Ingest(ctx, mayRequest(), bytes.NewReader(buildWorkbook(t, registrySheet))); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	may := Period{Month: 5, Year: 2024}

	t.Run("full report", func(t *testing.T) {
		var buf bytes.Buffer
		if err := svc.ExportReport(ctx, &buf, 1, may, ReportFilter{}); err != nil {
			t.Fatalf("ExportReport() error = %v", err)
		}
		rows := readReport(t, buf.Bytes())
		if len(rows) != 4 {
			t.Fatalf("report rows = %d, want header plus 3", len(rows))
		}
		luis := rows[2]
		if luis[0] != "01234567" || luis[len(luis)-1] != "2" {
			t.Errorf("luis row = %v, want two visits", luis)
		}
	})

	t.Run("status filter", func(t *testing.T) {
		var buf bytes.Buffer
		if err := svc.ExportReport(ctx, &buf, 1, may, ReportFilter{Status: "NOT_FOUND"}); err != nil {
			t.Fatalf("ExportReport() error = %v", err)
		}
		if rows := readReport(t, buf.Bytes()); len(rows) != 2 {
			t.Errorf("report rows = %d, want header plus 1", len(rows))
		}
	})

	t.Run("facility filter is canonicalized", func(t *testing.T) {
		var buf bytes.Buffer
		if err := svc.ExportReport(ctx, &buf, 1, may, ReportFilter{Facility: "P.S. San Juan"}); err != nil {
			t.Fatalf("ExportReport() error = %v", err)
		}
		if rows := readReport(t, buf.Bytes()); len(rows) != 4 {
			t.Errorf("report rows = %d, want header plus 3", len(rows))
		}
	})

	t.Run("empty period", func(t *testing.T) {
		err := svc.ExportReport(ctx, &bytes.Buffer{}, 1, Period{Month: 1, Year: 2024}, ReportFilter{})
		if !errors.Is(err, ErrEmptyReport) {
			t.Errorf("ExportReport() error = %v, want ErrEmptyReport", err)
		}
	})

	t.Run("invalid period", func(t *testing.T) {
		err := svc.ExportReport(ctx, &bytes.Buffer{}, 1, Period{Month: 13, Year: 2024}, ReportFilter{})
		if !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("ExportReport() error = %v, want ErrInvalidPeriod", err)
		}
	})
}

func readReport(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(ReportSheet)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	return rows
}

func TestService_WaitForIngestions(t *testing.T) {
	svc := NewService(newMemRegistry(), nil, Options{MaxConcurrent: 2})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := svc.WaitForIngestions(ctx); err != nil {
		t.Errorf("WaitForIngestions() with no runs = %v", err)
	}
	if st := svc.LimiterStatus(); st.Active != 0 {
		t.Errorf("LimiterStatus().Active = %d, want 0", st.Active)
	}
}
