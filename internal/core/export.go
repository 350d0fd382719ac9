package core

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ReportSheet is the name of the worksheet of a monthly report.
const ReportSheet = "Reporte Filtrado"

// ErrEmptyReport is returned when no visit matches the report filters.
var ErrEmptyReport = errors.New("no records match the report filters")

var reportHeaders = []string{
	"DNI Niño", "Nombres y Apellidos", "Fecha Nacimiento", "Rango de Edad", "Dirección",
	"DNI Madre", "Nombre Madre", "Celular Madre", "Actor Social", "Historia Clinica",
	"EESS Asignado", "EESS Atención", "Estado", "Visitas en el Mes",
}

const maxReportColWidth = 50

// reportRow is one child of a monthly report.
type reportRow struct {
	values []any
	visits int
}

// groupReport collapses visit records into one row per child, keeping the
// order of first appearance and counting visits.
func groupReport(records []VisitRecord) []*reportRow {
	index := make(map[int64]*reportRow)
	var rows []*reportRow
	for _, rec := range records {
		if r, ok := index[rec.Child.ID]; ok {
			r.visits++
			continue
		}
		c, v := rec.Child, rec.Visit
		birth := placeholder
		if c.BirthDate != nil {
			birth = c.BirthDate.Format("02/01/2006")
		}
		r := &reportRow{
			values: []any{
				c.DocumentKey, c.Name, birth, orPlaceholder(c.AgeBracket), orPlaceholder(c.Address),
				orPlaceholder(c.MotherDocument), orPlaceholder(c.MotherName), orPlaceholder(c.MotherPhone),
				orPlaceholder(v.SocialActor), orPlaceholder(c.ClinicalRecord),
				orPlaceholder(c.Facility), orPlaceholder(v.Facility), v.Status.Label(),
			},
			visits: 1,
		}
		index[c.ID] = r
		rows = append(rows, r)
	}
	return rows
}

// WriteReport renders records as an xlsx workbook, one row per child.
func WriteReport(w io.Writer, records []VisitRecord) error {
	if len(records) == 0 {
		return ErrEmptyReport
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	widths := make([]int, len(reportHeaders))
	header := make([]any, len(reportHeaders))
	for i, h := range reportHeaders {
		header[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(ReportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range groupReport(records) {
		values := append(r.values, r.visits)
		for j, v := range values {
			widths[j] = max(widths[j], utf8.RuneCountInString(fmt.Sprint(v)))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ReportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FCE7F3"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(reportHeaders), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(ReportSheet, "A1", last, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(ReportSheet, col, col, float64(min(width+2, maxReportColWidth))); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ReportFileName names the download of a monthly report.
func ReportFileName(period Period, f ReportFilter) string {
	suffix := "completo"
	if f.Search != "" || f.Facility != "" || f.Status != "" || f.OnlyNew {
		suffix = "filtrado"
	}
	return fmt.Sprintf("Reporte_%d_%d_%s.xlsx", period.Month, period.Year, suffix)
}
