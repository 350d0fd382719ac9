package web

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alysalud/visitas/internal/core"
)

// formOverhead is the slack allowed on top of the file size for the other
// multipart parts and boundaries.
const formOverhead = 1 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
}

// uploadedFile is the "file" part of a multipart request.
type uploadedFile struct {
	name string
	file multipart.File
}

// readUploadForm parses a multipart form whose "file" part is at most
// maxSize bytes. Callers must close the returned file.
func readUploadForm(w http.ResponseWriter, r *http.Request, maxSize int64) (*uploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit %d bytes", errFileTooLarge, maxSize)
		}
		return nil, fmt.Errorf("%w: %v", errNoFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNoFile, err)
	}

	switch {
	case header.Size > maxSize:
		err = fmt.Errorf("%w: %d bytes, limit %d", errFileTooLarge, header.Size, maxSize)
	case !allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))]:
		err = fmt.Errorf("%w: %q", errUnsupportedFile, header.Filename)
	case header.Size == 0:
		err = errEmptyFile
	}
	if err != nil {
		file.Close()
		return nil, err
	}

	return &uploadedFile{name: filepath.Base(header.Filename), file: file}, nil
}

// handlePreview projects the first identities of a workbook. Nothing is
// written to the registry.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	up, err := readUploadForm(w, r, s.cfg.Upload.PreviewMaxFileSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer up.file.Close()
	defer r.MultipartForm.RemoveAll()

	result, err := s.service.Preview(r.Context(), up.name, up.file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// uploadResponse is the body of a successful upload.
type uploadResponse struct {
	Message string `json:"mensaje"`
	*core.IngestResult
}

// handleUpload ingests a workbook for the period given by the "mes" and
// "anio" fields, optionally restricted to the facility in "eess".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	up, err := readUploadForm(w, r, s.cfg.Upload.MaxFileSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer up.file.Close()
	defer r.MultipartForm.RemoveAll()

	month, err := formInt(r, "mes")
	if err != nil {
		respondError(w, r, err)
		return
	}
	year, err := formInt(r, "anio")
	if err != nil {
		respondError(w, r, err)
		return
	}

	req := core.IngestRequest{
		TenantID: tenantID(r),
		FileName: up.name,
		Month:    month,
		Year:     year,
		Facility: strings.TrimSpace(r.FormValue("eess")),
	}

	result, err := s.service.Ingest(r.Context(), req, up.file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	requestLogger(r).Info("upload processed",
		"batch_id", result.BatchID,
		"file", result.FileName,
		"total", result.TotalVisits,
		"new", result.NewChildren,
		"existing", result.ExistingChildren,
	)
	writeJSON(w, http.StatusOK, uploadResponse{
		Message:      "Archivo procesado correctamente",
		IngestResult: result,
	})
}

func formInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s", core.ErrInvalidRequest, name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", core.ErrInvalidRequest, name)
	}
	return n, nil
}

// handleHistory lists the tenant's uploads, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	batches, err := s.service.History(r.Context(), tenantID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if batches == nil {
		batches = []core.UploadBatch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// handleExport downloads the xlsx report of a period. Query parameters:
// search, eess (facility), estado (status) and solo_nuevos.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	year, errYear := strconv.Atoi(chi.URLParam(r, "year"))
	month, errMonth := strconv.Atoi(chi.URLParam(r, "month"))
	if errYear != nil || errMonth != nil {
		respondError(w, r, fmt.Errorf("%w: %s/%s", core.ErrInvalidPeriod,
			chi.URLParam(r, "year"), chi.URLParam(r, "month")))
		return
	}
	period := core.Period{Month: month, Year: year}

	q := r.URL.Query()
	onlyNew, _ := strconv.ParseBool(q.Get("solo_nuevos"))
	filter := core.ReportFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Facility: strings.TrimSpace(q.Get("eess")),
		Status:   core.VisitStatus(strings.TrimSpace(q.Get("estado"))),
		OnlyNew:  onlyNew,
	}

	// The workbook is buffered so a failure can still become a JSON error.
	var buf bytes.Buffer
	if err := s.service.ExportReport(r.Context(), &buf, tenantID(r), period, filter); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, core.ReportFileName(period, filter)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		requestLogger(r).Warn("report write failed", "error", err)
	}
}

// handleHealth reports liveness and ingestion slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"ingestion": s.service.LimiterStatus(),
	})
}
