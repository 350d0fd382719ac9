package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field is a canonical column of the visit registry export.
type Field string

const (
	FieldMotherDocument     Field = "dni_madre"
	FieldMotherName         Field = "nombre_madre"
	FieldMotherPhone        Field = "celular_madre"
	FieldSocialActor        Field = "actor_social"
	FieldChildDocument      Field = "dni_nino"
	FieldChildName          Field = "nombres"
	FieldBirthDate          Field = "fecha_nacimiento"
	FieldAddress            Field = "direccion"
	FieldAssignedFacility   Field = "establecimiento_asignado"
	FieldClinicalRecord     Field = "historia_clinica"
	FieldStatus             Field = "estado"
	FieldObservation        Field = "observacion"
	FieldAgeBracket         Field = "rango_edad"
	FieldVisitCount         Field = "nro_visitas"
	FieldAttendanceFacility Field = "establecimiento_atencion"
)

// VisitStatus is the outcome of a home visit.
type VisitStatus string

const (
	StatusFound    VisitStatus = "found"
	StatusNotFound VisitStatus = "not_found"
	StatusPending  VisitStatus = "pending"
)

// Label returns the display text used in previews and reports.
func (s VisitStatus) Label() string {
	switch s {
	case StatusFound:
		return "ENCONTRADO"
	case StatusNotFound:
		return "NO ENCONTRADO"
	default:
		return "PENDIENTE"
	}
}

// Period is a target month of visits.
type Period struct {
	Month int
	Year  int
}

// Date returns the first day of the period, the date every ingested visit carries.
func (p Period) Date() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

func (p Period) String() string {
	return fmt.Sprintf("%02d/%d", p.Month, p.Year)
}

// Child is a registry entry keyed by (tenant, document key).
type Child struct {
	ID             int64
	TenantID       int64
	DocumentKey    string
	Name           string
	BirthDate      *time.Time
	Address        string
	MotherDocument string
	MotherName     string
	MotherPhone    string
	Facility       string
	ClinicalRecord string
	AgeBracket     string
}

// Visit is one home visit of a child in a month.
type Visit struct {
	ID          int64
	ChildID     int64
	TenantID    int64
	Date        time.Time
	Status      VisitStatus
	Observation string
	Facility    string
	SocialActor string
}

// CanonicalRow is one source row projected onto canonical fields.
type CanonicalRow struct {
	Values map[Field]string
	Sheet  int
	Row    int
}

// Get returns the raw value of f, or "" when the column was not mapped.
func (r CanonicalRow) Get(f Field) string {
	return r.Values[f]
}

// Has reports whether the row carried a non-blank value for f.
func (r CanonicalRow) Has(f Field) bool {
	return !isBlank(r.Values[f])
}

// ChildGroup is every row of one identity, in source order.
type ChildGroup struct {
	Key         string
	Rows        []CanonicalRow
	Occurrences int
}

// Primary returns the row that supplies the child's scalar fields.
func (g ChildGroup) Primary() CanonicalRow {
	return g.Rows[0]
}

// BatchState is the lifecycle state of an upload batch.
type BatchState string

const (
	BatchProcessing BatchState = "processing"
	BatchCompleted  BatchState = "completed"
	BatchError      BatchState = "error"
)

// UploadBatch records one ingestion run.
type UploadBatch struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         int64      `json:"tenant_id"`
	FileName         string     `json:"nombre_archivo"`
	Month            int        `json:"mes"`
	Year             int        `json:"anio"`
	TotalVisits      int        `json:"total_registros"`
	NewChildren      int        `json:"nuevos"`
	ExistingChildren int        `json:"existentes"`
	State            BatchState `json:"estado"`
	ErrorMessage     string     `json:"mensaje_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Summary is the outcome of a reconciliation.
type Summary struct {
	TotalVisits      int `json:"total_registros"`
	ExistingChildren int `json:"existentes"`
	NewChildren      int `json:"nuevos"`
}

// IngestResult is returned to the caller of an ingestion run.
type IngestResult struct {
	BatchID  uuid.UUID  `json:"batch_id"`
	FileName string     `json:"nombre_archivo"`
	State    BatchState `json:"estado"`
	Summary
}
