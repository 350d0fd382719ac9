package core

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// placeholder renders missing optional values in previews and reports.
const placeholder = "---"

// DefaultPreviewLimit bounds the records returned by a preview.
const DefaultPreviewLimit = 50

// PreviewRecord is the human-readable projection of one identity.
type PreviewRecord struct {
	DocumentKey        string `json:"dni_nino"`
	Name               string `json:"nombres"`
	BirthDate          string `json:"fecha_nacimiento"`
	Address            string `json:"direccion"`
	MotherDocument     string `json:"dni_madre"`
	MotherName         string `json:"nombre_madre"`
	MotherPhone        string `json:"celular_madre"`
	SocialActor        string `json:"actor_social"`
	AssignedFacility   string `json:"establecimiento_asignado"`
	ClinicalRecord     string `json:"historia_clinica"`
	AgeBracket         string `json:"rango_edad"`
	Status             string `json:"estado"`
	Observation        string `json:"observacion"`
	AttendanceFacility string `json:"establecimiento_atencion"`
}

// PreviewResult lists the first records of a file and how many identities it holds.
type PreviewResult struct {
	FileName   string          `json:"archivo"`
	TotalFound int             `json:"total_encontrados"`
	Records    []PreviewRecord `json:"registros"`
}

// BuildPreview projects the unique identities of rows, first occurrence
// wins. Records past limit are counted but not returned. Rows without a
// usable identity are skipped.
func BuildPreview(rows []CanonicalRow, limit int) PreviewResult {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	res := PreviewResult{Records: []PreviewRecord{}}
	seen := make(map[string]bool)

	for _, row := range rows {
		key, ok := IdentityKey(row)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		res.TotalFound++
		if len(res.Records) < limit {
			res.Records = append(res.Records, projectRow(row, key))
		}
	}
	return res
}

// projectRow never fails: cells that do not parse render as placeholders.
func projectRow(row CanonicalRow, key string) PreviewRecord {
	name := strings.ToUpper(cleanText(row.Get(FieldChildName), 100))
	if name == "" {
		name = DefaultChildName
	}
	birth := placeholder
	if d := ParseBirthDate(row.Get(FieldBirthDate)); d != nil {
		birth = d.Format("02/01/2006")
	}
	assigned, _ := NormalizeFacility(row.Get(FieldAssignedFacility))
	attending, _ := NormalizeFacility(row.Get(FieldAttendanceFacility))
	motherDoc, _ := NormalizeIdentity(row.Get(FieldMotherDocument))

	return PreviewRecord{
		DocumentKey:        key,
		Name:               name,
		BirthDate:          birth,
		Address:            orPlaceholder(cleanText(row.Get(FieldAddress), 100)),
		MotherDocument:     orPlaceholder(truncateRunes(motherDoc, maxMotherDocumentLen)),
		MotherName:         orPlaceholder(cleanText(row.Get(FieldMotherName), 100)),
		MotherPhone:        orPlaceholder(NormalizePhone(row.Get(FieldMotherPhone))),
		SocialActor:        orPlaceholder(cleanText(row.Get(FieldSocialActor), 50)),
		AssignedFacility:   orPlaceholder(truncateRunes(assigned, 50)),
		ClinicalRecord:     orPlaceholder(cleanText(row.Get(FieldClinicalRecord), maxClinicalRecordLen)),
		AgeBracket:         orPlaceholder(cleanText(row.Get(FieldAgeBracket), maxAgeBracketLen)),
		Status:             NormalizeVisitStatus(row.Get(FieldStatus)).Label(),
		Observation:        orPlaceholder(cleanText(row.Get(FieldObservation), 150)),
		AttendanceFacility: orPlaceholder(truncateRunes(attending, 100)),
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

// PreviewWorkbook reads a workbook and previews it without touching the registry.
func PreviewWorkbook(ctx context.Context, r io.Reader, limit int, log *slog.Logger) (PreviewResult, error) {
	sheets, err := ReadWorkbook(r)
	if err != nil {
		return PreviewResult{}, err
	}
	rows, err := ExtractWorkbook(ctx, sheets, log)
	if err != nil {
		return PreviewResult{}, err
	}
	return BuildPreview(rows, limit), nil
}
