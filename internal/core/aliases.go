package core

import "strings"

// fieldAliases binds a canonical field to the header spellings seen in the
// monitoring exports. Order matters twice: fields earlier in the table claim
// columns first, and within a field the first matching column wins.
type fieldAliases struct {
	field   Field
	aliases []string
	// exclude rejects partial matches whose header names someone else.
	exclude func(header string) bool
}

var aliasTable = []fieldAliases{
	{field: FieldMotherDocument, aliases: []string{"DNI MADRE", "DNI DE LA MADRE", "DOCUMENTO MADRE", "DNI MAD"}},
	{field: FieldMotherName, aliases: []string{"NOMBRE MADRE", "NOMBRE DE LA MADRE", "NOMBRES MADRE", "NOMBRE DE MADRE"}},
	{field: FieldMotherPhone, aliases: []string{"CELULAR DE LA MADRE", "CELULAR MADRE", "TELEFONO MADRE", "CELULAR MAD"}},
	{field: FieldSocialActor, aliases: []string{"ACTOR SOCIAL", "PROMOTOR", "ACTOR_SOCIAL", "NOMBRES DEL ACTOR SOCIAL"}},
	{
		field: FieldChildDocument,
		aliases: []string{
			"DOCUMENTO DEL NIÑO", "DOCUMENTO DEL NINO", "DNI NIÑO", "DNI NINO", "DNI",
			"IDENTIDAD", "DOC", "NUMERO DE DOCUMENTO", "NRO DOCUMENTO", "DOCUMENTO",
		},
		exclude: mentionsOtherPerson,
	},
	{
		field: FieldChildName,
		aliases: []string{
			"NOMBRE DEL NIÑO", "NOMBRE DEL NINO", "NOMBRE", "NOMBRES", "PACIENTE",
			"NIÑO", "NIÑA", "NOMBRES COMPLETOS", "NOMBRE NIÑO", "NOMBRE NIÑA",
		},
		exclude: mentionsOtherPerson,
	},
	{field: FieldBirthDate, aliases: []string{"FECHA DE NACIMIENTO", "NACIMIENTO", "F. NAC", "FECHA NAC", "F_NACIMIENTO", "F.NACIMIENTO", "FEC.NAC"}},
	{field: FieldAddress, aliases: []string{"DIRECCION", "DOMICILIO", "DIRECCIÓN", "ZONA", "MANZANA", "SECTOR"}},
	{
		field: FieldAssignedFacility,
		aliases: []string{
			"EESS", "ESTABLECIMIENTO", "CENTRO DE SALUD", "SALUD", "ESTABLECIMIENTO_ASIGNADO",
			"IPRESS", "ESTABLECIMIENTO DE SALUD", "E.E.S.S",
		},
	},
	{field: FieldClinicalRecord, aliases: []string{"HISTORIA", "H.C.", "EXPEDIENTE", "HC", "HISTORIA CLINICA"}},
	{field: FieldStatus, aliases: []string{"ESTADO", "ESTADO VISITA", "CONDICION", "SITUACION", "ESTADO DEL MES"}},
	{field: FieldObservation, aliases: []string{"OBSERVACION", "OBSERVACIÓN", "OBSERVACIONES", "MOTIVO", "COMENTARIO", "OBS", "OBSER"}},
	{field: FieldAgeBracket, aliases: []string{"RANGO DE EDAD", "EDAD", "ETAPA DE VIDA", "RANGO_EDAD"}},
	{
		field: FieldVisitCount,
		aliases: []string{
			"NRO VISITA", "NUMERO DE VISITA", "VISITA", "NRO_VISITA", "TOTAL VISITAS",
			"NUMERO DE VISITAS", "VISITAS",
		},
		exclude: func(h string) bool { return containsAny(h, []string{"FECHA", "ESTADO", "DNI", "MADRE"}) },
	},
	{
		field: FieldAttendanceFacility,
		aliases: []string{
			"ESTABLECIMIENTO DE ATENCION", "EESS ATENCION", "EESS DONDE SE ATIENDE",
			"DONDE SE ATIENDE", "LUGAR DE ATENCION",
		},
	},
}

func mentionsOtherPerson(h string) bool {
	return containsAny(h, []string{"MADRE", "ACTOR", "PADRE"})
}

// normalizeHeader folds a header or alias for comparison: accents removed,
// uppercased, inner whitespace collapsed.
func normalizeHeader(s string) string {
	return strings.Join(strings.Fields(NormalizeText(s)), " ")
}

// shortAliasLen is the length at or below which an alias only matches whole words.
const shortAliasLen = 4

// partialMatch reports whether alias occurs in header. Short aliases must
// match a whole space-delimited word so "HC" does not bind inside "FECHA".
func partialMatch(header, alias string) bool {
	if len([]rune(alias)) > shortAliasLen {
		return strings.Contains(header, alias)
	}
	return header == alias ||
		strings.Contains(" "+header+" ", " "+alias+" ") ||
		strings.HasPrefix(header, alias+" ") ||
		strings.HasSuffix(header, " "+alias)
}
