package core

import "strings"

// MaxHeaderSearchRows is how deep into a worksheet the header row may sit.
const MaxHeaderSearchRows = 30

var (
	headerTriggerWords = []string{"DNI", "DOCUMENTO", "NOMBRES", "PACIENTE", "NIÑO", "NIÑOS", "APELLIDOS", "IDENTIDAD"}
	headerConfirmWords = []string{"DNI", "NOMBRE", "DOCUMENTO", "APELLIDO"}
)

// DetectHeaderRow returns the index of the first row within
// MaxHeaderSearchRows that looks like the header of a child table: it must
// mention a trigger word and a confirmation word. Cover sheets, summaries and
// pivot tabs have no such row and yield false.
func DetectHeaderRow(rows [][]string) (int, bool) {
	limit := min(len(rows), MaxHeaderSearchRows)
	for i := 0; i < limit; i++ {
		text := rowText(rows[i])
		if text == "" {
			continue
		}
		if containsAny(text, headerTriggerWords) && containsAny(text, headerConfirmWords) {
			return i, true
		}
	}
	return 0, false
}

// rowText joins the non-empty cells of a row, uppercased.
func rowText(row []string) string {
	parts := make([]string, 0, len(row))
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		parts = append(parts, strings.ToUpper(cell))
	}
	return strings.Join(parts, " ")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
