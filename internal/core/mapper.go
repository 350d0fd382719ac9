package core

import "slices"

// ColumnMap binds canonical fields to column indexes of one sheet.
type ColumnMap map[Field]int

type normalizedAliases struct {
	fieldAliases
	folded []string
}

var foldedAliasTable = func() []normalizedAliases {
	out := make([]normalizedAliases, len(aliasTable))
	for i, fa := range aliasTable {
		folded := make([]string, len(fa.aliases))
		for j, a := range fa.aliases {
			folded[j] = normalizeHeader(a)
		}
		out[i] = normalizedAliases{fieldAliases: fa, folded: folded}
	}
	return out
}()

// MapColumns binds header cells to canonical fields in two passes. The exact
// pass binds headers equal to an alias; the partial pass then binds remaining
// fields by containment. A column is bound to at most one field and unmapped
// columns are ignored.
func MapColumns(headers []string) ColumnMap {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = normalizeHeader(h)
	}

	mapping := make(ColumnMap)
	used := make(map[int]bool)

	for _, fa := range foldedAliasTable {
		for idx, h := range folded {
			if used[idx] || h == "" {
				continue
			}
			if slices.Contains(fa.folded, h) {
				mapping[fa.field] = idx
				used[idx] = true
				break
			}
		}
	}

	for _, fa := range foldedAliasTable {
		if _, ok := mapping[fa.field]; ok {
			continue
		}
		for idx, h := range folded {
			if used[idx] || h == "" {
				continue
			}
			if partialBind(fa, h) {
				mapping[fa.field] = idx
				used[idx] = true
				break
			}
		}
	}

	return mapping
}

func partialBind(fa normalizedAliases, header string) bool {
	for _, alias := range fa.folded {
		if !partialMatch(header, alias) {
			continue
		}
		if fa.exclude != nil && fa.exclude(header) {
			continue
		}
		return true
	}
	return false
}

// Project reads the mapped cells of row. It reports false for rows whose
// mapped cells are all blank.
func (m ColumnMap) Project(row []string, sheet, rowIdx int) (CanonicalRow, bool) {
	values := make(map[Field]string, len(m))
	nonBlank := false
	for field, idx := range m {
		if idx >= len(row) {
			continue
		}
		values[field] = row[idx]
		if !isBlank(row[idx]) {
			nonBlank = true
		}
	}
	return CanonicalRow{Values: values, Sheet: sheet, Row: rowIdx}, nonBlank
}

// ExtractRows detects the table in sheet and projects its data rows. A sheet
// without a header row or without any mapped column yields nothing.
func ExtractRows(sheet Sheet) ([]CanonicalRow, ColumnMap) {
	headerIdx, ok := DetectHeaderRow(sheet.Rows)
	if !ok {
		return nil, nil
	}
	mapping := MapColumns(sheet.Rows[headerIdx])
	if len(mapping) == 0 {
		return nil, nil
	}

	var rows []CanonicalRow
	for i := headerIdx + 1; i < len(sheet.Rows); i++ {
		if r, ok := mapping.Project(sheet.Rows[i], sheet.Index, i); ok {
			rows = append(rows, r)
		}
	}
	return rows, mapping
}
