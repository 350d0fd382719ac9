package core

import (
	"context"
	"log/slog"
	"runtime"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// maxVisitOccurrences caps the visits one identity contributes per period.
const maxVisitOccurrences = 10

// clinicalKeyPrefix marks identity keys synthesized from a clinical record id.
const clinicalKeyPrefix = "HC-"

// ExtractWorkbook detects and maps every sheet concurrently. Results are
// stored by sheet index, so the returned rows are always in sheet order and
// then row order regardless of scheduling.
func ExtractWorkbook(ctx context.Context, sheets []Sheet, log *slog.Logger) ([]CanonicalRow, error) {
	perSheet := make([][]CanonicalRow, len(sheets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(len(sheets), runtime.GOMAXPROCS(0))))

	for i := range sheets {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rows, mapping := ExtractRows(sheets[i])
			if mapping == nil {
				log.Debug("sheet skipped, no table found", "sheet", sheets[i].Name)
				return nil
			}
			log.Debug("sheet mapped",
				"sheet", sheets[i].Name,
				"columns", len(mapping),
				"rows", len(rows),
			)
			perSheet[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, rows := range perSheet {
		total += len(rows)
	}
	out := make([]CanonicalRow, 0, total)
	for _, rows := range perSheet {
		out = append(out, rows...)
	}
	return out, nil
}

// maxIdentityKeyLen is the width of the stored document key.
const maxIdentityKeyLen = 64

// IdentityKey resolves the identity of a row: the normalized child document,
// else "HC-" plus the clinical record id as stored. Documents wider than the
// stored key fall through to the clinical record; rows with neither are
// skipped.
func IdentityKey(row CanonicalRow) (string, bool) {
	if key, ok := NormalizeIdentity(row.Get(FieldChildDocument)); ok && fitsKey(key) {
		return key, true
	}
	if hc := cleanText(row.Get(FieldClinicalRecord), maxClinicalRecordLen); hc != "" {
		return clinicalKeyPrefix + hc, true
	}
	return "", false
}

func fitsKey(key string) bool {
	return utf8.RuneCountInString(key) <= maxIdentityKeyLen
}

// Unify groups rows by identity key in first-occurrence order. When facility
// is non-empty only rows assigned to that canonical facility are kept.
func Unify(rows []CanonicalRow, facility string) []ChildGroup {
	want, filter := NormalizeFacility(facility)

	index := make(map[string]int)
	var groups []ChildGroup
	for _, row := range rows {
		if filter {
			got, _ := NormalizeFacility(row.Get(FieldAssignedFacility))
			if got != want {
				continue
			}
		}
		key, ok := IdentityKey(row)
		if !ok {
			continue
		}
		if i, seen := index[key]; seen {
			groups[i].Rows = append(groups[i].Rows, row)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, ChildGroup{Key: key, Rows: []CanonicalRow{row}})
	}

	for i := range groups {
		groups[i].Occurrences = occurrences(groups[i].Rows)
	}
	return groups
}

// occurrences is the larger of the row count and the highest declared visit
// count, capped at maxVisitOccurrences.
func occurrences(rows []CanonicalRow) int {
	n := len(rows)
	for _, r := range rows {
		if declared, ok := parseCount(r.Get(FieldVisitCount)); ok && declared > n {
			n = declared
		}
	}
	return min(n, maxVisitOccurrences)
}
