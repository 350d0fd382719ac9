package core

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ttacon/libphonenumber"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	documentKeyWidth   = 8
	maxTextDocumentLen = 20
	maxPhoneLen        = 15
	phoneRegion        = "PE"
)

// facilityPrefixes are stripped from the start of facility names, first match only.
var facilityPrefixes = []string{
	"PUESTO DE SALUD",
	"CENTRO DE SALUD",
	"P.S.",
	"C.S.",
	"PS.",
	"CS.",
	"PS ",
	"CS ",
}

// isBlank reports values spreadsheets and dataframes emit for empty cells.
func isBlank(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "nan", "none", "null", "nat":
		return true
	}
	return false
}

// IsPlaceholder reports values that must never overwrite stored data.
func IsPlaceholder(v string) bool {
	return isBlank(v) || strings.TrimSpace(v) == placeholder
}

// NormalizeIdentity cleans an identity document. A fraction of only zeros
// ("12345.0") is dropped and plain exponent forms ("7.1234567E7") are
// expanded without touching the digits. Numeric documents shorter than eight
// digits are left-padded with zeros; anything else is kept as text.
func NormalizeIdentity(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if isBlank(v) {
		return "", false
	}

	v = dropZeroFraction(v)
	if expanded, ok := expandExponent(v); ok {
		v = expanded
	}
	if !isDigits(v) {
		return truncateRunes(v, maxTextDocumentLen), true
	}

	if len(v) < documentKeyWidth {
		v = strings.Repeat("0", documentKeyWidth-len(v)) + v
	}
	return v, true
}

// dropZeroFraction removes a single ".0…" suffix that spreadsheets add to
// numeric cells. Leading zeros and signs are left alone.
func dropZeroFraction(v string) string {
	whole, frac, ok := strings.Cut(v, ".")
	if !ok || whole == "" || strings.Contains(frac, ".") {
		return v
	}
	if strings.Trim(frac, "0") != "" {
		return v
	}
	return whole
}

// maxIdentityExponent bounds exponent forms to document-sized numbers.
const maxIdentityExponent = 20

// expandExponent rewrites "D.DDDE+N" as a digit string when the exponent
// covers every fractional digit.
func expandExponent(v string) (string, bool) {
	mant, exp, ok := strings.Cut(strings.ToUpper(v), "E")
	if !ok {
		return "", false
	}
	exp = strings.TrimPrefix(exp, "+")
	if !isDigits(exp) || len(exp) > 2 {
		return "", false
	}
	e, _ := strconv.Atoi(exp)

	whole, frac, _ := strings.Cut(mant, ".")
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return "", false
	}
	if e > maxIdentityExponent || len(frac) > e {
		return "", false
	}
	return whole + frac + strings.Repeat("0", e-len(frac)), true
}

// NormalizeText uppercases, trims and removes diacritics.
func NormalizeText(value string) string {
	// Chains carry buffers; build one per call so sheets can be mapped in parallel.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(stripMarks, strings.TrimSpace(value))
	if err != nil {
		out = strings.TrimSpace(value)
	}
	return strings.ToUpper(out)
}

// NormalizeFacility returns the canonical facility label used to store and
// filter facilities. The same function must run on both sides of a comparison.
func NormalizeFacility(value string) (string, bool) {
	if isBlank(value) {
		return "", false
	}
	v := strings.ToUpper(strings.TrimSpace(value))

	for _, prefix := range facilityPrefixes {
		if strings.HasPrefix(v, prefix) {
			v = strings.TrimSpace(strings.TrimPrefix(v, prefix))
			v = strings.TrimSpace(strings.Trim(v, "-./"))
			break
		}
	}

	if v == "" {
		return "", false
	}
	return v, true
}

// NormalizeVisitStatus classifies a free-text status cell.
func NormalizeVisitStatus(value string) VisitStatus {
	if isBlank(value) {
		return StatusPending
	}
	v := strings.ToLower(strings.TrimSpace(value))

	// "no encontrado" contains "encontrado"; test the negation first.
	if strings.Contains(v, "no") && strings.Contains(v, "encontrado") {
		return StatusNotFound
	}
	if strings.Contains(v, "encontrado") {
		return StatusFound
	}
	return StatusPending
}

// NormalizePhone returns the national number of a Peruvian phone, or the
// cleaned input when it does not parse as one.
func NormalizePhone(value string) string {
	v := strings.TrimSpace(value)
	if isBlank(v) {
		return ""
	}
	v = strings.TrimSuffix(v, ".0")

	if num, err := libphonenumber.Parse(v, phoneRegion); err == nil && libphonenumber.IsValidNumber(num) {
		return libphonenumber.GetNationalSignificantNumber(num)
	}
	return truncateRunes(v, maxPhoneLen)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
