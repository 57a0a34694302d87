package importer

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/cleared-dev/txnimport/internal/model"
)

// DefaultPayeeMaxLength caps sanitized payee names, in runes.
const DefaultPayeeMaxLength = 200

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText returns data as UTF-8 with line endings normalized to \n.
// Legacy exports that are not valid UTF-8 are decoded as Windows-1252.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	var s string
	if utf8.Valid(data) {
		s = string(data)
	} else if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
		s = string(decoded)
	} else {
		s = strings.ToValidUTF8(string(data), "�")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Sanitize strips control characters, collapses runs of whitespace and caps
// the result at limit runes (no cap when limit <= 0).
func Sanitize(s string, limit int) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r), r == utf8.RuneError:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := b.String()
	if limit > 0 && utf8.RuneCountInString(out) > limit {
		out = strings.TrimSpace(string([]rune(out)[:limit]))
	}
	return out
}

// NormalizeHeader folds case, whitespace and punctuation so that
// "Transaction_Date", " transaction date " and "Transaction-Date" compare equal.
func NormalizeHeader(h string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// NormalizeStatus maps a vendor cleared indicator to cleared or pending.
func NormalizeStatus(s string) model.TxnStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cleared", "posted", "reconciled", "complete", "completed", "settled",
		"c", "x", "r", "y", "yes", "true", "*":
		return model.TxnCleared
	}
	return model.TxnPending
}

// delimiterCandidates in tie-break order.
var delimiterCandidates = []rune{',', '\t', ';', '|'}

// SniffDelimiter picks the field delimiter that splits the leading lines of
// text most consistently. Quoted sections are ignored. Defaults to comma.
func SniffDelimiter(text string) rune {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 10 {
			break
		}
	}
	if len(lines) == 0 {
		return ','
	}

	best, bestScore := ',', 0
	for _, d := range delimiterCandidates {
		counts := make(map[int]int)
		for _, line := range lines {
			counts[countOutsideQuotes(line, d)]++
		}
		// Score: the most common non-zero per-line count, weighted by how
		// many lines agree on it.
		score := 0
		for n, freq := range counts {
			if n == 0 {
				continue
			}
			if s := freq*100 + n; s > score {
				score = s
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

// readDelimited splits text into records with a forgiving CSV reader.
func readDelimited(text string, delim rune) ([][]string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

func isBlankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
