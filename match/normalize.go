package match

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// foldKey canonicalizes a string for case-insensitive comparison: NFC first
// so composed and decomposed spellings collapse, then Unicode case folding.
func foldKey(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func containsFold(text, key string) bool {
	return strings.Contains(foldKey(text), foldKey(key)) || strings.Contains(foldKey(key), foldKey(text))
}

func prefixFold(text, key string) bool {
	return strings.HasPrefix(foldKey(key), foldKey(text))
}

func suffixFold(text, key string) bool {
	return strings.HasSuffix(foldKey(key), foldKey(text))
}

// similarity is 1 minus the normalized edit distance between two strings.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	dist := dmp.DiffLevenshtein(diffs)
	return 1 - float64(dist)/float64(longest)
}

// numericScore compares numerically: 1 when both sides parse and sit within
// the tolerance after optional rounding, 0 otherwise.
func numericScore(input any, key string, tolerance float64, digits int) float64 {
	a, okA := toFloat(input)
	b, okB := toFloat(key)
	if !okA || !okB {
		return 0
	}
	if digits > 0 {
		pow := math.Pow(10, float64(digits))
		a = math.Round(a*pow) / pow
		b = math.Round(b*pow) / pow
	}
	if math.Abs(a-b) <= tolerance {
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// inputText renders the input for string comparison. Floats that carry no
// fraction print as integers, so JSON-decoded 42 compares as "42".
func inputText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
