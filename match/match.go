// Package match scores an input value against a candidate set and resolves
// it to the best candidate's value, refusing to guess when the evidence is
// thin. A below-threshold result fails with a no_match issue carrying every
// candidate key, and a near-tie fails with an ambiguous_match issue naming
// the contenders, so a caller or a model retry loop has what it needs to
// repair the input.
package match

import (
	"fmt"

	"github.com/ferrant/distill"
)

// Strategy selects how inputs are compared to candidate keys.
type Strategy int

const (
	Exact    Strategy = iota // byte-for-byte equality
	Fold                     // equality after NFC normalization and case folding
	Fuzzy                    // normalized edit-distance similarity, folded
	Contains                 // folded substring
	Prefix                   // folded prefix
	Suffix                   // folded suffix
	Numeric                  // numeric equality within Tolerance
	Custom                   // Comparator decides
)

// Candidate pairs a comparable key with the value a successful match
// resolves to. The value may be any object; matching replaces the input
// with it wholesale.
type Candidate struct {
	Key   string
	Value any
}

// Keys builds candidates whose values are the keys themselves.
func Keys(keys ...string) []Candidate {
	out := make([]Candidate, len(keys))
	for i, k := range keys {
		out[i] = Candidate{Key: k, Value: k}
	}
	return out
}

// Project builds candidates from arbitrary objects through a key selector.
func Project[T any](items []T, key func(T) string) []Candidate {
	out := make([]Candidate, len(items))
	for i, it := range items {
		out[i] = Candidate{Key: key(it), Value: it}
	}
	return out
}

// Comparator scores an input against one candidate key in [0,1].
type Comparator func(input, key string) float64

// DefaultThreshold applies when Config.Threshold is zero.
const DefaultThreshold = 0.8

// Config tunes a match. The zero value means exact matching.
type Config struct {
	Strategy Strategy
	// Threshold is the minimum winning score. Zero means DefaultThreshold.
	// Binary strategies score 0 or 1, so any threshold in (0,1] demands a
	// hit.
	Threshold float64
	// Ambiguity is the margin under the best score within which a second
	// candidate makes the result ambiguous. Zero tolerates exact ties only.
	Ambiguity float64
	// Tolerance is the absolute difference treated as equal under Numeric.
	Tolerance float64
	// Digits rounds both sides to this many decimal places before a Numeric
	// comparison. Zero disables rounding.
	Digits int
	// Synonyms maps alternate spellings to candidate keys and is consulted
	// before any scoring.
	Synonyms map[string]string
	// Comparator serves the Custom strategy.
	Comparator Comparator
}

// Result describes a successful match.
type Result struct {
	Candidate Candidate
	Score     float64
}

// Best scores every candidate against the input and returns the single
// winner. It never picks silently: a best score below the threshold or a
// near-tie comes back as distill.Issues.
func Best(input any, candidates []Candidate, cfg Config) (Result, error) {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	text := inputText(input)
	if mapped, ok := lookupSynonym(cfg.Synonyms, text); ok {
		text = mapped
	}

	if len(candidates) == 0 {
		return Result{}, noMatchIssue(input, candidates, threshold, 0)
	}

	scores := make([]float64, len(candidates))
	best := -1.0
	bestIdx := 0
	for i, c := range candidates {
		s := score(cfg, text, input, c.Key)
		scores[i] = s
		if s > best {
			best = s
			bestIdx = i
		}
	}

	if best < threshold {
		return Result{}, noMatchIssue(input, candidates, threshold, best)
	}

	var ties []Candidate
	for i, c := range candidates {
		if scores[i] >= best-cfg.Ambiguity {
			ties = append(ties, c)
		}
	}
	if len(ties) > 1 {
		keys := make([]any, len(ties))
		for i, c := range ties {
			keys[i] = c.Key
		}
		return Result{}, distill.Issues{{
			Code:     distill.CodeAmbiguousMatch,
			Message:  fmt.Sprintf("%d candidates tie for %v", len(ties), input),
			Value:    input,
			Examples: keys,
			Params:   map[string]any{"score": best, "ambiguity": cfg.Ambiguity},
		}}
	}

	return Result{Candidate: candidates[bestIdx], Score: best}, nil
}

func score(cfg Config, text string, input any, key string) float64 {
	switch cfg.Strategy {
	case Exact:
		if text == key {
			return 1
		}
		return 0
	case Fold:
		if foldKey(text) == foldKey(key) {
			return 1
		}
		return 0
	case Fuzzy:
		return similarity(foldKey(text), foldKey(key))
	case Contains:
		return binary(containsFold(text, key))
	case Prefix:
		return binary(prefixFold(text, key))
	case Suffix:
		return binary(suffixFold(text, key))
	case Numeric:
		return numericScore(input, key, cfg.Tolerance, cfg.Digits)
	case Custom:
		if cfg.Comparator == nil {
			return 0
		}
		return cfg.Comparator(text, key)
	default:
		return 0
	}
}

func binary(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// lookupSynonym tries the raw spelling first, then the folded one.
func lookupSynonym(syn map[string]string, text string) (string, bool) {
	if len(syn) == 0 {
		return "", false
	}
	if mapped, ok := syn[text]; ok {
		return mapped, true
	}
	folded := foldKey(text)
	for alt, mapped := range syn {
		if foldKey(alt) == folded {
			return mapped, true
		}
	}
	return "", false
}

func noMatchIssue(input any, candidates []Candidate, threshold, best float64) distill.Issues {
	keys := make([]any, len(candidates))
	for i, c := range candidates {
		keys[i] = c.Key
	}
	return distill.Issues{{
		Code:     distill.CodeNoMatch,
		Message:  fmt.Sprintf("no candidate matches %v", input),
		Value:    input,
		Examples: keys,
		Params:   map[string]any{"threshold": threshold, "best": best},
	}}
}
