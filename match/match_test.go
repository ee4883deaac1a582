package match_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	distill "github.com/ferrant/distill"
	"github.com/ferrant/distill/match"
)

func TestBest_ExactIsCaseSensitive(t *testing.T) {
	cands := match.Keys("USD", "EUR")

	res, err := match.Best("USD", cands, match.Config{Strategy: match.Exact})
	require.NoError(t, err)
	assert.Equal(t, "USD", res.Candidate.Value)
	assert.Equal(t, 1.0, res.Score)

	_, err = match.Best("usd", cands, match.Config{Strategy: match.Exact})
	iss, ok := distill.AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, distill.CodeNoMatch, iss[0].Code)
}

func TestBest_FoldCollapsesCaseAndNormalization(t *testing.T) {
	cands := match.Keys("Zürich", "Geneva")

	// decomposed u + combining diaeresis, upper-cased
	res, err := match.Best("ZÜRICH", cands, match.Config{Strategy: match.Fold})
	require.NoError(t, err)
	assert.Equal(t, "Zürich", res.Candidate.Value)
}

func TestBest_FuzzyRanksClosestCandidate(t *testing.T) {
	cands := match.Keys("United States", "United Kingdom")

	res, err := match.Best("Untied States", cands, match.Config{Strategy: match.Fuzzy})
	require.NoError(t, err)
	assert.Equal(t, "United States", res.Candidate.Value)
	assert.Greater(t, res.Score, 0.8)
	assert.Less(t, res.Score, 1.0)
}

func TestBest_BelowThresholdListsEveryCandidate(t *testing.T) {
	cands := match.Keys("alpha", "beta", "gamma")

	_, err := match.Best("zzzzzz", cands, match.Config{Strategy: match.Fuzzy})
	iss, ok := distill.AsIssues(err)
	require.True(t, ok)
	require.Len(t, iss, 1)
	assert.Equal(t, distill.CodeNoMatch, iss[0].Code)
	assert.Equal(t, "zzzzzz", iss[0].Value)
	assert.Equal(t, []any{"alpha", "beta", "gamma"}, iss[0].Examples)
	assert.Equal(t, match.DefaultThreshold, iss[0].Params["threshold"])
}

func TestBest_AmbiguityNamesEveryTie(t *testing.T) {
	cands := match.Keys("EUR", "eur", "GBP")

	_, err := match.Best("Eur", cands, match.Config{Strategy: match.Fold})
	iss, ok := distill.AsIssues(err)
	require.True(t, ok)
	require.Len(t, iss, 1)
	assert.Equal(t, distill.CodeAmbiguousMatch, iss[0].Code)
	assert.Equal(t, []any{"EUR", "eur"}, iss[0].Examples)
}

func TestBest_AmbiguityToleranceCatchesNearTies(t *testing.T) {
	cands := match.Keys("color", "colour")

	// exact hit on one spelling, near-hit on the other; a wide tolerance must
	// refuse rather than guess
	_, err := match.Best("color", cands, match.Config{Strategy: match.Fuzzy, Ambiguity: 0.2})
	iss, ok := distill.AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, distill.CodeAmbiguousMatch, iss[0].Code)
	assert.Len(t, iss[0].Examples, 2)

	// zero tolerance keeps only the exact winner
	res, err := match.Best("color", cands, match.Config{Strategy: match.Fuzzy})
	require.NoError(t, err)
	assert.Equal(t, "color", res.Candidate.Value)
}

func TestBest_SynonymsResolveBeforeScoring(t *testing.T) {
	cands := match.Keys("United States", "United Kingdom")
	cfg := match.Config{
		Strategy: match.Exact,
		Synonyms: map[string]string{"USA": "United States", "UK": "United Kingdom"},
	}

	res, err := match.Best("USA", cands, cfg)
	require.NoError(t, err)
	assert.Equal(t, "United States", res.Candidate.Value)

	// the synonym table folds too
	res, err = match.Best("usa", cands, cfg)
	require.NoError(t, err)
	assert.Equal(t, "United States", res.Candidate.Value)
}

func TestBest_NumericToleranceAndRounding(t *testing.T) {
	cands := match.Keys("20", "30")

	res, err := match.Best(19.999, cands, match.Config{Strategy: match.Numeric, Tolerance: 0.01})
	require.NoError(t, err)
	assert.Equal(t, "20", res.Candidate.Value)

	_, err = match.Best(19.999, cands, match.Config{Strategy: match.Numeric})
	_, ok := distill.AsIssues(err)
	assert.True(t, ok, "zero tolerance must miss")

	// rounding to two digits makes 3.14159 equal to the 3.14 candidate
	res, err = match.Best(3.14159, match.Keys("3.14", "2.72"), match.Config{Strategy: match.Numeric, Digits: 2})
	require.NoError(t, err)
	assert.Equal(t, "3.14", res.Candidate.Value)
}

func TestBest_ProjectedCandidatesKeepTheirShape(t *testing.T) {
	type country struct {
		Code string
		Name string
	}
	items := []country{{Code: "US", Name: "United States"}, {Code: "DE", Name: "Germany"}}
	cands := match.Project(items, func(c country) string { return c.Name })

	res, err := match.Best("germany", cands, match.Config{Strategy: match.Fold})
	require.NoError(t, err)
	got, ok := res.Candidate.Value.(country)
	require.True(t, ok, "match must return the projected object, not its key")
	assert.Equal(t, "DE", got.Code)
}

func TestBest_CustomComparator(t *testing.T) {
	cmp := func(input, key string) float64 {
		if strings.HasSuffix(key, input) {
			return 1
		}
		return 0
	}
	res, err := match.Best("son", match.Keys("Johnson", "Smith"), match.Config{Strategy: match.Custom, Comparator: cmp})
	require.NoError(t, err)
	assert.Equal(t, "Johnson", res.Candidate.Value)
}

func TestBest_EmptyCandidateSetIsNoMatch(t *testing.T) {
	_, err := match.Best("anything", nil, match.Config{})
	iss, ok := distill.AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, distill.CodeNoMatch, iss[0].Code)
	assert.Empty(t, iss[0].Examples)
}

func TestStage_ResolvesAgainstRuntimeCandidates(t *testing.T) {
	type ctxVal struct{ currencies []string }

	fromContext := func(_ context.Context, sc *distill.Scope) ([]match.Candidate, error) {
		cv, ok := sc.Context().(ctxVal)
		if !ok {
			return nil, errors.New("no candidate context")
		}
		return match.Keys(cv.currencies...), nil
	}

	s := distill.MustCompile(distill.SchemaConfig{
		Name: "payment",
		Fields: []distill.FieldSpec{{Name: "currency", Stages: []distill.Stage{
			distill.Sourcing("from:currency", func(_ context.Context, sc *distill.Scope) (any, bool, error) {
				v, ok := sc.Raw("currency")
				return v, ok, nil
			}, distill.Raw("currency")),
			match.Stage(fromContext, match.Config{Strategy: match.Fold}),
		}}},
	})

	inst, err := distill.Create(context.Background(), s, distill.JSON([]byte(`{"currency":"usd"}`)),
		distill.CreateOpt{Context: ctxVal{currencies: []string{"USD", "EUR"}}})
	require.NoError(t, err)
	assert.Equal(t, "USD", inst["currency"])

	// a miss surfaces as a field issue carrying the candidate list
	_, err = distill.Create(context.Background(), s, distill.JSON([]byte(`{"currency":"yen"}`)),
		distill.CreateOpt{Context: ctxVal{currencies: []string{"USD", "EUR"}}})
	iss, ok := distill.AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, "/currency", iss[0].Path)
	assert.Equal(t, distill.CodeNoMatch, iss[0].Code)
	assert.Equal(t, []any{"USD", "EUR"}, iss[0].Examples)
}
