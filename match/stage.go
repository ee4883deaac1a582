package match

import (
	"context"

	"github.com/ferrant/distill"
)

// Candidates supplies the candidate set at stage run time, typically from
// the caller context or a sibling field.
type Candidates func(ctx context.Context, sc *distill.Scope) ([]Candidate, error)

// Static wraps a fixed candidate set.
func Static(cands []Candidate) Candidates {
	return func(context.Context, *distill.Scope) ([]Candidate, error) {
		return cands, nil
	}
}

// FromField reads the candidate set from another managed field, which must
// hold []Candidate. Declare the dependency with distill.Field when building
// the stage refs.
func FromField(name string) Candidates {
	return func(_ context.Context, sc *distill.Scope) ([]Candidate, error) {
		v, ok := sc.Value(name)
		if !ok {
			return nil, nil
		}
		cands, _ := v.([]Candidate)
		return cands, nil
	}
}

// Stage adapts a match into a coercion stage: the field's current value is
// resolved against the candidates and replaced by the winning candidate's
// value. When several configs are passed the last one wins.
func Stage(source Candidates, cfgs ...Config) distill.Stage {
	var cfg Config
	if len(cfgs) > 0 {
		cfg = cfgs[len(cfgs)-1]
	}
	fn := func(ctx context.Context, sc *distill.Scope, v any) (any, error) {
		cands, err := source(ctx, sc)
		if err != nil {
			return nil, err
		}
		res, err := Best(v, cands, cfg)
		if err != nil {
			return nil, err
		}
		return res.Candidate.Value, nil
	}
	return distill.Coercion("match", fn, distill.Self())
}
