package distill

import (
	"context"

	json "github.com/goccy/go-json"
)

// Create resolves a schema against raw input and returns the finished
// instance.
//
// The error is Issues for data failures, *ConfigError for schema or
// execution defects (cycles, oscillation, iteration exhaustion), or the
// context's error on cancellation.
func Create(ctx context.Context, s *Schema, in Input, opts ...CreateOpt) (map[string]any, error) {
	inst, _, err := create(ctx, s, in, opts)
	return inst, err
}

// CreateWithReport is Create plus execution metadata. The report is
// populated as far as execution got even when the error is non-nil.
func CreateWithReport(ctx context.Context, s *Schema, in Input, opts ...CreateOpt) (Report, error) {
	inst, r, err := create(ctx, s, in, opts)
	rep := Report{Instance: inst}
	if r != nil {
		rep.InstanceID = r.id
		rep.Schema = r.schema.name
		rep.Strategy = r.strategy
		rep.Iterations = r.iterations
		rep.Converged = r.converged
		rep.Phase = r.phase
		rep.FieldPhases = r.fieldPhases()
	}
	if iss, ok := AsIssues(err); ok {
		rep.Issues = iss
	}
	return rep, err
}

// CreateInto runs Create and decodes the instance into T through a JSON
// round trip, so struct tags drive the mapping.
func CreateInto[T any](ctx context.Context, s *Schema, in Input, opts ...CreateOpt) (T, error) {
	var zero T
	inst, err := Create(ctx, s, in, opts...)
	if err != nil {
		return zero, err
	}
	b, err := json.Marshal(inst)
	if err != nil {
		return zero, Issues{{Code: CodeParseError, Message: err.Error(), Cause: err}}
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, Issues{{Code: CodeParseError, Message: err.Error(), Cause: err}}
	}
	return out, nil
}

func create(ctx context.Context, s *Schema, in Input, opts []CreateOpt) (map[string]any, *run, error) {
	if s == nil {
		return nil, nil, configf(ErrConfig, "nil schema")
	}
	if in == nil {
		return nil, nil, configf(ErrConfig, "nil input")
	}
	opt := normalizeCreateOpt(opts)
	raw, err := in.Decode()
	if err != nil {
		return nil, nil, Issues{{Code: CodeParseError, Message: err.Error(), Cause: err}}
	}
	return executeRun(ctx, s, raw, opt, newInstanceID(), nil, 0)
}

// Report describes one create call.
type Report struct {
	Instance    map[string]any
	InstanceID  string
	Schema      string
	Strategy    Strategy
	Iterations  int
	Converged   bool
	Phase       InstancePhase
	FieldPhases map[string]FieldPhase
	// Issues mirrors the returned error when it is data-level.
	Issues Issues
}
