package distill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// runConvergent executes the fixed-point strategy: a sourcing-only seed
// pass, then full passes over every field in best-effort order until one
// pass changes nothing. Fields read the latest committed values during a
// pass; the pre-pass snapshot exists to diff against, not to read from.
func (r *run) runConvergent(ctx context.Context) (map[string]any, error) {
	r.phase = InstanceBuilding
	r.seed(ctx)

	maxIter := r.opt.MaxIterations
	if maxIter <= 0 {
		maxIter = r.schema.maxIterations
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	r.phase = InstanceIterating
	var changed []string
	for it := 1; it <= maxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var oscillating map[string][]any
		var err error
		changed, oscillating, err = r.iterate(ctx)
		if err != nil {
			r.phase = InstanceFailed
			return nil, err
		}
		r.iterations = it
		r.log.Debug("iteration",
			slog.String("instance", r.id),
			slog.Int("n", it),
			slog.Int("changed", len(changed)))

		if len(oscillating) > 0 {
			r.phase = InstanceOscillating
			fields := make([]string, 0, len(oscillating))
			for _, name := range r.schema.order {
				if _, ok := oscillating[name]; ok {
					fields = append(fields, name)
				}
			}
			r.log.Warn("oscillation detected",
				slog.String("instance", r.id),
				slog.Any("fields", fields))
			return nil, &ConfigError{
				Kind:    ErrOscillation,
				Msg:     fmt.Sprintf("fields %s repeat earlier values instead of converging", strings.Join(fields, ", ")),
				Fields:  fields,
				History: oscillating,
			}
		}
		if len(changed) == 0 {
			r.phase = InstanceConverged
			r.converged = true
			r.log.Debug("converged",
				slog.String("instance", r.id),
				slog.Int("iterations", it))
			return r.finishConverged(ctx)
		}
	}

	r.phase = InstanceTimedOut
	r.log.Warn("no convergence",
		slog.String("instance", r.id),
		slog.Int("iterations", maxIter),
		slog.Any("fields", changed))
	return nil, &ConfigError{
		Kind:   ErrNoConvergence,
		Msg:    fmt.Sprintf("still changing after %d iterations: %s", maxIter, strings.Join(changed, ", ")),
		Fields: changed,
	}
}

// finishConverged evaluates the stabilized instance: persisting field errors
// first, then the whole-instance checks.
func (r *run) finishConverged(ctx context.Context) (map[string]any, error) {
	if r.opt.FailFast {
		for _, f := range r.schema.fields {
			if st := r.states[f.name]; len(st.errs) > 0 {
				r.phase = InstanceFailed
				return nil, st.errs
			}
		}
	}
	if all := r.collectIssues(); len(all) > 0 {
		r.phase = InstanceFailed
		return nil, all
	}
	if iss := r.runChecks(ctx); len(iss) > 0 {
		r.phase = InstanceFailed
		return nil, iss
	}
	r.phase = InstanceDone
	return r.instance(), nil
}

// seed runs the sourcing prefix of every pipeline once, errors suppressed:
// a sourcing failure here simply leaves the field unset, and the real error
// surfaces in iteration one when the full pipeline runs.
func (r *run) seed(ctx context.Context) {
	for _, f := range r.schema.fields {
		sc := &Scope{run: r, field: f.name, parent: r.parent}
		var current any
		produced := false
		for _, stg := range f.stages {
			if stg.kind != StageSourcing {
				break
			}
			sc.current = current
			v, ok, err := stg.source(ctx, sc)
			if err != nil {
				produced = false
				break
			}
			if ok {
				current = v
				produced = true
			}
		}
		if produced {
			st := r.states[f.name]
			st.value, st.set = current, true
			st.history = append(st.history, current)
			st.phase = FieldSourcing
		}
	}
}

// iterate runs one full pass. Commits happen field by field so later fields
// see earlier results immediately; the diff against the pre-pass snapshot
// happens afterwards. A changed field whose new value equals one of its
// earlier committed values (two or more changes back) is oscillating, and
// the repeating value cycle is reported.
func (r *run) iterate(ctx context.Context) (changed []string, oscillating map[string][]any, err error) {
	type prev struct {
		value any
		set   bool
	}
	before := make(map[string]prev, len(r.states))
	for name, st := range r.states {
		before[name] = prev{value: st.value, set: st.set}
	}

	for _, name := range r.schema.order {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		f := r.schema.byName[name]
		value, set, iss, ferr := r.runField(ctx, f)
		if ferr != nil {
			return nil, nil, ferr
		}
		st := r.states[name]
		if len(iss) > 0 {
			// keep the previous committed value; the error may clear once
			// more dependencies settle
			st.errs = iss
			st.phase = FieldFailed
			continue
		}
		st.errs = nil
		st.value, st.set = value, set
		st.phase = FieldResolved
	}

	for _, name := range r.schema.order {
		st := r.states[name]
		b := before[name]
		same := st.set == b.set && (!st.set || deepEqual(st.value, b.value))
		if same {
			continue
		}
		changed = append(changed, name)

		var committed any
		if st.set {
			committed = st.value
		}
		h := st.history
		for k := len(h) - 2; k >= 0; k-- {
			if deepEqual(committed, h[k]) {
				if oscillating == nil {
					oscillating = make(map[string][]any)
				}
				oscillating[name] = append([]any(nil), h[k:]...)
				break
			}
		}
		st.history = append(st.history, committed)
	}
	return changed, oscillating, nil
}
