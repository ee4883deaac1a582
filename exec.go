package distill

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const maxDispatchDepth = 16

// run owns one instance-in-progress. Everything here is private to a single
// create call; schemas stay read-only.
type run struct {
	schema *Schema
	raw    any
	ctxVal any
	opt    CreateOpt
	id     string
	log    *slog.Logger
	states map[string]*fieldState
	parent *Scope
	phase  InstancePhase

	strategy   Strategy
	iterations int
	converged  bool
}

type fieldState struct {
	value   any
	set     bool
	phase   FieldPhase
	errs    Issues
	history []any // committed values per iteration, convergent only
}

func newRun(s *Schema, raw any, opt CreateOpt, id string, parent *Scope) *run {
	r := &run{
		schema: s,
		raw:    raw,
		ctxVal: opt.Context,
		opt:    opt,
		id:     id,
		log:    opt.logger(),
		states: make(map[string]*fieldState, len(s.fields)),
		parent: parent,
	}
	for _, f := range s.fields {
		r.states[f.name] = &fieldState{}
	}
	return r
}

// executeRun resolves discriminator dispatch, then hands off to the
// strategy. It returns the finished instance, Issues for data failures, or a
// ConfigError for fatal ones.
func executeRun(ctx context.Context, s *Schema, raw any, opt CreateOpt, id string, parent *Scope, depth int) (map[string]any, *run, error) {
	target, err := dispatchVariant(s, raw, opt, depth)
	if err != nil {
		return nil, nil, err
	}
	if target != s {
		return executeRun(ctx, target, raw, opt, id, parent, depth+1)
	}

	if parent == nil && len(s.parentRefs) > 0 {
		return nil, nil, configf(ErrConfig, "schema %q reads parent fields %v but is not nested under another schema", s.name, s.parentRefs)
	}

	r := newRun(s, raw, opt, id, parent)
	strategy := s.Strategy()
	if opt.Strategy != StrategySchemaDefault {
		strategy = opt.Strategy
	}
	r.strategy = strategy
	if strategy == StrategySinglePass && s.graph.Cyclic() {
		return nil, nil, &ConfigError{
			Kind:  ErrCycle,
			Msg:   strings.Join(s.graph.Cycle(), " -> "),
			Cycle: s.graph.Cycle(),
		}
	}

	r.log.Debug("create start",
		slog.String("instance", r.id),
		slog.String("schema", s.name),
		slog.String("strategy", strategy.String()),
		slog.Int("fields", len(s.fields)))

	var inst map[string]any
	if strategy == StrategySinglePass {
		inst, err = r.runSinglePass(ctx)
	} else {
		inst, err = r.runConvergent(ctx)
	}
	return inst, r, err
}

// dispatchVariant resolves discriminated schemas. Per-call variants override
// schema-declared ones tag by tag.
func dispatchVariant(s *Schema, raw any, opt CreateOpt, depth int) (*Schema, error) {
	mapping := s.variants
	if len(opt.Variants) > 0 {
		merged := make(map[string]*Schema, len(mapping)+len(opt.Variants))
		for tag, v := range mapping {
			merged[tag] = v
		}
		for tag, v := range opt.Variants {
			merged[tag] = v
		}
		mapping = merged
	}
	if s.discriminator == "" || len(mapping) == 0 {
		return s, nil
	}
	if depth >= maxDispatchDepth {
		return nil, configf(ErrConfig, "variant dispatch exceeded depth %d; variants form a loop", maxDispatchDepth)
	}

	key := s.discriminator
	v, ok := rawLookup(raw, []string{key})
	if !ok {
		return nil, Issues{{
			Path:    "/" + key,
			Code:    CodeDiscriminatorMissing,
			Rule:    "discriminator",
			Message: fmt.Sprintf("missing discriminator key %q", key),
		}}
	}
	tag, ok := v.(string)
	if !ok {
		return nil, Issues{{
			Path:    "/" + key,
			Code:    CodeDiscriminatorMissing,
			Rule:    "discriminator",
			Message: fmt.Sprintf("discriminator %q must be a string", key),
			Value:   v,
		}}
	}
	target, ok := mapping[tag]
	if !ok {
		known := make([]any, 0, len(mapping))
		for t := range mapping {
			known = append(known, t)
		}
		sort.Slice(known, func(i, j int) bool { return known[i].(string) < known[j].(string) })
		return nil, Issues{{
			Path:     "/" + key,
			Code:     CodeDiscriminatorUnknown,
			Rule:     "discriminator",
			Message:  fmt.Sprintf("unknown variant %q", tag),
			Value:    tag,
			Examples: known,
		}}
	}
	return target, nil
}

// runField walks one field's pipeline once. It never writes field state; the
// caller commits the result, which keeps parallel execution race-free.
//
// Failure handling order inside the pass: the nearest upstream transform
// with retry budget re-runs first (the downstream error rides along as
// Attempt.Err); once budgets are spent, the nearest unfired catch below the
// failing stage fires; a fired catch also fences retries from reaching back
// past it.
func (r *run) runField(ctx context.Context, f *fieldMeta) (any, bool, Issues, error) {
	sc := &Scope{run: r, field: f.name, parent: r.parent}

	attempts := make(map[int]int) // transform index -> handler invocations
	fired := make(map[int]bool)   // catch index -> fired this pass
	floor := 0                    // retries never cross back over a fired catch
	var retryErr error            // previous downstream failure, for Attempt.Err

	var current any
	produced := false

	i := 0
	for i < len(f.stages) {
		if err := ctx.Err(); err != nil {
			return nil, false, nil, err
		}
		stg := f.stages[i]
		sc.current = current

		var stageErr error
		switch stg.kind {
		case StageSourcing:
			v, ok, err := stg.source(ctx, sc)
			if err != nil {
				stageErr = err
			} else if ok {
				current = v
				produced = true
			}
		case StageCoercion:
			if stg.child != nil {
				v, err := r.runChildStage(ctx, stg, current)
				if err != nil {
					stageErr = err
				} else {
					current = v
					produced = true
				}
			} else {
				v, err := stg.coerce(ctx, sc, current)
				if err != nil {
					stageErr = err
				} else {
					current = v
					produced = true
				}
			}
		case StageValidation:
			stageErr = stg.validate(ctx, sc, current)
		case StageTransform:
			h := r.resolveHandler(stg)
			if h == nil {
				return nil, false, nil, configf(ErrConfig, "field %q: transform %q has no handler; bind one on the stage, the call, or the schema", f.name, stg.name)
			}
			attempts[i]++
			req := ModelRequest{
				Field:      f.name,
				Value:      current,
				Instance:   sc.Snapshot(),
				Context:    r.ctxVal,
				InstanceID: r.id,
				Attempt: Attempt{
					Number: attempts[i],
					Max:    stg.retryBudget() + 1,
					Err:    retryErr,
				},
			}
			v, err := h.Transform(ctx, req)
			retryErr = nil
			if err != nil {
				stageErr = err
			} else {
				current = v
				produced = true
			}
		case StageCatch:
			// nothing to do on the forward path
		}

		if stageErr == nil {
			i++
			continue
		}

		// configuration errors surfacing from a mounted child (oscillation,
		// iteration budget, missing handler) stay fatal; retries and catches
		// only ever see data-level failures.
		if ce, ok := AsConfigError(stageErr); ok {
			return nil, false, nil, ce
		}

		iss := stageIssues(f.name, stg, current, stageErr)

		if t := r.retryTarget(f, i, floor, attempts); t >= 0 {
			retryErr = iss
			r.log.Debug("transform retry",
				slog.String("instance", r.id),
				slog.String("field", f.name),
				slog.String("stage", f.stages[t].name),
				slog.Int("attempt", attempts[t]+1))
			i = t
			continue
		}

		c := nextCatch(f, i, fired)
		if c < 0 {
			return nil, false, iss, nil
		}
		fired[c] = true
		floor = c + 1
		catchStg := f.stages[c]

		if catchStg.repair {
			h := r.resolveHandler(catchStg)
			if h == nil {
				return nil, false, nil, configf(ErrConfig, "field %q: catch %q has no handler; bind one on the stage, the call, or the schema", f.name, catchStg.name)
			}
			req := ModelRequest{
				Field:      f.name,
				Value:      current,
				Instance:   sc.Snapshot(),
				Context:    r.ctxVal,
				InstanceID: r.id,
				Attempt:    Attempt{Number: 1, Max: 1, Err: iss, Repair: true},
			}
			v, err := h.Transform(ctx, req)
			if err != nil {
				return nil, false, append(iss, stageIssues(f.name, catchStg, current, err)...), nil
			}
			current = v
		} else {
			current = catchStg.fallback
		}
		produced = true
		r.resetHistory(f.name)
		r.log.Debug("catch fired",
			slog.String("instance", r.id),
			slog.String("field", f.name),
			slog.String("stage", catchStg.name),
			slog.Bool("repair", catchStg.repair))
		i = c + 1
		retryErr = nil
	}

	return current, produced, nil, nil
}

// retryTarget finds the nearest upstream transform that still has budget,
// never crossing back over a fired catch.
func (r *run) retryTarget(f *fieldMeta, failIdx, floor int, attempts map[int]int) int {
	for j := failIdx; j >= floor; j-- {
		stg := f.stages[j]
		if stg.kind != StageTransform {
			continue
		}
		if attempts[j] < stg.retryBudget()+1 {
			return j
		}
	}
	return -1
}

func nextCatch(f *fieldMeta, failIdx int, fired map[int]bool) int {
	for j := failIdx + 1; j < len(f.stages); j++ {
		if f.stages[j].kind == StageCatch && !fired[j] {
			return j
		}
	}
	return -1
}

func (r *run) resolveHandler(stg Stage) ModelHandler {
	if stg.handler != nil {
		return stg.handler
	}
	if r.opt.Handler != nil {
		return r.opt.Handler
	}
	return r.schema.handler
}

// resetHistory clears a field's oscillation window after a repair, so the
// repaired value opens a fresh cycle-detection window.
func (r *run) resetHistory(field string) {
	if st, ok := r.states[field]; ok {
		st.history = nil
	}
}

// runChildStage executes an Each or Nested mount. Child issues come back
// rebased relative to the mounting field; stageIssues later prefixes the
// field itself.
func (r *run) runChildStage(ctx context.Context, stg Stage, current any) (any, error) {
	parentScope := &Scope{run: r, parent: r.parent}

	childOpt := r.opt
	childOpt.Strategy = StrategySchemaDefault
	childOpt.MaxIterations = 0
	childOpt.Variants = nil

	if !stg.each {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, Issues{{
				Code:    CodeInvalidType,
				Message: fmt.Sprintf("expected object, got %T", current),
				Value:   current,
			}}
		}
		inst, _, err := executeRun(ctx, stg.child, obj, childOpt, r.id, parentScope, 0)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}

	arr, ok := current.([]any)
	if !ok {
		return nil, Issues{{
			Code:    CodeInvalidType,
			Message: fmt.Sprintf("expected array, got %T", current),
			Value:   current,
		}}
	}
	out := make([]any, len(arr))
	var all Issues
	for idx, el := range arr {
		inst, _, err := executeRun(ctx, stg.child, el, childOpt, r.id, parentScope, 0)
		if err != nil {
			iss, ok := AsIssues(err)
			if !ok {
				return nil, err
			}
			for k := range iss {
				iss[k].Path = "/" + strconv.Itoa(idx) + iss[k].Path
			}
			all = AppendIssues(all, iss...)
			if r.opt.FailFast {
				return nil, all
			}
			continue
		}
		out[idx] = inst
	}
	if len(all) > 0 {
		return nil, all
	}
	return out, nil
}

// runChecks applies whole-instance rules once, after every field settled.
func (r *run) runChecks(ctx context.Context) Issues {
	if len(r.schema.checks) == 0 {
		return nil
	}
	r.phase = InstanceCrossValidating
	inst := r.instance()
	var all Issues
	for _, chk := range r.schema.checks {
		err := chk.Fn(ctx, inst)
		if err == nil {
			continue
		}
		if iss, ok := AsIssues(err); ok {
			for k := range iss {
				if iss[k].Code == "" {
					iss[k].Code = CodeCrossRule
				}
				if iss[k].Rule == "" {
					iss[k].Rule = chk.Name
				}
			}
			all = AppendIssues(all, iss...)
		} else {
			all = AppendIssues(all, Issue{
				Code:    CodeCrossRule,
				Rule:    chk.Name,
				Message: err.Error(),
				Cause:   err,
			})
		}
		if r.opt.FailFast {
			return all
		}
	}
	return all
}

func (r *run) instance() map[string]any {
	out := make(map[string]any, len(r.states))
	for name, st := range r.states {
		if st.set {
			out[name] = st.value
		}
	}
	return out
}

func (r *run) collectIssues() Issues {
	var all Issues
	for _, f := range r.schema.fields {
		if st := r.states[f.name]; len(st.errs) > 0 {
			all = AppendIssues(all, st.errs...)
		}
	}
	return all
}

func (r *run) fieldPhases() map[string]FieldPhase {
	out := make(map[string]FieldPhase, len(r.states))
	for name, st := range r.states {
		out[name] = st.phase
	}
	return out
}

// stageIssues converts a stage error into rebased Issues.
func stageIssues(field string, stg Stage, current any, err error) Issues {
	if iss, ok := AsIssues(err); ok {
		out := make(Issues, 0, len(iss))
		for _, it := range iss {
			if it.Path == "" {
				it.Path = "/" + field
			} else if strings.HasPrefix(it.Path, "/") {
				it.Path = "/" + field + it.Path
			}
			if it.Rule == "" {
				it.Rule = stg.name
			}
			out = append(out, it)
		}
		return out
	}
	return Issues{{
		Path:    "/" + field,
		Code:    stageFailureCode(stg.kind),
		Rule:    stg.name,
		Message: err.Error(),
		Value:   current,
		Cause:   err,
	}}
}

func stageFailureCode(k StageKind) string {
	switch k {
	case StageSourcing:
		return CodeSourcingFailed
	case StageValidation:
		return CodeValidationFailed
	case StageTransform:
		return CodeTransformFailed
	default:
		return CodeCoercionFailed
	}
}

func newInstanceID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func deepEqual(a, b any) bool { return reflect.DeepEqual(a, b) }
