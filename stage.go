package distill

import "context"

// StageKind discriminates pipeline stages.
type StageKind int

const (
	StageSourcing   StageKind = iota // pull a starting value out of the raw input or context
	StageCoercion                    // reshape the value (type casts, matching, derivation)
	StageValidation                  // accept or reject, never mutate
	StageTransform                   // ask a model handler to produce the value
	StageCatch                       // recovery boundary for upstream failures
)

func (k StageKind) String() string {
	switch k {
	case StageSourcing:
		return "sourcing"
	case StageCoercion:
		return "coercion"
	case StageValidation:
		return "validation"
	case StageTransform:
		return "transform"
	case StageCatch:
		return "catch"
	default:
		return "unknown"
	}
}

// SourceFunc produces a field's starting value. ok=false reports absence
// without error; the pipeline then continues with a nil value.
type SourceFunc func(ctx context.Context, sc *Scope) (value any, ok bool, err error)

// CoerceFunc reshapes the current value.
type CoerceFunc func(ctx context.Context, sc *Scope, v any) (any, error)

// ValidateFunc accepts or rejects the current value. It must not mutate it.
type ValidateFunc func(ctx context.Context, sc *Scope, v any) error

// CheckFunc is a whole-instance rule run after all fields settle.
type CheckFunc func(ctx context.Context, instance map[string]any) error

// ModelRequest is the single argument of a handler invocation. The previous
// attempt's downstream error rides along as data so the handler can correct
// itself instead of repeating the same answer.
type ModelRequest struct {
	Field      string
	Value      any
	Instance   map[string]any // snapshot of resolved fields; treat as read-only
	Context    any            // caller context value from CreateOpt.Context
	Attempt    Attempt
	InstanceID string
}

// Attempt locates an invocation inside the retry loop.
type Attempt struct {
	Number int   // 1-based invocation counter for this pass
	Max    int   // invocations allowed this pass (retries+1)
	Err    error // downstream error from the previous attempt, nil on the first
	Repair bool  // set when invoked from a CatchRepair boundary
}

// ModelHandler is the contract for external model calls. The engine never
// dials anything itself; it hands the handler a request and retries on
// failure.
type ModelHandler interface {
	Transform(ctx context.Context, req ModelRequest) (any, error)
}

// ModelHandlerFunc adapts a function to ModelHandler.
type ModelHandlerFunc func(ctx context.Context, req ModelRequest) (any, error)

func (f ModelHandlerFunc) Transform(ctx context.Context, req ModelRequest) (any, error) {
	return f(ctx, req)
}

// Stage is one step of a field pipeline. Construct with Sourcing, Coercion,
// Validation, Transform, Catch, CatchRepair, Each or Nested; the zero value
// is not usable.
type Stage struct {
	kind     StageKind
	name     string
	refs     []Topic
	source   SourceFunc
	coerce   CoerceFunc
	validate ValidateFunc
	handler  ModelHandler
	retries  int // -1 means DefaultTransformRetries
	fallback any
	repair   bool
	child    *Schema
	each     bool
}

// Sourcing builds a sourcing stage. refs declare what the function reads.
func Sourcing(name string, fn SourceFunc, refs ...Topic) Stage {
	return Stage{kind: StageSourcing, name: name, source: fn, refs: refs, retries: -1}
}

// Coercion builds a coercion stage. refs declare what the function reads;
// Field refs become dependency edges.
func Coercion(name string, fn CoerceFunc, refs ...Topic) Stage {
	return Stage{kind: StageCoercion, name: name, coerce: fn, refs: refs, retries: -1}
}

// Validation builds a validation stage.
func Validation(name string, fn ValidateFunc, refs ...Topic) Stage {
	return Stage{kind: StageValidation, name: name, validate: fn, refs: refs, retries: -1}
}

// Transform builds a model-handler stage. The handler is resolved at run
// time: one bound via WithHandler wins, then the call's CreateOpt.Handler,
// then the schema default.
func Transform(name string, refs ...Topic) Stage {
	return Stage{kind: StageTransform, name: name, refs: refs, retries: -1}
}

// Catch builds a recovery boundary that substitutes a plain fallback value
// when any earlier stage of the same pipeline fails. The remainder of the
// pipeline replays against the fallback.
func Catch(name string, fallback any) Stage {
	return Stage{kind: StageCatch, name: name, fallback: fallback, retries: -1}
}

// CatchRepair builds a recovery boundary that hands the failing value and the
// error to the resolved model handler, then replays the remainder of the
// pipeline against the repaired value.
func CatchRepair(name string) Stage {
	return Stage{kind: StageCatch, name: name, repair: true, retries: -1}
}

// Each mounts a child schema over every element of an array value. Element
// issues are rebased under /field/index. Parent refs declared inside the
// child become this field's dependencies.
func Each(name string, child *Schema) Stage {
	return Stage{kind: StageCoercion, name: name, child: child, each: true, retries: -1}
}

// Nested mounts a child schema over a single object value.
func Nested(name string, child *Schema) Stage {
	return Stage{kind: StageCoercion, name: name, child: child, retries: -1}
}

// WithHandler binds a handler to a Transform or CatchRepair stage.
func (s Stage) WithHandler(h ModelHandler) Stage {
	s.handler = h
	return s
}

// WithRetries overrides the transform retry budget for this stage.
func (s Stage) WithRetries(n int) Stage {
	s.retries = n
	return s
}

// DependsOn declares manual dependencies, unioned with the inferred ones.
func (s Stage) DependsOn(fields ...string) Stage {
	refs := make([]Topic, 0, len(s.refs)+len(fields))
	refs = append(refs, s.refs...)
	for _, f := range fields {
		refs = append(refs, Field(f))
	}
	s.refs = refs
	return s
}

// Kind returns the stage kind.
func (s Stage) Kind() StageKind { return s.kind }

// Name returns the stage name, which doubles as the rule identifier in
// issues.
func (s Stage) Name() string { return s.name }

// Refs returns a copy of the declared references.
func (s Stage) Refs() []Topic {
	out := make([]Topic, len(s.refs))
	copy(out, s.refs)
	return out
}

func (s Stage) retryBudget() int {
	if s.retries < 0 {
		return DefaultTransformRetries
	}
	return s.retries
}
