package distill

import (
	"io"
	"log/slog"
)

// ValueKind classifies a field's declared type. It is the lookup key for
// cascade defaults (engine-global and schema-level).
type ValueKind int

const (
	KindAny    ValueKind = iota
	KindString           // scalar string
	KindNumber           // float64; input adapters normalize integers
	KindBool
	KindObject // map[string]any, usually a nested instance
	KindArray  // []any, usually element instances
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "any"
	}
}

// Strategy selects how the engine walks the dependency graph.
type Strategy int

const (
	// StrategySchemaDefault defers to the schema's declared strategy
	// (convergent when the schema declares nothing).
	StrategySchemaDefault Strategy = iota
	// StrategySinglePass visits each managed field exactly once in
	// topological order. The graph must be acyclic.
	StrategySinglePass
	// StrategyConvergent re-runs every pipeline until the instance reaches a
	// fixed point, bounded by MaxIterations.
	StrategyConvergent
)

func (s Strategy) String() string {
	switch s {
	case StrategySinglePass:
		return "single-pass"
	case StrategyConvergent:
		return "convergent"
	default:
		return "schema-default"
	}
}

// DefaultMaxIterations bounds convergent execution when neither the schema
// nor the call sets a limit.
const DefaultMaxIterations = 10

// DefaultTransformRetries bounds model re-invocations per transform stage and
// pass when the stage does not set its own budget.
const DefaultTransformRetries = 2

// CreateOpt bundles per-call options. When several are passed the last one
// wins.
type CreateOpt struct {
	// Context is an arbitrary caller value surfaced to every stage via
	// Scope.Context. Matchers typically read their candidate sets from it.
	Context any
	// Strategy overrides the schema's declared execution strategy.
	Strategy Strategy
	// MaxIterations caps convergent iterations. Zero means the schema's
	// setting, or DefaultMaxIterations.
	MaxIterations int
	// Handler serves Transform stages that bind no handler of their own when
	// the schema declares no default either.
	Handler ModelHandler
	// Variants extends the schema's discriminator mapping for this call.
	// Per-tag entries override schema-declared ones.
	Variants map[string]*Schema
	// FailFast stops at the first field error instead of collecting all of
	// them.
	FailFast bool
	// Parallelism bounds concurrent fields per dependency level under the
	// single-pass strategy. Values below 2 run sequentially.
	Parallelism int
	// Logger receives execution traces. Nil discards them.
	Logger *slog.Logger
}

func normalizeCreateOpt(opts []CreateOpt) CreateOpt {
	var opt CreateOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	return opt
}

func (o CreateOpt) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
