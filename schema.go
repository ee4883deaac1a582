package distill

import (
	"errors"
	"strings"

	"github.com/ferrant/distill/internal/graph"
)

// FieldSpec declares one field of a schema.
type FieldSpec struct {
	Name   string
	Kind   ValueKind
	Stages []Stage
	Bundle *Bundle
	// DependsOn declares manual dependencies for stages that read sibling
	// fields without declaring refs. Unioned with the inferred edges.
	DependsOn []string
}

// Check is a whole-instance rule run once after every field settles: after
// convergence under the convergent strategy, at the end of the pass under
// single-pass. The name doubles as the rule identifier in issues.
type Check struct {
	Name string
	Fn   CheckFunc
}

// SchemaConfig is the declarative input to Compile. The dsl package
// assembles one behind a fluent builder; filling it in by hand works just as
// well.
type SchemaConfig struct {
	Name    string
	Extends *Schema
	Fields  []FieldSpec
	// Strategy declares the default execution strategy. Zero inherits the
	// extended schema's, or StrategyConvergent.
	Strategy      Strategy
	MaxIterations int
	// ManageAll synthesizes passthrough pipelines for declared fields that
	// end up with no stages after cascade resolution.
	ManageAll bool
	// KindDefaults is the schema cascade tier: default pipelines per value
	// kind for fields that declare nothing themselves.
	KindDefaults map[ValueKind][]Stage
	// Handler is the schema-level default model handler.
	Handler ModelHandler
	Checks  []Check
	// Discriminator and Variants declare tag-based dispatch: Create reads
	// the discriminator key from the raw input and executes the variant
	// registered for its value.
	Discriminator string
	Variants      map[string]*Schema
}

// Schema is a compiled, immutable field schema. Compile folds the
// inheritance chain, resolves the cascade, infers the dependency graph and
// caches every derived order; the result is safe for concurrent use by any
// number of Create calls.
type Schema struct {
	name          string
	base          *Schema
	strategy      Strategy
	maxIterations int
	manageAll     bool
	handler       ModelHandler
	checks        []Check
	discriminator string
	variants      map[string]*Schema

	kindDefaults map[ValueKind][]Stage

	// declared records before cascade fallback, kept for children extending
	// this schema
	explicitOrder []string
	explicit      map[string]*explicitField

	fields []*fieldMeta
	byName map[string]*fieldMeta
	graph  *graph.Graph
	order  []string   // best-effort visit order (== topological when acyclic)
	levels [][]string // nil when cyclic
	// parentRefs lists embedding-instance fields this schema reads via
	// Parent(). They become the mounting field's dependencies when the
	// schema is used with Each or Nested.
	parentRefs []string
}

// Compile builds a Schema from its configuration.
func Compile(cfg SchemaConfig) (*Schema, error) {
	order, table, err := mergeFieldTable(cfg)
	if err != nil {
		return nil, err
	}

	s := &Schema{
		name:          cfg.Name,
		base:          cfg.Extends,
		strategy:      cfg.Strategy,
		maxIterations: cfg.MaxIterations,
		manageAll:     cfg.ManageAll,
		handler:       cfg.Handler,
		discriminator: cfg.Discriminator,
		explicitOrder: order,
		explicit:      table,
		byName:        make(map[string]*fieldMeta),
	}

	if base := cfg.Extends; base != nil {
		if !s.manageAll {
			s.manageAll = base.manageAll
		}
		if s.strategy == StrategySchemaDefault {
			s.strategy = base.strategy
		}
		if s.maxIterations == 0 {
			s.maxIterations = base.maxIterations
		}
		if s.handler == nil {
			s.handler = base.handler
		}
		if s.discriminator == "" {
			s.discriminator = base.discriminator
		}
		s.checks = append(s.checks, base.checks...)
	}
	s.checks = append(s.checks, cfg.Checks...)

	if len(cfg.KindDefaults) > 0 {
		s.kindDefaults = make(map[ValueKind][]Stage, len(cfg.KindDefaults))
		for k, st := range cfg.KindDefaults {
			s.kindDefaults[k] = append([]Stage(nil), st...)
		}
	}

	s.variants = mergeVariants(cfg.Extends, cfg.Variants)
	for tag, v := range s.variants {
		if v == nil {
			return nil, configf(ErrConfig, "variant %q is nil", tag)
		}
	}
	if s.discriminator == "" && len(s.variants) > 0 {
		return nil, configf(ErrConfig, "variants declared without a discriminator key")
	}

	for _, name := range s.explicitOrder {
		meta := finalizeField(s.explicit[name], s.kindDefault, s.manageAll)
		if meta == nil {
			continue
		}
		if err := validatePipeline(meta); err != nil {
			return nil, err
		}
		s.fields = append(s.fields, meta)
		s.byName[meta.name] = meta
	}

	if err := s.buildGraph(); err != nil {
		return nil, err
	}
	for _, v := range s.variants {
		s.parentRefs = unionStrings(s.parentRefs, v.parentRefs)
	}

	if s.strategy == StrategySinglePass && s.graph.Cyclic() {
		return nil, &ConfigError{
			Kind:  ErrCycle,
			Msg:   strings.Join(s.graph.Cycle(), " -> "),
			Cycle: s.graph.Cycle(),
		}
	}

	s.order = s.graph.BestEffortOrder()
	s.levels = s.graph.Levels()
	return s, nil
}

// MustCompile is Compile that panics on error, for package-level schema
// variables.
func MustCompile(cfg SchemaConfig) *Schema {
	s, err := Compile(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// kindDefault resolves the schema cascade tier, nearest schema first along
// the extends chain.
func (s *Schema) kindDefault(k ValueKind) []Stage {
	for cur := s; cur != nil; cur = cur.base {
		if st, ok := cur.kindDefaults[k]; ok && len(st) > 0 {
			return append([]Stage(nil), st...)
		}
	}
	return nil
}

func mergeVariants(base *Schema, own map[string]*Schema) map[string]*Schema {
	if base == nil && len(own) == 0 {
		return nil
	}
	out := make(map[string]*Schema)
	if base != nil {
		for tag, v := range base.variants {
			out[tag] = v
		}
	}
	for tag, v := range own {
		out[tag] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validatePipeline enforces the stage-order invariant. Catch stages split
// the pipeline into segments; within a segment kinds must not step backwards
// (sourcing, then coercion or transform, then validation), and sourcing is
// confined to the first segment. A replay after a catch therefore re-enters
// at coercion, never at sourcing.
func validatePipeline(meta *fieldMeta) error {
	segment := 0
	rank := 0
	for i, st := range meta.stages {
		if err := validateStageFn(meta.name, i, st); err != nil {
			return err
		}
		if st.kind == StageCatch {
			segment++
			rank = 1 // replay re-enters at coercion
			continue
		}
		r := stageRank(st.kind)
		if segment > 0 && r == 0 {
			return configf(ErrConfig, "field %q: sourcing stage %q after a catch boundary", meta.name, st.name)
		}
		if r < rank {
			return configf(ErrConfig, "field %q: %s stage %q after %s", meta.name, st.kind, st.name, rankName(rank))
		}
		rank = r
	}
	return nil
}

func stageRank(k StageKind) int {
	switch k {
	case StageSourcing:
		return 0
	case StageCoercion, StageTransform:
		return 1
	default:
		return 2
	}
}

func rankName(rank int) string {
	switch rank {
	case 0:
		return "sourcing"
	case 1:
		return "coercion"
	default:
		return "validation"
	}
}

func validateStageFn(field string, idx int, st Stage) error {
	ok := true
	switch st.kind {
	case StageSourcing:
		ok = st.source != nil
	case StageCoercion:
		ok = st.coerce != nil || st.child != nil
	case StageValidation:
		ok = st.validate != nil
	case StageTransform, StageCatch:
	default:
		ok = false
	}
	if !ok {
		return configf(ErrConfig, "field %q: stage %d (%q) has no function; use the stage constructors", field, idx, st.name)
	}
	return nil
}

// buildGraph infers dependency edges from stage refs, manual DependsOn
// declarations and the Parent() refs of mounted child schemas.
func (s *Schema) buildGraph() error {
	names := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		names = append(names, f.name)
	}

	var edges []graph.Edge
	for _, f := range s.fields {
		for _, st := range f.stages {
			for _, ref := range st.refs {
				if dep, ok := ref.FieldName(); ok {
					edges = append(edges, graph.Edge{From: dep, To: f.name})
				}
				if p, ok := ref.ParentName(); ok {
					s.parentRefs = unionStrings(s.parentRefs, []string{p})
				}
			}
			if st.child != nil {
				// the child's Parent() reads are this field's dependencies
				for _, dep := range st.child.parentRefs {
					edges = append(edges, graph.Edge{From: dep, To: f.name})
				}
			}
		}
		for _, dep := range f.deps {
			edges = append(edges, graph.Edge{From: dep, To: f.name})
		}
	}

	g, err := graph.New(names, edges)
	if err != nil {
		var ge *graph.GraphError
		if errors.As(err, &ge) && errors.Is(ge.Kind, graph.ErrUnknownNode) {
			return configf(ErrConfig, "reference to unmanaged field: %s", ge.Msg)
		}
		return configf(ErrConfig, "%v", err)
	}
	s.graph = g
	return nil
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Strategy returns the declared execution strategy, StrategyConvergent when
// nothing was declared.
func (s *Schema) Strategy() Strategy {
	if s.strategy == StrategySchemaDefault {
		return StrategyConvergent
	}
	return s.strategy
}

// Fields returns the managed field names in declaration order.
func (s *Schema) Fields() []string {
	out := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f.name)
	}
	return out
}

// Order returns the visit order: topological when the graph is acyclic,
// otherwise the sortable prefix followed by cyclic fields in declaration
// order.
func (s *Schema) Order() []string {
	return append([]string(nil), s.order...)
}

// Cyclic reports whether the dependency graph contains a cycle. Cyclic
// schemas require the convergent strategy.
func (s *Schema) Cyclic() bool { return s.graph.Cyclic() }

// DependsOn returns a managed field's direct dependencies in declaration
// order.
func (s *Schema) DependsOn(field string) []string {
	return s.graph.DependsOn(field)
}
