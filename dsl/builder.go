// Package dsl is the fluent way to declare schemas: a Builder assembles a
// distill.SchemaConfig field by field and hands it to distill.Compile. Plain
// SchemaConfig literals remain fully supported; the builder only adds
// chaining and a few stage shorthands.
package dsl

import (
	"fmt"

	"github.com/ferrant/distill"
)

// Schema starts a builder for a named schema.
func Schema(name string) *Builder {
	return &Builder{cfg: distill.SchemaConfig{Name: name}}
}

// Builder accumulates a schema declaration. Declaration mistakes surface at
// Build, not at the call that made them, so chains stay uncluttered.
type Builder struct {
	cfg    distill.SchemaConfig
	fields []*FieldBuilder
	err    error
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

// Extends inherits another schema's fields: for a field both declare, the
// base schema's stages run before this one's.
func (b *Builder) Extends(base *distill.Schema) *Builder {
	b.cfg.Extends = base
	return b
}

// Convergent declares the convergent fixed-point strategy (the default).
func (b *Builder) Convergent() *Builder {
	b.cfg.Strategy = distill.StrategyConvergent
	return b
}

// SinglePass declares the single-pass strategy. The dependency graph must
// be acyclic; Build rejects cycles.
func (b *Builder) SinglePass() *Builder {
	b.cfg.Strategy = distill.StrategySinglePass
	return b
}

// MaxIterations caps convergent iterations for this schema.
func (b *Builder) MaxIterations(n int) *Builder {
	b.cfg.MaxIterations = n
	return b
}

// ManageAll synthesizes passthrough pipelines for declared fields that end
// up with no stages.
func (b *Builder) ManageAll() *Builder {
	b.cfg.ManageAll = true
	return b
}

// KindDefault installs the schema cascade tier for one value kind.
func (b *Builder) KindDefault(k distill.ValueKind, stages ...distill.Stage) *Builder {
	if b.cfg.KindDefaults == nil {
		b.cfg.KindDefaults = make(map[distill.ValueKind][]distill.Stage)
	}
	b.cfg.KindDefaults[k] = stages
	return b
}

// Handler sets the schema-level default model handler.
func (b *Builder) Handler(h distill.ModelHandler) *Builder {
	b.cfg.Handler = h
	return b
}

// Check adds a whole-instance rule, run once after every field settles.
func (b *Builder) Check(name string, fn distill.CheckFunc) *Builder {
	b.cfg.Checks = append(b.cfg.Checks, distill.Check{Name: name, Fn: fn})
	return b
}

// Discriminator declares the raw-input key that selects a variant.
func (b *Builder) Discriminator(key string) *Builder {
	b.cfg.Discriminator = key
	return b
}

// Variant registers the schema executed for one discriminator value.
func (b *Builder) Variant(tag string, s *distill.Schema) *Builder {
	if b.cfg.Variants == nil {
		b.cfg.Variants = make(map[string]*distill.Schema)
	}
	b.cfg.Variants[tag] = s
	return b
}

// Field opens a field declaration.
func (b *Builder) Field(name string, kind distill.ValueKind) *FieldBuilder {
	f := &FieldBuilder{b: b}
	f.spec.Name = name
	f.spec.Kind = kind
	b.fields = append(b.fields, f)
	return f
}

// Build compiles the declaration.
func (b *Builder) Build() (*distill.Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	cfg := b.cfg
	cfg.Fields = make([]distill.FieldSpec, 0, len(b.fields))
	for _, f := range b.fields {
		cfg.Fields = append(cfg.Fields, f.spec)
	}
	return distill.Compile(cfg)
}

// MustBuild is Build that panics on error, for package-level schemas.
func (b *Builder) MustBuild() *distill.Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
