package dsl

import (
	"context"
	"strings"

	"github.com/ferrant/distill"
	"github.com/ferrant/distill/match"
)

// FieldBuilder accumulates one field's pipeline. Stage methods append in
// call order, which is execution order.
type FieldBuilder struct {
	b          *Builder
	spec       distill.FieldSpec
	matchCfg   []match.Config
	bundleUsed bool
}

// From sources the field from a raw-input path. With no arguments the path
// is the field's own name.
func (f *FieldBuilder) From(path ...string) *FieldBuilder {
	if len(path) == 0 {
		path = []string{f.spec.Name}
	}
	name := "from:" + strings.Join(path, "/")
	fn := func(_ context.Context, sc *distill.Scope) (any, bool, error) {
		v, ok := sc.Raw(path...)
		return v, ok, nil
	}
	f.spec.Stages = append(f.spec.Stages, distill.Sourcing(name, fn, distill.Raw(path...)))
	return f
}

// Source appends a sourcing stage.
func (f *FieldBuilder) Source(name string, fn distill.SourceFunc, refs ...distill.Topic) *FieldBuilder {
	f.spec.Stages = append(f.spec.Stages, distill.Sourcing(name, fn, refs...))
	return f
}

// Coerce appends a coercion stage.
func (f *FieldBuilder) Coerce(name string, fn distill.CoerceFunc, refs ...distill.Topic) *FieldBuilder {
	f.spec.Stages = append(f.spec.Stages, distill.Coercion(name, fn, refs...))
	return f
}

// Validate appends a validation stage.
func (f *FieldBuilder) Validate(name string, fn distill.ValidateFunc, refs ...distill.Topic) *FieldBuilder {
	f.spec.Stages = append(f.spec.Stages, distill.Validation(name, fn, refs...))
	return f
}

// Required appends a validation stage that rejects nil values.
func (f *FieldBuilder) Required() *FieldBuilder {
	fn := func(_ context.Context, _ *distill.Scope, v any) error {
		if v == nil {
			return distill.Issues{{Code: distill.CodeRequired, Message: "value is required"}}
		}
		return nil
	}
	f.spec.Stages = append(f.spec.Stages, distill.Validation("required", fn))
	return f
}

// Transform appends a model-handler stage.
func (f *FieldBuilder) Transform(name string, refs ...distill.Topic) *FieldBuilder {
	f.spec.Stages = append(f.spec.Stages, distill.Transform(name, refs...))
	return f
}

// Catch appends a recovery boundary with a plain fallback value.
func (f *FieldBuilder) Catch(name string, fallback any) *FieldBuilder {
	f.spec.Stages = append(f.spec.Stages, distill.Catch(name, fallback))
	return f
}

// CatchRepair appends a recovery boundary that asks the model handler to
// repair the failing value.
func (f *FieldBuilder) CatchRepair(name string) *FieldBuilder {
	f.spec.Stages = append(f.spec.Stages, distill.CatchRepair(name))
	return f
}

// Each mounts a child schema over every element of the current array value.
func (f *FieldBuilder) Each(name string, child *distill.Schema) *FieldBuilder {
	f.spec.Stages = append(f.spec.Stages, distill.Each(name, child))
	return f
}

// Nested mounts a child schema over the current object value.
func (f *FieldBuilder) Nested(name string, child *distill.Schema) *FieldBuilder {
	f.spec.Stages = append(f.spec.Stages, distill.Nested(name, child))
	return f
}

// Match appends a candidate-matching coercion. Configs passed here override
// the field's MatchDefaults; with none, the defaults apply.
func (f *FieldBuilder) Match(source match.Candidates, cfgs ...match.Config) *FieldBuilder {
	merged := make([]match.Config, 0, len(f.matchCfg)+len(cfgs))
	merged = append(merged, f.matchCfg...)
	merged = append(merged, cfgs...)
	f.spec.Stages = append(f.spec.Stages, match.Stage(source, merged...))
	return f
}

// MatchDefaults sets the config later Match calls on this field start from.
func (f *FieldBuilder) MatchDefaults(cfg match.Config) *FieldBuilder {
	f.matchCfg = []match.Config{cfg}
	return f
}

// Stages appends prebuilt stages verbatim.
func (f *FieldBuilder) Stages(stages ...distill.Stage) *FieldBuilder {
	f.spec.Stages = append(f.spec.Stages, stages...)
	return f
}

// Use prepends a reusable bundle's stages to this field's pipeline. At most
// one bundle per field declaration.
func (f *FieldBuilder) Use(bundle *distill.Bundle) *FieldBuilder {
	if f.bundleUsed {
		f.b.fail("dsl: field %q: bundle already set", f.spec.Name)
		return f
	}
	f.bundleUsed = true
	f.spec.Bundle = bundle
	return f
}

// DependsOn declares manual dependencies, unioned with the inferred edges.
func (f *FieldBuilder) DependsOn(fields ...string) *FieldBuilder {
	f.spec.DependsOn = append(f.spec.DependsOn, fields...)
	return f
}

// Retries overrides the retry budget of the stage appended last.
func (f *FieldBuilder) Retries(n int) *FieldBuilder {
	i := len(f.spec.Stages) - 1
	if i < 0 {
		f.b.fail("dsl: field %q: Retries before any stage", f.spec.Name)
		return f
	}
	if k := f.spec.Stages[i].Kind(); k != distill.StageTransform {
		f.b.fail("dsl: field %q: Retries on %s stage %q", f.spec.Name, k, f.spec.Stages[i].Name())
		return f
	}
	f.spec.Stages[i] = f.spec.Stages[i].WithRetries(n)
	return f
}

// Handler binds a handler to the stage appended last, which must be a
// Transform or CatchRepair.
func (f *FieldBuilder) Handler(h distill.ModelHandler) *FieldBuilder {
	i := len(f.spec.Stages) - 1
	if i < 0 {
		f.b.fail("dsl: field %q: Handler before any stage", f.spec.Name)
		return f
	}
	if k := f.spec.Stages[i].Kind(); k != distill.StageTransform && k != distill.StageCatch {
		f.b.fail("dsl: field %q: Handler on %s stage %q", f.spec.Name, k, f.spec.Stages[i].Name())
		return f
	}
	f.spec.Stages[i] = f.spec.Stages[i].WithHandler(h)
	return f
}

// Field closes this field and opens the next one.
func (f *FieldBuilder) Field(name string, kind distill.ValueKind) *FieldBuilder {
	return f.b.Field(name, kind)
}

// Done returns to the schema builder.
func (f *FieldBuilder) Done() *Builder { return f.b }

// Build compiles the whole declaration.
func (f *FieldBuilder) Build() (*distill.Schema, error) { return f.b.Build() }

// MustBuild is Build that panics on error.
func (f *FieldBuilder) MustBuild() *distill.Schema { return f.b.MustBuild() }
