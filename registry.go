package distill

import "context"

// The registry is the side table behind every schema: one record per declared
// field, populated at definition time by the builder and flattened here at
// Compile. Flattening folds the inheritance chain (ancestor stages for a
// field run before the child's own), applies the cascade to fields that
// declare nothing, and synthesizes passthrough pipelines under ManageAll.

// explicitField is a field's declared record after inheritance merge but
// before cascade fallback: only stages the user actually attached.
type explicitField struct {
	name    string
	kind    ValueKind
	stages  []Stage
	deps    []string
	bundles []string
}

// fieldMeta is the compiled record the engine executes: the effective
// pipeline after cascade resolution.
type fieldMeta struct {
	name      string
	kind      ValueKind
	stages    []Stage
	deps      []string
	bundles   []string
	synthetic bool // pipeline synthesized by ManageAll
}

func (ex *explicitField) clone() *explicitField {
	cp := &explicitField{name: ex.name, kind: ex.kind}
	cp.stages = append(cp.stages, ex.stages...)
	cp.deps = append(cp.deps, ex.deps...)
	cp.bundles = append(cp.bundles, ex.bundles...)
	return cp
}

// mergeFieldTable flattens cfg and its inheritance chain into declaration
// order. A child redeclaring an inherited field keeps the ancestor's
// position; its stages append after the ancestor's and its manual
// dependencies union in. Fields new to the child follow the inherited ones.
func mergeFieldTable(cfg SchemaConfig) ([]string, map[string]*explicitField, error) {
	var order []string
	table := make(map[string]*explicitField)

	if cfg.Extends != nil {
		for _, name := range cfg.Extends.explicitOrder {
			order = append(order, name)
			table[name] = cfg.Extends.explicit[name].clone()
		}
	}

	seen := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		if f.Name == "" {
			return nil, nil, configf(ErrConfig, "field name is required")
		}
		if seen[f.Name] {
			return nil, nil, configf(ErrConfig, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		own := make([]Stage, 0, len(f.Stages)+4)
		var bundles []string
		if f.Bundle != nil {
			own = append(own, f.Bundle.Stages()...)
			bundles = append(bundles, f.Bundle.Name())
		}
		own = append(own, f.Stages...)

		if ex, ok := table[f.Name]; ok {
			if f.Kind != KindAny {
				ex.kind = f.Kind
			}
			ex.stages = append(ex.stages, own...)
			ex.deps = unionStrings(ex.deps, f.DependsOn)
			ex.bundles = append(ex.bundles, bundles...)
			continue
		}
		order = append(order, f.Name)
		table[f.Name] = &explicitField{
			name:    f.Name,
			kind:    f.Kind,
			stages:  own,
			deps:    append([]string(nil), f.DependsOn...),
			bundles: bundles,
		}
	}
	return order, table, nil
}

// finalizeField applies the cascade to one merged record. It returns nil for
// fields that end up with no pipeline at all; those are declared but
// unmanaged and take no part in execution.
func finalizeField(ex *explicitField, schemaKind func(ValueKind) []Stage, manageAll bool) *fieldMeta {
	meta := &fieldMeta{
		name:    ex.name,
		kind:    ex.kind,
		deps:    ex.deps,
		bundles: ex.bundles,
	}
	stages := ex.stages
	if len(stages) == 0 {
		stages = schemaKind(ex.kind)
	}
	if len(stages) == 0 {
		stages = globalKindDefault(ex.kind)
	}
	if len(stages) == 0 {
		if !manageAll {
			return nil
		}
		stages = []Stage{passthroughSource(ex.name)}
		meta.synthetic = true
	}
	meta.stages = stages
	return meta
}

// passthroughSource copies a raw input key verbatim, the pipeline ManageAll
// gives fields that declare nothing.
func passthroughSource(name string) Stage {
	return Sourcing("passthrough", func(ctx context.Context, sc *Scope) (any, bool, error) {
		v, ok := sc.Raw(name)
		return v, ok, nil
	}, Raw(name))
}

func unionStrings(base, more []string) []string {
	seen := make(map[string]bool, len(base)+len(more))
	out := make([]string, 0, len(base)+len(more))
	for _, s := range base {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range more {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
