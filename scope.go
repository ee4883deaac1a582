package distill

// Scope is the view of the instance-in-progress handed to every stage
// function. It exposes resolved field values, the immutable raw input, the
// caller's context value, and (inside nested schemas) the embedding
// instance. A scope is owned by one create call and must not be retained
// past the stage invocation.
type Scope struct {
	run     *run
	field   string
	current any
	parent  *Scope
}

// FieldName returns the name of the field being processed.
func (sc *Scope) FieldName() string { return sc.field }

// Current returns the working value of the field being processed, as left by
// the previous stage.
func (sc *Scope) Current() any { return sc.current }

// Value returns another managed field's value. ok is false while the field
// is unresolved; under the convergent strategy early iterations commonly see
// absent or stale values, which is why pipelines re-run until a fixed point.
func (sc *Scope) Value(name string) (any, bool) {
	st, ok := sc.run.states[name]
	if !ok || !st.set {
		return nil, false
	}
	return st.value, true
}

// Raw looks a path up in the raw input tree. Array elements are addressed by
// decimal segments.
func (sc *Scope) Raw(path ...string) (any, bool) {
	return rawLookup(sc.run.raw, path)
}

// Context returns the caller value passed via CreateOpt.Context.
func (sc *Scope) Context() any { return sc.run.ctxVal }

// Parent returns the embedding instance's scope, or nil at the top level.
// Parent scopes are read-only by construction: nothing on Scope writes.
func (sc *Scope) Parent() *Scope { return sc.parent }

// InstanceID returns the identifier minted for this create call.
func (sc *Scope) InstanceID() string { return sc.run.id }

// Resolve dispatches a Topic against this scope.
func (sc *Scope) Resolve(t Topic) (any, bool, error) {
	switch t.kind {
	case topicField:
		v, ok := sc.Value(t.name)
		return v, ok, nil
	case topicRaw:
		v, ok := sc.Raw(t.path...)
		return v, ok, nil
	case topicParent:
		if sc.parent == nil {
			return nil, false, configf(ErrConfig, "parent reference %q outside a nested schema", t.name)
		}
		v, ok := sc.parent.Value(t.name)
		return v, ok, nil
	default:
		return sc.current, true, nil
	}
}

// Snapshot copies the resolved portion of the instance. Handlers receive it
// so they can ground a transform in sibling fields without being able to
// write back.
func (sc *Scope) Snapshot() map[string]any {
	out := make(map[string]any, len(sc.run.states))
	for name, st := range sc.run.states {
		if st.set {
			out[name] = st.value
		}
	}
	return out
}
