package distill

import "strings"

// Topic names the value a stage reads: the current field's own value, another
// managed field, a path into the raw input, or a field of the embedding
// instance. Constructors are the only way to obtain one; there is no string
// form to mis-parse, so "current" can never be confused with a field that
// happens to be called current.
type Topic struct {
	kind topicKind
	name string
	path []string
}

type topicKind int

const (
	topicSelf topicKind = iota
	topicField
	topicRaw
	topicParent
)

// Self names the current field's own value. It contributes no dependency edge.
func Self() Topic { return Topic{kind: topicSelf} }

// Field names another managed field of the same schema. Every Field reference
// in a pipeline contributes one dependency edge to the graph.
func Field(name string) Topic { return Topic{kind: topicField, name: name} }

// Raw names a path into the raw input tree. It contributes no dependency edge;
// raw input never changes during execution.
func Raw(path ...string) Topic { return Topic{kind: topicRaw, path: path} }

// Parent names a field of the embedding instance. It is legal only inside a
// schema mounted via Each or Nested and becomes a dependency of the embedding
// field in the parent graph rather than an edge in this one.
func Parent(name string) Topic { return Topic{kind: topicParent, name: name} }

func (t Topic) String() string {
	switch t.kind {
	case topicField:
		return t.name
	case topicRaw:
		return "raw:" + strings.Join(t.path, "/")
	case topicParent:
		return "parent:" + t.name
	default:
		return "self"
	}
}

// FieldName returns the referenced field name when the topic is a Field
// reference.
func (t Topic) FieldName() (string, bool) {
	if t.kind == topicField {
		return t.name, true
	}
	return "", false
}

// ParentName returns the referenced field name when the topic is a Parent
// reference.
func (t Topic) ParentName() (string, bool) {
	if t.kind == topicParent {
		return t.name, true
	}
	return "", false
}
