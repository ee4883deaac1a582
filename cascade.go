package distill

import "sync"

// The cascade picks one effective pipeline per field from four tiers, lowest
// to highest: engine-global per-kind defaults, schema per-kind defaults, a
// bundle applied to the field, stages declared on the field itself. The two
// kind tiers apply only when the field declares neither bundle nor stages; a
// bundle composes with field stages (bundle first, field stages appended).
// Resolution happens once, inside Compile, and is cached on the Schema.

var (
	kindDefaultMu sync.RWMutex
	kindDefaults  = map[ValueKind][]Stage{}
)

// SetKindDefault installs an engine-global default pipeline for a value
// kind, the lowest cascade tier. Passing no stages clears the entry. The
// setting is read at Compile time; schemas compiled earlier keep the
// pipelines they resolved.
func SetKindDefault(kind ValueKind, stages ...Stage) {
	kindDefaultMu.Lock()
	defer kindDefaultMu.Unlock()
	if len(stages) == 0 {
		delete(kindDefaults, kind)
		return
	}
	cp := make([]Stage, len(stages))
	copy(cp, stages)
	kindDefaults[kind] = cp
}

func globalKindDefault(kind ValueKind) []Stage {
	kindDefaultMu.RLock()
	defer kindDefaultMu.RUnlock()
	st, ok := kindDefaults[kind]
	if !ok {
		return nil
	}
	cp := make([]Stage, len(st))
	copy(cp, st)
	return cp
}

// Bundle is a reusable named stage sequence, the third cascade tier. Declare
// one once and apply it to any number of fields via the builder's Use.
type Bundle struct {
	name   string
	stages []Stage
}

// NewBundle builds a bundle. The name shows up in plan renderings.
func NewBundle(name string, stages ...Stage) *Bundle {
	cp := make([]Stage, len(stages))
	copy(cp, stages)
	return &Bundle{name: name, stages: cp}
}

// Name returns the bundle name.
func (b *Bundle) Name() string { return b.name }

// Stages returns a copy of the bundled stages.
func (b *Bundle) Stages() []Stage {
	cp := make([]Stage, len(b.stages))
	copy(cp, b.stages)
	return cp
}

