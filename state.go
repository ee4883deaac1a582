package distill

//go:generate go tool stringer -type=FieldPhase,InstancePhase -output=phase_string.go

// FieldPhase tracks one field's progress through its pipeline.
//
// Unresolved -> Sourcing -> Coercing -> Validating -> Resolved | Failed.
// A transform retry re-enters Coercing; the convergent strategy resets a
// resolved field back to Sourcing at the start of each iteration.
type FieldPhase int

const (
	FieldUnresolved FieldPhase = iota
	FieldSourcing
	FieldCoercing
	FieldValidating
	FieldResolved
	FieldFailed
)

// InstancePhase tracks the whole create call.
//
// Single-pass: Building -> CrossValidating -> Done | Failed.
// Convergent: Building -> Iterating -> Converged -> CrossValidating -> Done |
// Failed, with Oscillating and TimedOut as fatal exits from Iterating.
type InstancePhase int

const (
	InstanceBuilding InstancePhase = iota
	InstanceIterating
	InstanceConverged
	InstanceOscillating
	InstanceTimedOut
	InstanceCrossValidating
	InstanceDone
	InstanceFailed
)

// Terminal reports whether the phase admits no further transitions.
func (p FieldPhase) Terminal() bool {
	return p == FieldResolved || p == FieldFailed
}

// Terminal reports whether the phase admits no further transitions.
func (p InstancePhase) Terminal() bool {
	switch p {
	case InstanceOscillating, InstanceTimedOut, InstanceDone, InstanceFailed:
		return true
	}
	return false
}
