package engine

// ConflictError reports an expected business-rule violation: duplicate
// assignment, illegal event transition, and the like. Callers surface it as
// an outcome, not a crash.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }

// ValidationError reports malformed input rejected before any storage touch.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }
