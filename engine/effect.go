package engine

// effectEdge turns enable/disable calls into at most one OnEffectChange per
// processed frame. Guarded by Engine.mu.
type effectEdge struct {
	pending  bool
	reported bool
}

func newEffectEdge(enabled bool) effectEdge {
	return effectEdge{reported: enabled}
}

// mark records an enable/disable transition.
func (f *effectEdge) mark() {
	f.pending = true
}

// take consumes a pending transition. It reports true only when the current
// enabled state differs from the one last reported.
func (f *effectEdge) take(enabled bool) bool {
	if !f.pending {
		return false
	}
	f.pending = false
	if enabled == f.reported {
		return false
	}
	f.reported = enabled
	return true
}
