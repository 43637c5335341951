package domain

// Script is the narrative text of a job together with its approval state.
// Version increments on every edit; ApprovedVersion is zero until the
// current or an earlier draft was approved.
type Script struct {
	Text            string
	Version         int
	ApprovedVersion int
}

// Approved reports whether the current draft is approved.
func (s Script) Approved() bool {
	return s.Version > 0 && s.ApprovedVersion == s.Version
}
