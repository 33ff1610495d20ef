package domain

import "strings"

// BranchRef selects a branch partition. The zero value means "whatever branch
// is active"; Branch("") selects the unscoped partition explicitly.
type BranchRef struct {
	id       string
	explicit bool
}

func ActiveBranch() BranchRef {
	return BranchRef{}
}

func Branch(id string) BranchRef {
	return BranchRef{id: id, explicit: true}
}

func (b BranchRef) IsActive() bool {
	return !b.explicit
}

// Resolve returns the normalized branch id, falling back to active when the
// ref does not name one.
func (b BranchRef) Resolve(active string) string {
	if b.explicit {
		return NormalizeBranchID(b.id)
	}
	return NormalizeBranchID(active)
}

// NormalizeBranchID maps blank ids to the unscoped partition ("").
func NormalizeBranchID(id string) string {
	return strings.TrimSpace(id)
}
