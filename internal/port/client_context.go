package port

// ClientContext is the read-only view of session state the core needs.
type ClientContext interface {
	ActiveBranchID() string
	IsOnline() bool
}
