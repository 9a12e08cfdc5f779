package cqrs

// ---------- Identity queries ----------

// GetUserQuery fetches a single identity, subject to ownership check.
type GetUserQuery struct {
	UserID           string
	RequestingUserID string
}

// ListUsersByRoleQuery backs the depositor directory.
type ListUsersByRoleQuery struct {
	Role string
}

// ---------- Account queries ----------

// ListAccountsQuery fetches account records visible to the caller.
// DepositorID narrows the result; depositors are always narrowed to themselves.
type ListAccountsQuery struct {
	RequestingUserID string
	RequestingRole   string
	DepositorID      string
}
