package models

// DepositorView is the directory projection of a depositor identity.
// AssignedAccounts is derived from the account change stream and may lag.
type DepositorView struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Username         string `json:"username"`
	Role             string `json:"role"`
	AssignedAccounts int64  `json:"assigned_accounts"`
}

// Identity converts the directory entry back to an Identity.
func (v *DepositorView) Identity() Identity {
	return Identity{ID: v.ID, Email: v.Email, Username: v.Username, Role: v.Role}
}

// AccountView is the cached read model of an account. Unlike Account it is
// never serialised to API responses, so it can carry bookkeeping fields.
type AccountView struct {
	Account
	CachedAt int64 `json:"cached_at"`
}
