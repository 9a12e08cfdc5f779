package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and display format of Account.Date.
const DateLayout = "2006-01-02"

// Currency is the only currency account amounts are denominated in.
const Currency = "INR"

// Role values carried in identity metadata.
const (
	RoleDepositor  = "depositor"
	RoleOrderGiver = "order_giver"
)

// NormalizeRole maps an empty or unknown role to the order-giver default.
func NormalizeRole(role string) string {
	if role == RoleDepositor {
		return RoleDepositor
	}
	return RoleOrderGiver
}

// Account is a bank-account entry assigned to a depositor. JSON names are
// the persisted column names and must stay snake_case.
type Account struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	IFSC          string          `json:"ifsc"`
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
	BankName      string          `json:"bank_name"`
	UPIID         string          `json:"upi_id"`
	Date          string          `json:"date"`
	DepositorID   string          `json:"depositor_id"`
	CreatedBy     string          `json:"created_by"`
	Verified      bool            `json:"verified"`
}

// Status returns the depositor-facing state of the account.
func (a *Account) Status() string {
	if a.Verified {
		return StatusVerified
	}
	return StatusPending
}

// Account states observed by a depositor.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
)

// AccountFilter narrows an account query. Zero value matches everything.
type AccountFilter struct {
	DepositorID string
}

// Matches reports whether the account passes the filter.
func (f AccountFilter) Matches(a *Account) bool {
	return f.DepositorID == "" || a.DepositorID == f.DepositorID
}

// AccountPatch is the only mutation allowed after creation.
type AccountPatch struct {
	Verified *bool `json:"verified"`
}

// Identity is owned by the identity provider; the rest of the system only reads it.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsDepositor reports whether the identity holds the depositor role.
func (i *Identity) IsDepositor() bool {
	return i != nil && i.Role == RoleDepositor
}

// Label is the human readable name used in depositor selectors.
func (i *Identity) Label() string {
	switch {
	case i.Username != "" && i.Email != "":
		return i.Username + " <" + i.Email + ">"
	case i.Email != "":
		return i.Email
	case i.Username != "":
		return i.Username
	default:
		return i.ID
	}
}

// User is the write model of an identity, including its credential hash.
type User struct {
	Identity
	PasswordHash string `json:"-"`
}

// Session is an authenticated identity together with its bearer token.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Identity    Identity  `json:"identity"`
}
