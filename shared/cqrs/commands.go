package cqrs

import "github.com/shopspring/decimal"

type CreateUserCommand struct {
	Email    string
	Username string
	Password string
	Role     string
}

// CreateAccountCommand registers a new account and assigns it to a depositor.
// Date is optional; the store uses the current UTC date when it is empty.
type CreateAccountCommand struct {
	RequestingUserID string
	Amount           decimal.Decimal
	BankName         string
	IFSC             string
	AccountNumber    string
	AccountName      string
	UPIID            string
	Date             string
	DepositorID      string
}

// SetVerifiedCommand is the only update an account accepts.
type SetVerifiedCommand struct {
	AccountID        string
	RequestingUserID string
	RequestingRole   string
	Verified         bool
}

type DeleteAccountCommand struct {
	AccountID        string
	RequestingUserID string
}

type SignInCommand struct {
	Email    string
	Password string
}

type RefreshTokenCommand struct {
	Token string
}

type SignOutCommand struct {
	UserID    string
	TokenID   string
	ExpiresAt int64
}
