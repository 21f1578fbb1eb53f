package models

import "time"

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// AdminAccountNo is the bank's operator account. It is exempt from
// freeze and adjustment and acts as the counterparty for account
// creation credits.
const AdminAccountNo = "ADMIN"

type Account struct {
	AccountNo string    `json:"accountNo" db:"account_no"`
	Role      string    `json:"role" db:"role"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Balance   int64     `json:"balance" db:"balance"` // smallest currency unit
	Frozen    bool      `json:"frozen" db:"is_frozen"`
	Version   int       `json:"-" db:"version"` // for optimistic locking
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Identity is the authenticated caller passed down from the session
// layer. The core performs no authentication itself.
type Identity struct {
	AccountNo string
	Role      string
}
