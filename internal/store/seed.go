package store

import (
	"context"
	"fmt"

	"github.com/citylinebank/backend/internal/bankerr"
)

// SeedAccount describes one bootstrap account.
type SeedAccount struct {
	AccountNo string
	Role      string
	Name      string
	Email     string
	Pin       string
	Balance   int64
}

// DefaultSeed is the demo data set: the operator account plus two
// customers.
var DefaultSeed = []SeedAccount{
	{AccountNo: "ADMIN", Role: "admin", Name: "Cityline Bank Operator", Email: "admin@cityline-bank.local", Pin: "0000", Balance: 0},
	{AccountNo: "1000001", Role: "customer", Name: "Kim Haneul", Email: "customer1@cityline-bank.local", Pin: "1234", Balance: 120000},
	{AccountNo: "1000002", Role: "customer", Name: "Park Soyun", Email: "customer2@cityline-bank.local", Pin: "4321", Balance: 76000},
}

// Seed inserts bootstrap accounts if they do not exist yet. Idempotent
// across restarts; existing rows are left untouched.
func (s *AccountStore) Seed(ctx context.Context, accounts []SeedAccount, hashPin func(string) (string, error)) error {
	for _, a := range accounts {
		pinHash, err := hashPin(a.Pin)
		if err != nil {
			return fmt.Errorf("seed pin hash: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO accounts (account_no, role, name, email, pin_hash, balance, is_frozen, version)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, FALSE, 1)
			ON CONFLICT (account_no) DO NOTHING`,
			a.AccountNo, a.Role, a.Name, a.Email, pinHash, a.Balance)
		if err != nil {
			return fmt.Errorf("%w: %v", bankerr.ErrStorage, err)
		}
	}
	return nil
}
