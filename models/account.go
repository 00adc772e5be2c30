package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrWouldOverdraw is returned when a withdrawal would take the balance below zero.
var ErrWouldOverdraw = errors.New("withdrawal exceeds balance")

// Account is the balance-bearing record. LastName is its unique identifier.
type Account struct {
	FirstName              string
	LastName               string
	Balance                decimal.Decimal
	NotificationPreference string
}

// NewAccount returns an account with a zero balance.
func NewAccount(firstName, lastName, preference string) *Account {
	return &Account{
		FirstName:              firstName,
		LastName:               lastName,
		Balance:                decimal.Zero,
		NotificationPreference: preference,
	}
}

// CanWithdraw reports whether amount can be taken without going negative.
// Withdrawing the whole balance is allowed.
func (a *Account) CanWithdraw(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(a.Balance)
}

// Deposit adds amount to the balance.
func (a *Account) Deposit(amount decimal.Decimal) {
	a.Balance = a.Balance.Add(amount)
}

// Withdraw subtracts amount from the balance, leaving it untouched on ErrWouldOverdraw.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if !a.CanWithdraw(amount) {
		return ErrWouldOverdraw
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Clone returns a copy that shares no state with a.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// View converts the account to its API representation.
func (a *Account) View() *AccountView {
	return &AccountView{
		FirstName:              a.FirstName,
		LastName:               a.LastName,
		Balance:                a.Balance,
		NotificationPreference: a.NotificationPreference,
	}
}

// AccountView is what every account operation returns to the caller.
type AccountView struct {
	FirstName              string          `json:"firstName"`
	LastName               string          `json:"lastName"`
	Balance                decimal.Decimal `json:"balance"`
	NotificationPreference string          `json:"notificationPreference"`
}
