// Package db holds the account store contract and its implementations.
package db

import (
	"context"
	"errors"

	"github.com/yashasviy/bank-ledger-api/models"
)

// ErrNotFound is returned by FindByLastName when no account has the given identifier.
var ErrNotFound = errors.New("account not found")

// AccountStore is the durable mapping from last name to account.
//
// Implementations hand out copies: mutating a returned account never changes
// stored state until it is passed back to Save.
type AccountStore interface {
	FindByLastName(ctx context.Context, lastName string) (*models.Account, error)
	// Save inserts or replaces the account and returns the persisted record.
	Save(ctx context.Context, account *models.Account) (*models.Account, error)
}
