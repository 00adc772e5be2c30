package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/yashasviy/bank-ledger-api/models"
)

// PostgresStore persists accounts in the accounts table created by Initialize.
type PostgresStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ AccountStore = (*PostgresStore)(nil)

// NewPostgresStore returns a store over an open database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// FindByLastName loads one account or returns ErrNotFound.
func (s *PostgresStore) FindByLastName(ctx context.Context, lastName string) (*models.Account, error) {
	query, args, err := s.sb.
		Select("first_name", "last_name", "balance", "notification_preference").
		From("accounts").
		Where(sq.Eq{"last_name": lastName}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build account query: %w", err)
	}

	var account models.Account
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&account.FirstName, &account.LastName, &account.Balance, &account.NotificationPreference,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", lastName, err)
	}
	return &account, nil
}

// Save inserts account or updates the balance of the existing row, returning what was stored.
func (s *PostgresStore) Save(ctx context.Context, account *models.Account) (*models.Account, error) {
	query, args, err := s.sb.
		Insert("accounts").
		Columns("last_name", "first_name", "balance", "notification_preference").
		Values(account.LastName, account.FirstName, account.Balance, account.NotificationPreference).
		Suffix(`ON CONFLICT (last_name) DO UPDATE
			SET balance = EXCLUDED.balance, updated_at = NOW()
			RETURNING first_name, last_name, balance, notification_preference`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build save statement: %w", err)
	}

	var saved models.Account
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&saved.FirstName, &saved.LastName, &saved.Balance, &saved.NotificationPreference,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save account %s: %w", account.LastName, err)
	}
	return &saved, nil
}
