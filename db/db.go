package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib"
)

// Initialize creates the accounts table when it does not exist yet.
func Initialize(ctx context.Context, db *sql.DB) error {
	// last_name is the account identifier; there is no surrogate key.
	queryAccounts := `
	CREATE TABLE IF NOT EXISTS accounts (
		last_name VARCHAR(255) PRIMARY KEY,
		first_name VARCHAR(255) NOT NULL,
		balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
		notification_preference VARCHAR(64) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.ExecContext(ctx, queryAccounts); err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	// Balances keep the scale they were written with; older tables declared NUMERIC(19, 4).
	if _, err := db.ExecContext(ctx, `ALTER TABLE accounts ALTER COLUMN balance TYPE NUMERIC`); err != nil {
		return fmt.Errorf("failed to widen accounts.balance: %w", err)
	}
	return nil
}

// Open connects to Postgres through the pgx stdlib driver and pings it.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}
