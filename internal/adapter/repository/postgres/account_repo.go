package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fundops/backoffice/internal/domain"
)

// tradingAccountRepository implements domain.TradingAccountRepository
type tradingAccountRepository struct {
	db *DB
}

// NewTradingAccountRepository creates a new trading account repository
func NewTradingAccountRepository(db *DB) domain.TradingAccountRepository {
	return &tradingAccountRepository{db: db}
}

// Upsert inserts the account or updates the row with the same name.
// The portfolio assignment is made out-of-band and is deliberately left
// untouched on update.
func (r *tradingAccountRepository) Upsert(ctx context.Context, account *domain.TradingAccount) error {
	query := `
		INSERT INTO trading_accounts (id, name, type, share_class_id, counterparty_id, portfolio_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			share_class_id = EXCLUDED.share_class_id,
			counterparty_id = EXCLUDED.counterparty_id
	`

	_, err := r.db.runner(ctx).ExecContext(ctx, query,
		account.ID,
		account.Name,
		string(account.Type),
		account.ShareClassID,
		account.CounterpartyID,
		account.PortfolioID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trading account %q: %w", account.Name, err)
	}
	return nil
}

// FindByShareClass retrieves the trading accounts for a share class,
// optionally restricted to accounts with a portfolio assignment
func (r *tradingAccountRepository) FindByShareClass(ctx context.Context, shareClassID uuid.UUID, eligibleOnly bool) ([]*domain.TradingAccount, error) {
	query := `
		SELECT id, name, type, share_class_id, counterparty_id, portfolio_id
		FROM trading_accounts
		WHERE share_class_id = $1
	`
	if eligibleOnly {
		query += ` AND portfolio_id IS NOT NULL`
	}
	query += ` ORDER BY name`

	rows, err := r.db.runner(ctx).QueryContext(ctx, query, shareClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.TradingAccount
	for rows.Next() {
		account := &domain.TradingAccount{}
		var accountType string
		if err := rows.Scan(&account.ID, &account.Name, &accountType, &account.ShareClassID, &account.CounterpartyID, &account.PortfolioID); err != nil {
			return nil, fmt.Errorf("failed to scan trading account: %w", err)
		}
		account.Type = domain.TradingAccountType(accountType)
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trading accounts: %w", err)
	}

	return accounts, nil
}

// basicAccountRepository implements domain.BasicAccountRepository
type basicAccountRepository struct {
	db *DB
}

// NewBasicAccountRepository creates a new basic account repository
func NewBasicAccountRepository(db *DB) domain.BasicAccountRepository {
	return &basicAccountRepository{db: db}
}

// Upsert inserts the account or updates the row with the same name
func (r *basicAccountRepository) Upsert(ctx context.Context, account *domain.BasicAccount) error {
	query := `
		INSERT INTO basic_accounts (id, name, share_class_id, currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			share_class_id = EXCLUDED.share_class_id,
			currency = EXCLUDED.currency
	`

	_, err := r.db.runner(ctx).ExecContext(ctx, query,
		account.ID,
		account.Name,
		account.ShareClassID,
		account.Currency,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert basic account %q: %w", account.Name, err)
	}
	return nil
}

// FindByShareClass retrieves the share class's home wallet
func (r *basicAccountRepository) FindByShareClass(ctx context.Context, shareClassID uuid.UUID) (*domain.BasicAccount, error) {
	query := `
		SELECT id, name, share_class_id, currency
		FROM basic_accounts
		WHERE share_class_id = $1
		LIMIT 1
	`

	account := &domain.BasicAccount{}
	err := r.db.runner(ctx).QueryRowContext(ctx, query, shareClassID).
		Scan(&account.ID, &account.Name, &account.ShareClassID, &account.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find basic account for share class %s: %w", shareClassID, err)
	}

	return account, nil
}

// tripartyAccountRepository implements domain.TripartyAccountRepository
type tripartyAccountRepository struct {
	db *DB
}

// NewTripartyAccountRepository creates a new triparty account repository
func NewTripartyAccountRepository(db *DB) domain.TripartyAccountRepository {
	return &tripartyAccountRepository{db: db}
}

// Upsert inserts the account or updates the row with the same name
func (r *tripartyAccountRepository) Upsert(ctx context.Context, account *domain.TripartyAccount) error {
	query := `
		INSERT INTO triparty_accounts (id, name, share_class_id, counterparty_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			share_class_id = EXCLUDED.share_class_id,
			counterparty_id = EXCLUDED.counterparty_id
	`

	_, err := r.db.runner(ctx).ExecContext(ctx, query,
		account.ID,
		account.Name,
		account.ShareClassID,
		account.CounterpartyID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert triparty account %q: %w", account.Name, err)
	}
	return nil
}
