package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fundops/backoffice/internal/domain"
)

// counterpartyRepository implements domain.CounterpartyRepository
type counterpartyRepository struct {
	db *DB
}

// NewCounterpartyRepository creates a new counterparty repository
func NewCounterpartyRepository(db *DB) domain.CounterpartyRepository {
	return &counterpartyRepository{db: db}
}

// FindByName retrieves a counterparty by case-insensitive exact name match
func (r *counterpartyRepository) FindByName(ctx context.Context, name string) (*domain.Counterparty, error) {
	query := `SELECT id, name FROM counterparties WHERE UPPER(name) = UPPER($1)`

	cp := &domain.Counterparty{}
	err := r.db.runner(ctx).QueryRowContext(ctx, query, name).Scan(&cp.ID, &cp.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find counterparty %q: %w", name, err)
	}

	return cp, nil
}

// FindByID retrieves a counterparty by primary key
func (r *counterpartyRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Counterparty, error) {
	query := `SELECT id, name FROM counterparties WHERE id = $1`

	cp := &domain.Counterparty{}
	err := r.db.runner(ctx).QueryRowContext(ctx, query, id).Scan(&cp.ID, &cp.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find counterparty %s: %w", id, err)
	}

	return cp, nil
}

// Create inserts a counterparty; an existing ID is left untouched
func (r *counterpartyRepository) Create(ctx context.Context, cp *domain.Counterparty) error {
	query := `
		INSERT INTO counterparties (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.runner(ctx).ExecContext(ctx, query, cp.ID, cp.Name)
	if err != nil {
		return fmt.Errorf("failed to create counterparty %q: %w", cp.Name, err)
	}

	return nil
}
