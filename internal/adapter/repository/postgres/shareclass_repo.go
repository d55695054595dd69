package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fundops/backoffice/internal/domain"
)

// shareClassRepository implements domain.ShareClassRepository
type shareClassRepository struct {
	db *DB
}

// NewShareClassRepository creates a new share class repository
func NewShareClassRepository(db *DB) domain.ShareClassRepository {
	return &shareClassRepository{db: db}
}

// FindWithCredentials retrieves every share class with a non-empty
// client id and secret
func (r *shareClassRepository) FindWithCredentials(ctx context.Context) ([]*domain.ShareClass, error) {
	query := `
		SELECT id, name, currency, client_id, client_secret, COALESCE(audience, '')
		FROM share_classes
		WHERE client_id <> '' AND client_secret <> ''
		ORDER BY name
	`

	rows, err := r.db.runner(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query share classes: %w", err)
	}
	defer rows.Close()

	var shareClasses []*domain.ShareClass
	for rows.Next() {
		sc := &domain.ShareClass{}
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Currency, &sc.ClientID, &sc.ClientSecret, &sc.Audience); err != nil {
			return nil, fmt.Errorf("failed to scan share class: %w", err)
		}
		shareClasses = append(shareClasses, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate share classes: %w", err)
	}

	return shareClasses, nil
}

// FindByName retrieves a share class by its unique name
func (r *shareClassRepository) FindByName(ctx context.Context, name string) (*domain.ShareClass, error) {
	query := `
		SELECT id, name, currency, client_id, client_secret, COALESCE(audience, '')
		FROM share_classes
		WHERE name = $1
	`

	sc := &domain.ShareClass{}
	err := r.db.runner(ctx).QueryRowContext(ctx, query, name).
		Scan(&sc.ID, &sc.Name, &sc.Currency, &sc.ClientID, &sc.ClientSecret, &sc.Audience)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find share class %q: %w", name, err)
	}

	return sc, nil
}
