package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/fundops/backoffice/internal/domain"
)

// transferRepository implements domain.TransferRepository
type transferRepository struct {
	db *DB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *DB) domain.TransferRepository {
	return &transferRepository{db: db}
}

// transferColumns is the insert column list for one transfer row.
const transferColumns = 12

// CreateBatch inserts all transfers in a single multi-row statement.
// The unique index on external_ref makes reprocessing a window idempotent:
// rows for already-ingested events are dropped by ON CONFLICT DO NOTHING.
// Returns the number of rows actually written.
func (r *transferRepository) CreateBatch(ctx context.Context, transfers []*domain.Transfer) (int, error) {
	if len(transfers) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(transfers))
	args := make([]any, 0, len(transfers)*transferColumns)
	for i, t := range transfers {
		base := i * transferColumns
		marks := make([]string, transferColumns)
		for j := range marks {
			marks[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")
		args = append(args,
			t.ID,
			t.ExternalRef,
			t.Amount.String(),
			t.Currency,
			t.SourceAsset,
			t.Converted,
			string(t.FromAccountKind),
			t.FromAccountID,
			string(t.ToAccountKind),
			t.ToAccountID,
			t.ValuedAt,
			t.TransferredAt,
		)
	}

	query := `
		INSERT INTO transfers (
			id, external_ref, amount, currency, source_asset, converted,
			from_account_kind, from_account_id, to_account_kind, to_account_id,
			valued_at, transferred_at
		) VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (external_ref) DO NOTHING
	`

	result, err := r.db.runner(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transfer batch: %w", err)
	}

	written, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count inserted transfers: %w", err)
	}
	return int(written), nil
}
