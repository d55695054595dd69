// Package seeder ensures the fixed counterparty reference data exists at
// startup. Venue names arriving from the prime-broker feed are resolved
// against this set; an unknown venue is a data problem, not a seeding one.
package seeder

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fundops/backoffice/internal/domain"
)

// Fixed UUIDs for the built-in counterparties. Stable across environments so
// exported data can be joined between deployments.
var (
	CounterpartyHRPMaster = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	CounterpartyBinance   = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	CounterpartyZodia     = uuid.MustParse("00000000-0000-0000-0000-000000000003")
)

// SystemSeeder handles seeding of the built-in counterparties.
type SystemSeeder struct {
	repo domain.CounterpartyRepository
}

// NewSystemSeeder creates a new SystemSeeder instance.
func NewSystemSeeder(repo domain.CounterpartyRepository) *SystemSeeder {
	return &SystemSeeder{
		repo: repo,
	}
}

// Seed ensures every built-in counterparty exists, creating the missing
// ones. Safe to run on every startup.
func (s *SystemSeeder) Seed(ctx context.Context) error {
	counterparties := []domain.Counterparty{
		{ID: CounterpartyHRPMaster, Name: "HRPMASTER"},
		{ID: CounterpartyBinance, Name: "BINANCE"},
		{ID: CounterpartyZodia, Name: "ZODIA"},
	}

	for _, cp := range counterparties {
		_, err := s.repo.FindByID(ctx, cp.ID)
		if err == nil {
			continue
		}

		created := cp
		if err := s.repo.Create(ctx, &created); err != nil {
			return err
		}
		log.Info().Str("counterparty", cp.Name).Msg("seeded counterparty")
	}

	return nil
}
