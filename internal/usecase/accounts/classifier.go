// Package accounts classifies raw prime-broker account strings into ledger
// accounts and keeps the ledger in sync with what the broker reports.
//
// A raw account string has the shape "name:suffix". The name decides the
// kind: a provider-issued "hrp<digits>" identifier marks a trading account,
// the ZODIA custodian venue marks a triparty account, anything else is a
// basic (home wallet) account.
package accounts

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fundops/backoffice/internal/domain"
)

// tripartyVenue is the distinguished tri-party custodian venue name.
const tripartyVenue = "ZODIA"

// hrpPattern matches a provider-issued trading account identifier: "hrp"
// immediately followed by one or more digits, anywhere in the name.
var hrpPattern = regexp.MustCompile(`(?i)hrp[0-9]+`)

// Classification is the outcome of classifying one raw account string.
type Classification struct {
	Kind        domain.AccountKind
	Name        string // substring before the first colon
	TradingType domain.TradingAccountType
}

// Classify parses and classifies a raw account string for a venue. Returns
// ErrMalformedAccount when the string has no colon separator or an empty
// name before it.
func Classify(raw, venue string) (Classification, error) {
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		return Classification{}, fmt.Errorf("%w: %q", domain.ErrMalformedAccount, raw)
	}
	name := raw[:idx]

	c := Classification{Name: name}
	switch {
	case hrpPattern.MatchString(name):
		c.Kind = domain.AccountKindTrading
		c.TradingType = domain.TradingAccountTypeOther
		// The FUNDING marker sits in the descriptive part after the colon,
		// so match against the whole raw string.
		if strings.Contains(strings.ToUpper(raw), "FUNDING") {
			c.TradingType = domain.TradingAccountTypeFunding
		}
	case strings.EqualFold(venue, tripartyVenue):
		c.Kind = domain.AccountKindTriparty
	default:
		c.Kind = domain.AccountKindBasic
	}

	return c, nil
}

// TenantResult records one share class's account sync outcome.
type TenantResult struct {
	ShareClass string
	Accounts   int
	Err        error
}

// Service fetches remote accounts per share class, classifies them and
// upserts the corresponding ledger records.
type Service struct {
	ShareClassRepo   domain.ShareClassRepository
	CounterpartyRepo domain.CounterpartyRepository
	TradingRepo      domain.TradingAccountRepository
	BasicRepo        domain.BasicAccountRepository
	TripartyRepo     domain.TripartyAccountRepository
	Clients          domain.BrokerClientFactory
	Tx               domain.TxManager
	TxOpts           domain.TxOptions
}

// NewService creates a new account classification service.
func NewService(
	shareClassRepo domain.ShareClassRepository,
	counterpartyRepo domain.CounterpartyRepository,
	tradingRepo domain.TradingAccountRepository,
	basicRepo domain.BasicAccountRepository,
	tripartyRepo domain.TripartyAccountRepository,
	clients domain.BrokerClientFactory,
	tx domain.TxManager,
	txOpts domain.TxOptions,
) *Service {
	return &Service{
		ShareClassRepo:   shareClassRepo,
		CounterpartyRepo: counterpartyRepo,
		TradingRepo:      tradingRepo,
		BasicRepo:        basicRepo,
		TripartyRepo:     tripartyRepo,
		Clients:          clients,
		Tx:               tx,
		TxOpts:           txOpts,
	}
}

// ProcessShareClass lists the share class's remote accounts and persists each
// independently. One malformed or unresolvable account never stops the rest;
// it is logged and skipped. Returns the number of accounts persisted.
func (s *Service) ProcessShareClass(ctx context.Context, sc *domain.ShareClass) (int, error) {
	client, err := s.Clients.ClientFor(sc)
	if err != nil {
		return 0, fmt.Errorf("broker client for %s: %w", sc.Name, err)
	}

	remotes, err := client.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts for %s: %w", sc.Name, err)
	}

	persisted := 0
	for _, remote := range remotes {
		if err := s.persistOne(ctx, sc, remote); err != nil {
			log.Warn().Err(err).
				Str("share_class", sc.Name).
				Str("account", remote.Account).
				Str("venue", remote.Venue).
				Msg("skipping account")
			continue
		}
		persisted++
	}

	return persisted, nil
}

func (s *Service) persistOne(ctx context.Context, sc *domain.ShareClass, remote domain.RemoteAccount) error {
	c, err := Classify(remote.Account, remote.Venue)
	if err != nil {
		return err
	}

	switch c.Kind {
	case domain.AccountKindTrading:
		cp, err := s.CounterpartyRepo.FindByName(ctx, remote.Venue)
		if err != nil {
			return fmt.Errorf("%w: venue %q", domain.ErrUnknownCounterparty, remote.Venue)
		}
		return s.TradingRepo.Upsert(ctx, &domain.TradingAccount{
			ID:             uuid.New(),
			Name:           c.Name,
			Type:           c.TradingType,
			ShareClassID:   sc.ID,
			CounterpartyID: cp.ID,
		})

	case domain.AccountKindTriparty:
		cp, err := s.CounterpartyRepo.FindByName(ctx, tripartyVenue)
		if err != nil {
			return fmt.Errorf("%w: venue %q", domain.ErrUnknownCounterparty, tripartyVenue)
		}
		return s.TripartyRepo.Upsert(ctx, &domain.TripartyAccount{
			ID:             uuid.New(),
			Name:           c.Name,
			ShareClassID:   sc.ID,
			CounterpartyID: cp.ID,
		})

	default:
		return s.BasicRepo.Upsert(ctx, &domain.BasicAccount{
			ID:           uuid.New(),
			Name:         c.Name,
			ShareClassID: sc.ID,
			Currency:     sc.Currency,
		})
	}
}

// ProcessAll runs account classification for every credentialed share class,
// each inside its own transaction. A failed share class yields a result entry
// with the error attached and does not affect the others.
func (s *Service) ProcessAll(ctx context.Context) []TenantResult {
	shareClasses, err := s.ShareClassRepo.FindWithCredentials(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list share classes for account sync")
		return nil
	}

	results := make([]TenantResult, 0, len(shareClasses))
	for _, sc := range shareClasses {
		var count int
		txErr := s.Tx.RunInTransaction(ctx, s.TxOpts, func(txCtx context.Context) error {
			var err error
			count, err = s.ProcessShareClass(txCtx, sc)
			return err
		})
		if txErr != nil {
			log.Error().Err(txErr).Str("share_class", sc.Name).Msg("account sync failed for share class")
			results = append(results, TenantResult{ShareClass: sc.Name, Err: txErr})
			continue
		}
		results = append(results, TenantResult{ShareClass: sc.Name, Accounts: count})
	}

	return results
}
