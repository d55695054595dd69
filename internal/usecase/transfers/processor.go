// Package transfers ingests deposit and withdrawal events from the
// prime-broker API, normalizes their amounts into each share class's
// denomination currency and persists them as ledger transfers.
package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fundops/backoffice/internal/domain"
)

// Converter converts an amount between currencies at a point in time.
// The boolean reports success; on failure callers keep the original amount.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, ts time.Time) (decimal.Decimal, bool)
}

// DateRange is a half-open [Start, End) ingestion window.
type DateRange struct {
	Start time.Time // inclusive
	End   time.Time // exclusive
}

// LookbackRange builds a window covering the trailing lookbackDays up to now.
func LookbackRange(now time.Time, lookbackDays int) DateRange {
	end := domain.StartOfDayUTC(now).AddDate(0, 0, 1)
	return DateRange{Start: end.AddDate(0, 0, -lookbackDays), End: end}
}

// TenantResult records one share class's transfer sync outcome.
type TenantResult struct {
	ShareClass string
	Transfers  int
	Err        error
}

// Processor fetches, converts and persists transfer events.
type Processor struct {
	ShareClassRepo   domain.ShareClassRepository
	CounterpartyRepo domain.CounterpartyRepository
	TradingRepo      domain.TradingAccountRepository
	BasicRepo        domain.BasicAccountRepository
	TransferRepo     domain.TransferRepository
	FX               Converter
	Clients          domain.BrokerClientFactory
	Tx               domain.TxManager
	TxOpts           domain.TxOptions
	BatchSize        int
}

// NewProcessor creates a new transfer processor. TxOpts should carry an
// extended execution timeout: one share class's batch can be large.
func NewProcessor(
	shareClassRepo domain.ShareClassRepository,
	counterpartyRepo domain.CounterpartyRepository,
	tradingRepo domain.TradingAccountRepository,
	basicRepo domain.BasicAccountRepository,
	transferRepo domain.TransferRepository,
	converter Converter,
	clients domain.BrokerClientFactory,
	tx domain.TxManager,
	txOpts domain.TxOptions,
	batchSize int,
) *Processor {
	return &Processor{
		ShareClassRepo:   shareClassRepo,
		CounterpartyRepo: counterpartyRepo,
		TradingRepo:      tradingRepo,
		BasicRepo:        basicRepo,
		TransferRepo:     transferRepo,
		FX:               converter,
		Clients:          clients,
		Tx:               tx,
		TxOpts:           txOpts,
		BatchSize:        batchSize,
	}
}

// ProcessTransfers ingests events for one share class over the window.
// directions defaults to both deposit and withdrawal when empty. Fetch
// failures for a single account/direction pair are logged and contribute
// zero events; only storage failures and client construction errors are
// returned. Returns the number of transfers written.
func (p *Processor) ProcessTransfers(ctx context.Context, sc *domain.ShareClass, window DateRange, directions ...domain.TransferDirection) (int, error) {
	if len(directions) == 0 {
		directions = []domain.TransferDirection{domain.TransferDirectionDeposit, domain.TransferDirectionWithdrawal}
	}

	eligible, err := p.TradingRepo.FindByShareClass(ctx, sc.ID, true)
	if err != nil {
		return 0, fmt.Errorf("find eligible trading accounts for %s: %w", sc.Name, err)
	}
	if len(eligible) == 0 {
		log.Debug().Str("share_class", sc.Name).Msg("no portfolio-assigned trading accounts, nothing to process")
		return 0, nil
	}

	basic, err := p.BasicRepo.FindByShareClass(ctx, sc.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Error().Str("share_class", sc.Name).Msg("no basic account, dropping all transfer events")
			return 0, nil
		}
		return 0, fmt.Errorf("find basic account for %s: %w", sc.Name, err)
	}

	client, err := p.Clients.ClientFor(sc)
	if err != nil {
		return 0, fmt.Errorf("broker client for %s: %w", sc.Name, err)
	}

	var batch []*domain.Transfer
	for _, account := range eligible {
		for _, direction := range directions {
			events := p.fetchEvents(ctx, client, sc, account, window, direction)
			for _, event := range events {
				transfer, err := p.buildTransfer(ctx, sc, account, basic, event, direction)
				if err != nil {
					log.Warn().Err(err).
						Str("share_class", sc.Name).
						Str("event_id", event.ID).
						Msg("excluding malformed transfer event from batch")
					continue
				}
				batch = append(batch, transfer)
			}
		}
	}

	if len(batch) == 0 {
		return 0, nil
	}

	written, err := p.TransferRepo.CreateBatch(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("persist transfer batch for %s: %w", sc.Name, err)
	}
	return written, nil
}

// fetchEvents pulls one account/direction pair. Any fetch failure, venue
// resolution included, yields zero events for that pair and never aborts the
// other accounts.
func (p *Processor) fetchEvents(ctx context.Context, client domain.BrokerAPI, sc *domain.ShareClass, account *domain.TradingAccount, window DateRange, direction domain.TransferDirection) []domain.TransferEvent {
	counterparty, err := p.CounterpartyRepo.FindByID(ctx, account.CounterpartyID)
	if err != nil {
		log.Warn().Err(err).
			Str("share_class", sc.Name).
			Str("account", account.Name).
			Msg("cannot resolve venue for account, treating as zero events")
		return nil
	}

	query := domain.TransferQuery{
		Venue:    counterparty.Name,
		Account:  account.Name,
		Start:    window.Start,
		End:      window.End,
		PageSize: p.BatchSize,
	}

	var events []domain.TransferEvent
	if direction == domain.TransferDirectionDeposit {
		events, err = client.FetchDeposits(ctx, query)
	} else {
		events, err = client.FetchWithdrawals(ctx, query)
	}
	if err != nil {
		log.Warn().Err(err).
			Str("share_class", sc.Name).
			Str("account", account.Name).
			Str("direction", string(direction)).
			Msg("transfer fetch failed, treating as zero events")
		return nil
	}
	return events
}

// buildTransfer converts one raw event into a persistable transfer, applying
// the currency normalization fallback and the directional invariant.
func (p *Processor) buildTransfer(ctx context.Context, sc *domain.ShareClass, account *domain.TradingAccount, basic *domain.BasicAccount, event domain.TransferEvent, direction domain.TransferDirection) (*domain.Transfer, error) {
	if event.ID == "" {
		return nil, errors.New("event has no external id")
	}

	amount, converted := p.FX.Convert(ctx, event.Quantity, event.Asset, sc.Currency, event.TransferTime)
	if !converted {
		// No applicable rate: keep the original quantity and flag the record
		// so reporting can tell normalized amounts from raw ones.
		amount = event.Quantity
		log.Warn().
			Str("share_class", sc.Name).
			Str("asset", event.Asset).
			Str("event_id", event.ID).
			Msg("currency conversion failed, storing original amount unconverted")
	}

	transfer := &domain.Transfer{
		ID:            uuid.New(),
		ExternalRef:   event.ID,
		Amount:        amount,
		Currency:      sc.Currency,
		SourceAsset:   event.Asset,
		Converted:     converted,
		ValuedAt:      event.EventTime,
		TransferredAt: event.TransferTime,
	}

	switch direction {
	case domain.TransferDirectionDeposit:
		transfer.FromAccountKind = domain.AccountKindBasic
		transfer.FromAccountID = basic.ID
		transfer.ToAccountKind = domain.AccountKindTrading
		transfer.ToAccountID = account.ID
	case domain.TransferDirectionWithdrawal:
		transfer.FromAccountKind = domain.AccountKindTrading
		transfer.FromAccountID = account.ID
		transfer.ToAccountKind = domain.AccountKindBasic
		transfer.ToAccountID = basic.ID
	}

	if err := transfer.Validate(direction); err != nil {
		return nil, err
	}
	return transfer, nil
}

// ProcessAll ingests one direction (or both) for every credentialed share
// class, each inside its own transaction. Share classes run strictly
// sequentially; a failed transaction yields a zero-count result entry with
// the error attached and the remaining share classes still run.
func (p *Processor) ProcessAll(ctx context.Context, window DateRange, directions ...domain.TransferDirection) []TenantResult {
	shareClasses, err := p.ShareClassRepo.FindWithCredentials(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list share classes for transfer sync")
		return nil
	}

	results := make([]TenantResult, 0, len(shareClasses))
	for _, sc := range shareClasses {
		var count int
		txErr := p.Tx.RunInTransaction(ctx, p.TxOpts, func(txCtx context.Context) error {
			var err error
			count, err = p.ProcessTransfers(txCtx, sc, window, directions...)
			return err
		})
		if txErr != nil {
			log.Error().Err(txErr).
				Str("share_class", sc.Name).
				Time("window_start", window.Start).
				Time("window_end", window.End).
				Msg("transfer sync failed for share class")
			results = append(results, TenantResult{ShareClass: sc.Name, Err: txErr})
			continue
		}
		results = append(results, TenantResult{ShareClass: sc.Name, Transfers: count})
	}

	return results
}
