// Package scheduler coordinates the periodic account, transfer and rate
// syncs: cron registration, single-flight execution, result aggregation and
// the status/schedule queries the admin surface exposes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/fundops/backoffice/internal/domain"
	"github.com/fundops/backoffice/internal/usecase/accounts"
	"github.com/fundops/backoffice/internal/usecase/transfers"
)

// SyncType identifies one of the three scheduled pipelines.
type SyncType string

const (
	SyncAccounts  SyncType = "accounts"
	SyncTransfers SyncType = "transfers"
	SyncRates     SyncType = "rates"
)

// TenantSummary is one share class's outcome inside a run result.
type TenantSummary struct {
	ShareClass string
	Count      int
	Error      string
}

// RunResult summarizes one sync run. The most recent result per sync type is
// retained in memory for status queries; results are never persisted.
type RunResult struct {
	Type      SyncType
	StartedAt time.Time
	Duration  time.Duration
	Total     int
	Tenants   []TenantSummary
	Message   string
}

// ScheduleInfo answers a schedule query for one sync type.
type ScheduleInfo struct {
	Enabled bool
	Cron    string
	Next    time.Time
	Prev    time.Time
}

// Status answers a status query for one sync type.
type Status struct {
	Running    bool
	LastResult *RunResult
	LastRun    time.Time
	Schedule   ScheduleInfo
}

// AccountSyncer runs the account classification pass over all share classes.
type AccountSyncer interface {
	ProcessAll(ctx context.Context) []accounts.TenantResult
}

// TransferSyncer runs one transfer ingestion pass over all share classes.
type TransferSyncer interface {
	ProcessAll(ctx context.Context, window transfers.DateRange, directions ...domain.TransferDirection) []transfers.TenantResult
}

// RateSyncer repairs and refreshes the daily rate series.
type RateSyncer interface {
	RunDailySync(ctx context.Context, symbols []string, lookbackDays int) (int, error)
}

// Config carries the schedule and lookback knobs the orchestrator needs.
type Config struct {
	AccountsCron     string
	AccountsEnabled  bool
	TransfersCron    string
	TransfersEnabled bool
	RatesCron        string
	RatesEnabled     bool

	DepositLookbackDays    int
	WithdrawalLookbackDays int
	BackfillDays           int
	TrackedCurrencies      []string
}

// syncState is the per-sync mutable state. The running flag is the only
// cross-goroutine serialization point: acquired with CompareAndSwap at run
// start and released in a deferred store.
type syncState struct {
	running atomic.Bool

	mu         sync.Mutex
	lastResult *RunResult
	lastRun    time.Time
	entryID    cron.EntryID
	hasEntry   bool
	spec       string
	enabled    bool
}

// Orchestrator owns the cron runner and the three sync pipelines.
type Orchestrator struct {
	accounts  AccountSyncer
	transfers TransferSyncer
	rates     RateSyncer
	cfg       Config

	cron   *cron.Cron
	states map[SyncType]*syncState
	now    func() time.Time
}

// NewOrchestrator creates the orchestrator and registers the cron entries
// for every enabled sync. Call Start to begin periodic execution.
func NewOrchestrator(accountSyncer AccountSyncer, transferSyncer TransferSyncer, rateSyncer RateSyncer, cfg Config) (*Orchestrator, error) {
	o := &Orchestrator{
		accounts:  accountSyncer,
		transfers: transferSyncer,
		rates:     rateSyncer,
		cfg:       cfg,
		cron:      cron.New(),
		now:       time.Now,
		states: map[SyncType]*syncState{
			SyncAccounts:  {spec: cfg.AccountsCron, enabled: cfg.AccountsEnabled},
			SyncTransfers: {spec: cfg.TransfersCron, enabled: cfg.TransfersEnabled},
			SyncRates:     {spec: cfg.RatesCron, enabled: cfg.RatesEnabled},
		},
	}

	for syncType, state := range o.states {
		if !state.enabled {
			continue
		}
		if err := o.register(syncType, state); err != nil {
			return nil, err
		}
	}

	return o, nil
}

func (o *Orchestrator) register(syncType SyncType, state *syncState) error {
	st := syncType
	id, err := o.cron.AddFunc(state.spec, func() {
		if _, err := o.TriggerSync(context.Background(), st); err != nil {
			log.Warn().Err(err).Str("sync", string(st)).Msg("scheduled sync did not run")
		}
	})
	if err != nil {
		return fmt.Errorf("register %s cron %q: %w", syncType, state.spec, err)
	}
	state.entryID = id
	state.hasEntry = true
	return nil
}

// Start begins periodic execution.
func (o *Orchestrator) Start() {
	o.cron.Start()
}

// Stop halts the cron runner and waits for any in-flight scheduled run.
func (o *Orchestrator) Stop() {
	<-o.cron.Stop().Done()
}

// TriggerSync runs one sync now. A trigger while the same sync type is
// already in flight is rejected immediately with ErrAlreadyRunning; it is
// never queued. Manual triggers and cron firings share this path.
func (o *Orchestrator) TriggerSync(ctx context.Context, syncType SyncType) (*RunResult, error) {
	state, ok := o.states[syncType]
	if !ok {
		return nil, fmt.Errorf("unknown sync type %q", syncType)
	}

	if !state.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%s sync: %w", syncType, domain.ErrAlreadyRunning)
	}
	defer state.running.Store(false)

	started := o.now()
	result := o.run(ctx, syncType)
	result.Type = syncType
	result.StartedAt = started
	result.Duration = o.now().Sub(started)

	state.mu.Lock()
	state.lastResult = result
	state.lastRun = started
	state.mu.Unlock()

	log.Info().
		Str("sync", string(syncType)).
		Dur("duration", result.Duration).
		Int("total", result.Total).
		Msg("sync run finished")

	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, syncType SyncType) *RunResult {
	switch syncType {
	case SyncAccounts:
		return o.runAccounts(ctx)
	case SyncTransfers:
		return o.runTransfers(ctx)
	default:
		return o.runRates(ctx)
	}
}

func (o *Orchestrator) runAccounts(ctx context.Context) *RunResult {
	result := &RunResult{Message: "account sync completed"}
	for _, r := range o.accounts.ProcessAll(ctx) {
		summary := TenantSummary{ShareClass: r.ShareClass, Count: r.Accounts}
		if r.Err != nil {
			summary.Error = r.Err.Error()
		}
		result.Total += r.Accounts
		result.Tenants = append(result.Tenants, summary)
	}
	return result
}

// runTransfers performs deposits and withdrawals as two independent full
// passes, each with its own lookback window, then merges counts per tenant.
func (o *Orchestrator) runTransfers(ctx context.Context) *RunResult {
	now := o.now()

	depositWindow := transfers.LookbackRange(now, o.cfg.DepositLookbackDays)
	deposits := o.transfers.ProcessAll(ctx, depositWindow, domain.TransferDirectionDeposit)

	withdrawalWindow := transfers.LookbackRange(now, o.cfg.WithdrawalLookbackDays)
	withdrawals := o.transfers.ProcessAll(ctx, withdrawalWindow, domain.TransferDirectionWithdrawal)

	merged := make(map[string]*TenantSummary)
	order := make([]string, 0, len(deposits))
	for _, pass := range [][]transfers.TenantResult{deposits, withdrawals} {
		for _, r := range pass {
			summary, ok := merged[r.ShareClass]
			if !ok {
				summary = &TenantSummary{ShareClass: r.ShareClass}
				merged[r.ShareClass] = summary
				order = append(order, r.ShareClass)
			}
			summary.Count += r.Transfers
			if r.Err != nil {
				if summary.Error != "" {
					summary.Error += "; "
				}
				summary.Error += r.Err.Error()
			}
		}
	}

	result := &RunResult{Message: "transfer sync completed"}
	for _, name := range order {
		result.Total += merged[name].Count
		result.Tenants = append(result.Tenants, *merged[name])
	}
	return result
}

func (o *Orchestrator) runRates(ctx context.Context) *RunResult {
	count, err := o.rates.RunDailySync(ctx, o.cfg.TrackedCurrencies, o.cfg.BackfillDays)
	result := &RunResult{Total: count, Message: "rate sync completed"}
	if err != nil {
		result.Message = "rate sync failed"
		result.Tenants = []TenantSummary{{ShareClass: "-", Error: err.Error()}}
		log.Error().Err(err).Msg("rate sync failed")
	}
	return result
}

// GetStatus reports the running flag, last result and schedule for one sync.
func (o *Orchestrator) GetStatus(syncType SyncType) (Status, error) {
	state, ok := o.states[syncType]
	if !ok {
		return Status{}, fmt.Errorf("unknown sync type %q", syncType)
	}

	schedule, _ := o.GetSchedule(syncType)

	state.mu.Lock()
	defer state.mu.Unlock()
	return Status{
		Running:    state.running.Load(),
		LastResult: state.lastResult,
		LastRun:    state.lastRun,
		Schedule:   schedule,
	}, nil
}

// GetSchedule reports the cron expression, enabled flag and computed
// next/previous fire times for one sync.
func (o *Orchestrator) GetSchedule(syncType SyncType) (ScheduleInfo, error) {
	state, ok := o.states[syncType]
	if !ok {
		return ScheduleInfo{}, fmt.Errorf("unknown sync type %q", syncType)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	info := ScheduleInfo{Enabled: state.enabled, Cron: state.spec}
	if state.hasEntry {
		entry := o.cron.Entry(state.entryID)
		info.Next = entry.Next
		info.Prev = entry.Prev
	}
	return info, nil
}

// UpdateSchedule replaces the active timer registration for one sync at
// runtime. Disabling removes the entry; the sync stays manually triggerable.
func (o *Orchestrator) UpdateSchedule(syncType SyncType, spec string, enabled bool) error {
	state, ok := o.states[syncType]
	if !ok {
		return fmt.Errorf("unknown sync type %q", syncType)
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron %q for %s: %w", spec, syncType, err)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.hasEntry {
		o.cron.Remove(state.entryID)
		state.hasEntry = false
	}

	state.spec = spec
	state.enabled = enabled
	if !enabled {
		return nil
	}
	return o.register(syncType, state)
}
