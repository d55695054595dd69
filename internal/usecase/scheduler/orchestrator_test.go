package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundops/backoffice/internal/domain"
	"github.com/fundops/backoffice/internal/usecase/accounts"
	"github.com/fundops/backoffice/internal/usecase/transfers"
)

// stubAccountSyncer returns canned results, optionally blocking until
// released to let tests hold a run in flight.
type stubAccountSyncer struct {
	results []accounts.TenantResult
	block   chan struct{}
	calls   int
	mu      sync.Mutex
}

func (s *stubAccountSyncer) ProcessAll(ctx context.Context) []accounts.TenantResult {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return s.results
}

type transferPass struct {
	window     transfers.DateRange
	directions []domain.TransferDirection
}

// stubTransferSyncer records each pass and returns canned results keyed by
// direction.
type stubTransferSyncer struct {
	byDirection map[domain.TransferDirection][]transfers.TenantResult
	passes      []transferPass
}

func (s *stubTransferSyncer) ProcessAll(ctx context.Context, window transfers.DateRange, directions ...domain.TransferDirection) []transfers.TenantResult {
	s.passes = append(s.passes, transferPass{window: window, directions: directions})
	if len(directions) == 1 {
		return s.byDirection[directions[0]]
	}
	return nil
}

type stubRateSyncer struct {
	count int
	err   error
}

func (s *stubRateSyncer) RunDailySync(ctx context.Context, symbols []string, lookbackDays int) (int, error) {
	return s.count, s.err
}

func testConfig() Config {
	return Config{
		AccountsCron:           "0 2 * * *",
		AccountsEnabled:        true,
		TransfersCron:          "30 2 * * *",
		TransfersEnabled:       true,
		RatesCron:              "0 1 * * *",
		RatesEnabled:           true,
		DepositLookbackDays:    3,
		WithdrawalLookbackDays: 7,
		BackfillDays:           30,
		TrackedCurrencies:      []string{"BTC", "ETH"},
	}
}

func TestTriggerSync_RecordsResultAndTimestamp(t *testing.T) {
	accountsStub := &stubAccountSyncer{results: []accounts.TenantResult{
		{ShareClass: "ALPHA-USD", Accounts: 3},
		{ShareClass: "BETA-EUR", Err: errors.New("tx failed")},
	}}

	o, err := NewOrchestrator(accountsStub, &stubTransferSyncer{}, &stubRateSyncer{}, testConfig())
	require.NoError(t, err)

	result, err := o.TriggerSync(context.Background(), SyncAccounts)

	require.NoError(t, err)
	assert.Equal(t, SyncAccounts, result.Type)
	assert.Equal(t, 3, result.Total)
	require.Len(t, result.Tenants, 2)
	assert.Empty(t, result.Tenants[0].Error)
	assert.Equal(t, "tx failed", result.Tenants[1].Error)

	status, err := o.GetStatus(SyncAccounts)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, result, status.LastResult)
	assert.False(t, status.LastRun.IsZero())
}

func TestTriggerSync_RejectsWhileRunning(t *testing.T) {
	block := make(chan struct{})
	accountsStub := &stubAccountSyncer{block: block}

	o, err := NewOrchestrator(accountsStub, &stubTransferSyncer{}, &stubRateSyncer{}, testConfig())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.TriggerSync(context.Background(), SyncAccounts)
	}()

	// Wait until the first run holds the flag.
	require.Eventually(t, func() bool {
		status, _ := o.GetStatus(SyncAccounts)
		return status.Running
	}, time.Second, time.Millisecond)

	_, err = o.TriggerSync(context.Background(), SyncAccounts)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	// The in-flight run was not affected by the rejected trigger.
	close(block)
	<-done
	assert.Equal(t, 1, accountsStub.calls)
}

func TestTriggerSync_DifferentSyncTypesDoNotBlockEachOther(t *testing.T) {
	block := make(chan struct{})
	accountsStub := &stubAccountSyncer{block: block}

	o, err := NewOrchestrator(accountsStub, &stubTransferSyncer{}, &stubRateSyncer{count: 4}, testConfig())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.TriggerSync(context.Background(), SyncAccounts)
	}()

	require.Eventually(t, func() bool {
		status, _ := o.GetStatus(SyncAccounts)
		return status.Running
	}, time.Second, time.Millisecond)

	result, err := o.TriggerSync(context.Background(), SyncRates)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)

	close(block)
	<-done
}

func TestRunTransfers_TwoPassesWithSeparateLookbacksMergedPerTenant(t *testing.T) {
	transferStub := &stubTransferSyncer{byDirection: map[domain.TransferDirection][]transfers.TenantResult{
		domain.TransferDirectionDeposit: {
			{ShareClass: "ALPHA-USD", Transfers: 2},
			{ShareClass: "BETA-EUR", Transfers: 1},
		},
		domain.TransferDirectionWithdrawal: {
			{ShareClass: "ALPHA-USD", Transfers: 3},
			{ShareClass: "BETA-EUR", Err: errors.New("timeout")},
		},
	}}

	o, err := NewOrchestrator(&stubAccountSyncer{}, transferStub, &stubRateSyncer{}, testConfig())
	require.NoError(t, err)

	result, err := o.TriggerSync(context.Background(), SyncTransfers)
	require.NoError(t, err)

	require.Len(t, transferStub.passes, 2)
	assert.Equal(t, []domain.TransferDirection{domain.TransferDirectionDeposit}, transferStub.passes[0].directions)
	assert.Equal(t, []domain.TransferDirection{domain.TransferDirectionWithdrawal}, transferStub.passes[1].directions)

	// Deposit window trails 3 days, withdrawal window 7: different starts,
	// same end.
	depositSpan := transferStub.passes[0].window.End.Sub(transferStub.passes[0].window.Start)
	withdrawalSpan := transferStub.passes[1].window.End.Sub(transferStub.passes[1].window.Start)
	assert.Equal(t, 3*24*time.Hour, depositSpan)
	assert.Equal(t, 7*24*time.Hour, withdrawalSpan)

	assert.Equal(t, 6, result.Total)
	require.Len(t, result.Tenants, 2)
	assert.Equal(t, "ALPHA-USD", result.Tenants[0].ShareClass)
	assert.Equal(t, 5, result.Tenants[0].Count)
	assert.Equal(t, "BETA-EUR", result.Tenants[1].ShareClass)
	assert.Equal(t, 1, result.Tenants[1].Count)
	assert.Equal(t, "timeout", result.Tenants[1].Error)
}

func TestRunRates_ErrorRecordedNotPropagated(t *testing.T) {
	o, err := NewOrchestrator(&stubAccountSyncer{}, &stubTransferSyncer{}, &stubRateSyncer{err: errors.New("quote api down")}, testConfig())
	require.NoError(t, err)

	result, err := o.TriggerSync(context.Background(), SyncRates)

	require.NoError(t, err)
	assert.Equal(t, "rate sync failed", result.Message)
	require.Len(t, result.Tenants, 1)
	assert.Contains(t, result.Tenants[0].Error, "quote api down")
}

func TestGetSchedule_ReportsCronAndEnabled(t *testing.T) {
	o, err := NewOrchestrator(&stubAccountSyncer{}, &stubTransferSyncer{}, &stubRateSyncer{}, testConfig())
	require.NoError(t, err)

	info, err := o.GetSchedule(SyncAccounts)
	require.NoError(t, err)
	assert.True(t, info.Enabled)
	assert.Equal(t, "0 2 * * *", info.Cron)
}

func TestUpdateSchedule_ReplacesRegistration(t *testing.T) {
	o, err := NewOrchestrator(&stubAccountSyncer{}, &stubTransferSyncer{}, &stubRateSyncer{}, testConfig())
	require.NoError(t, err)

	require.NoError(t, o.UpdateSchedule(SyncAccounts, "15 4 * * *", true))

	info, err := o.GetSchedule(SyncAccounts)
	require.NoError(t, err)
	assert.True(t, info.Enabled)
	assert.Equal(t, "15 4 * * *", info.Cron)
}

func TestUpdateSchedule_DisableRemovesEntryButKeepsManualTrigger(t *testing.T) {
	accountsStub := &stubAccountSyncer{results: []accounts.TenantResult{{ShareClass: "ALPHA-USD", Accounts: 1}}}
	o, err := NewOrchestrator(accountsStub, &stubTransferSyncer{}, &stubRateSyncer{}, testConfig())
	require.NoError(t, err)

	require.NoError(t, o.UpdateSchedule(SyncAccounts, "0 2 * * *", false))

	info, err := o.GetSchedule(SyncAccounts)
	require.NoError(t, err)
	assert.False(t, info.Enabled)

	result, err := o.TriggerSync(context.Background(), SyncAccounts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

func TestUpdateSchedule_InvalidCronRejected(t *testing.T) {
	o, err := NewOrchestrator(&stubAccountSyncer{}, &stubTransferSyncer{}, &stubRateSyncer{}, testConfig())
	require.NoError(t, err)

	assert.Error(t, o.UpdateSchedule(SyncAccounts, "not a cron", true))
}

func TestNewOrchestrator_InvalidCronFails(t *testing.T) {
	cfg := testConfig()
	cfg.AccountsCron = "nope"

	_, err := NewOrchestrator(&stubAccountSyncer{}, &stubTransferSyncer{}, &stubRateSyncer{}, cfg)
	assert.Error(t, err)
}
