package transfers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fundops/backoffice/internal/domain"
)

// MockShareClassRepository is a mock implementation of ShareClassRepository for testing
type MockShareClassRepository struct {
	mock.Mock
}

func (m *MockShareClassRepository) FindWithCredentials(ctx context.Context) ([]*domain.ShareClass, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ShareClass), args.Error(1)
}

func (m *MockShareClassRepository) FindByName(ctx context.Context, name string) (*domain.ShareClass, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShareClass), args.Error(1)
}

// MockCounterpartyRepository is a mock implementation of CounterpartyRepository for testing
type MockCounterpartyRepository struct {
	mock.Mock
}

func (m *MockCounterpartyRepository) FindByName(ctx context.Context, name string) (*domain.Counterparty, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Counterparty), args.Error(1)
}

func (m *MockCounterpartyRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Counterparty, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Counterparty), args.Error(1)
}

func (m *MockCounterpartyRepository) Create(ctx context.Context, cp *domain.Counterparty) error {
	args := m.Called(ctx, cp)
	return args.Error(0)
}

// MockTradingAccountRepository is a mock implementation of TradingAccountRepository for testing
type MockTradingAccountRepository struct {
	mock.Mock
}

func (m *MockTradingAccountRepository) Upsert(ctx context.Context, account *domain.TradingAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockTradingAccountRepository) FindByShareClass(ctx context.Context, shareClassID uuid.UUID, eligibleOnly bool) ([]*domain.TradingAccount, error) {
	args := m.Called(ctx, shareClassID, eligibleOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TradingAccount), args.Error(1)
}

// MockBasicAccountRepository is a mock implementation of BasicAccountRepository for testing
type MockBasicAccountRepository struct {
	mock.Mock
}

func (m *MockBasicAccountRepository) Upsert(ctx context.Context, account *domain.BasicAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockBasicAccountRepository) FindByShareClass(ctx context.Context, shareClassID uuid.UUID) (*domain.BasicAccount, error) {
	args := m.Called(ctx, shareClassID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BasicAccount), args.Error(1)
}

// MockTransferRepository is a mock implementation of TransferRepository for testing
type MockTransferRepository struct {
	mock.Mock
}

func (m *MockTransferRepository) CreateBatch(ctx context.Context, transfers []*domain.Transfer) (int, error) {
	args := m.Called(ctx, transfers)
	return args.Int(0), args.Error(1)
}

// MockBrokerAPI is a mock implementation of BrokerAPI for testing
type MockBrokerAPI struct {
	mock.Mock
}

func (m *MockBrokerAPI) ListAccounts(ctx context.Context) ([]domain.RemoteAccount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RemoteAccount), args.Error(1)
}

func (m *MockBrokerAPI) FetchDeposits(ctx context.Context, q domain.TransferQuery) ([]domain.TransferEvent, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TransferEvent), args.Error(1)
}

func (m *MockBrokerAPI) FetchWithdrawals(ctx context.Context, q domain.TransferQuery) ([]domain.TransferEvent, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TransferEvent), args.Error(1)
}

// stubClientFactory hands out a fixed BrokerAPI regardless of share class.
type stubClientFactory struct {
	api domain.BrokerAPI
	err error
}

func (f stubClientFactory) ClientFor(sc *domain.ShareClass) (domain.BrokerAPI, error) {
	return f.api, f.err
}

func (f stubClientFactory) Invalidate(string) {}

// stubConverter converts at a fixed rate, or reports failure when ok is false.
type stubConverter struct {
	rate decimal.Decimal
	ok   bool
}

func (c stubConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, ts time.Time) (decimal.Decimal, bool) {
	if !c.ok {
		return decimal.Decimal{}, false
	}
	return amount.Mul(c.rate), true
}

// passthroughTx runs the function without any real transaction.
type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, opts domain.TxOptions, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	sc       *domain.ShareClass
	venue    *domain.Counterparty
	trading  *domain.TradingAccount
	basic    *domain.BasicAccount
	cpRepo   *MockCounterpartyRepository
	trRepo   *MockTradingAccountRepository
	baRepo   *MockBasicAccountRepository
	xferRepo *MockTransferRepository
	broker   *MockBrokerAPI
}

func newFixture(ctx context.Context) *fixture {
	portfolioID := uuid.New()
	f := &fixture{
		sc:    &domain.ShareClass{ID: uuid.New(), Name: "ALPHA-USD", Currency: "USD", ClientID: "c", ClientSecret: "s"},
		venue: &domain.Counterparty{ID: uuid.New(), Name: "BINANCE"},
	}
	f.trading = &domain.TradingAccount{
		ID:             uuid.New(),
		Name:           "hrp1234567890",
		Type:           domain.TradingAccountTypeFunding,
		ShareClassID:   f.sc.ID,
		CounterpartyID: f.venue.ID,
		PortfolioID:    &portfolioID,
	}
	f.basic = &domain.BasicAccount{ID: uuid.New(), Name: "alpha-wallet", ShareClassID: f.sc.ID, Currency: "USD"}

	f.cpRepo = new(MockCounterpartyRepository)
	f.cpRepo.On("FindByID", ctx, f.venue.ID).Return(f.venue, nil).Maybe()

	f.trRepo = new(MockTradingAccountRepository)
	f.trRepo.On("FindByShareClass", ctx, f.sc.ID, true).Return([]*domain.TradingAccount{f.trading}, nil).Maybe()

	f.baRepo = new(MockBasicAccountRepository)
	f.baRepo.On("FindByShareClass", ctx, f.sc.ID).Return(f.basic, nil).Maybe()

	f.xferRepo = new(MockTransferRepository)
	f.broker = new(MockBrokerAPI)
	return f
}

func (f *fixture) processor() *Processor {
	return NewProcessor(nil, f.cpRepo, f.trRepo, f.baRepo, f.xferRepo,
		stubConverter{rate: decimal.NewFromInt(45000), ok: true},
		stubClientFactory{api: f.broker}, passthroughTx{}, domain.TxOptions{}, 500)
}

func testWindow() DateRange {
	end := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	return DateRange{Start: end.AddDate(0, 0, -3), End: end}
}

func depositEvent(id string, qty string) domain.TransferEvent {
	return domain.TransferEvent{
		ID:           id,
		Quantity:     decimal.RequireFromString(qty),
		Asset:        "BTC",
		EventTime:    time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		TransferTime: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Venue:        "BINANCE",
		Account:      "hrp1234567890",
	}
}

func TestProcessTransfers_DepositConvertedAndDirectional(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx)

	f.broker.On("FetchDeposits", ctx, mock.AnythingOfType("domain.TransferQuery")).
		Return([]domain.TransferEvent{depositEvent("evt-1", "1.5")}, nil)

	var batch []*domain.Transfer
	f.xferRepo.On("CreateBatch", ctx, mock.AnythingOfType("[]*domain.Transfer")).
		Run(func(args mock.Arguments) { batch = args.Get(1).([]*domain.Transfer) }).
		Return(1, nil)

	count, err := f.processor().ProcessTransfers(ctx, f.sc, testWindow(), domain.TransferDirectionDeposit)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, batch, 1)

	tr := batch[0]
	assert.True(t, decimal.RequireFromString("67500").Equal(tr.Amount))
	assert.Equal(t, "USD", tr.Currency)
	assert.True(t, tr.Converted)
	assert.Equal(t, "BTC", tr.SourceAsset)
	assert.Equal(t, domain.AccountKindBasic, tr.FromAccountKind)
	assert.Equal(t, f.basic.ID, tr.FromAccountID)
	assert.Equal(t, domain.AccountKindTrading, tr.ToAccountKind)
	assert.Equal(t, f.trading.ID, tr.ToAccountID)
	assert.Equal(t, "evt-1", tr.ExternalRef)
}

func TestProcessTransfers_WithdrawalReversesDirection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx)

	f.broker.On("FetchWithdrawals", ctx, mock.AnythingOfType("domain.TransferQuery")).
		Return([]domain.TransferEvent{depositEvent("evt-2", "0.5")}, nil)

	var batch []*domain.Transfer
	f.xferRepo.On("CreateBatch", ctx, mock.AnythingOfType("[]*domain.Transfer")).
		Run(func(args mock.Arguments) { batch = args.Get(1).([]*domain.Transfer) }).
		Return(1, nil)

	_, err := f.processor().ProcessTransfers(ctx, f.sc, testWindow(), domain.TransferDirectionWithdrawal)

	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, domain.AccountKindTrading, batch[0].FromAccountKind)
	assert.Equal(t, domain.AccountKindBasic, batch[0].ToAccountKind)
}

func TestProcessTransfers_ConversionFailureKeepsOriginalAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx)

	event := depositEvent("evt-3", "1000")
	event.Asset = "UNKNOWN_COIN"
	f.broker.On("FetchDeposits", ctx, mock.AnythingOfType("domain.TransferQuery")).
		Return([]domain.TransferEvent{event}, nil)

	var batch []*domain.Transfer
	f.xferRepo.On("CreateBatch", ctx, mock.AnythingOfType("[]*domain.Transfer")).
		Run(func(args mock.Arguments) { batch = args.Get(1).([]*domain.Transfer) }).
		Return(1, nil)

	p := f.processor()
	p.FX = stubConverter{ok: false}

	count, err := p.ProcessTransfers(ctx, f.sc, testWindow(), domain.TransferDirectionDeposit)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, batch, 1)
	assert.True(t, decimal.NewFromInt(1000).Equal(batch[0].Amount))
	assert.False(t, batch[0].Converted)
	assert.Equal(t, "USD", batch[0].Currency)
	assert.Equal(t, "UNKNOWN_COIN", batch[0].SourceAsset)
}

func TestProcessTransfers_NoEligibleAccountsProcessesZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx)

	f.trRepo.ExpectedCalls = nil
	f.trRepo.On("FindByShareClass", ctx, f.sc.ID, true).Return([]*domain.TradingAccount{}, nil)

	count, err := f.processor().ProcessTransfers(ctx, f.sc, testWindow())

	require.NoError(t, err)
	assert.Zero(t, count)
	f.broker.AssertNotCalled(t, "FetchDeposits", mock.Anything, mock.Anything)
	f.xferRepo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestProcessTransfers_FetchFailureYieldsZeroEventsForPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx)

	f.broker.On("FetchDeposits", ctx, mock.AnythingOfType("domain.TransferQuery")).
		Return(nil, errors.New("rate limited"))
	f.broker.On("FetchWithdrawals", ctx, mock.AnythingOfType("domain.TransferQuery")).
		Return([]domain.TransferEvent{depositEvent("evt-4", "2")}, nil)

	f.xferRepo.On("CreateBatch", ctx, mock.AnythingOfType("[]*domain.Transfer")).Return(1, nil)

	count, err := f.processor().ProcessTransfers(ctx, f.sc, testWindow())

	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessTransfers_MissingBasicAccountDropsEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx)

	f.baRepo.ExpectedCalls = nil
	f.baRepo.On("FindByShareClass", ctx, f.sc.ID).Return(nil, domain.ErrNotFound)

	count, err := f.processor().ProcessTransfers(ctx, f.sc, testWindow(), domain.TransferDirectionDeposit)

	require.NoError(t, err)
	assert.Zero(t, count)
	f.xferRepo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestProcessTransfers_EventWithoutIDExcludedFromBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx)

	bad := depositEvent("", "1")
	good := depositEvent("evt-5", "1")
	f.broker.On("FetchDeposits", ctx, mock.AnythingOfType("domain.TransferQuery")).
		Return([]domain.TransferEvent{bad, good}, nil)

	var batch []*domain.Transfer
	f.xferRepo.On("CreateBatch", ctx, mock.AnythingOfType("[]*domain.Transfer")).
		Run(func(args mock.Arguments) { batch = args.Get(1).([]*domain.Transfer) }).
		Return(1, nil)

	_, err := f.processor().ProcessTransfers(ctx, f.sc, testWindow(), domain.TransferDirectionDeposit)

	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "evt-5", batch[0].ExternalRef)
}

func TestProcessAll_FailedTenantYieldsZeroCountAndOthersContinue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx)

	broken := &domain.ShareClass{ID: uuid.New(), Name: "BROKEN-GBP", Currency: "GBP", ClientID: "x", ClientSecret: "y"}

	scRepo := new(MockShareClassRepository)
	scRepo.On("FindWithCredentials", ctx).Return([]*domain.ShareClass{broken, f.sc}, nil)

	// Broken share class fails at account lookup inside its transaction.
	f.trRepo.On("FindByShareClass", ctx, broken.ID, true).Return(nil, errors.New("relation missing"))

	f.broker.On("FetchDeposits", ctx, mock.AnythingOfType("domain.TransferQuery")).
		Return([]domain.TransferEvent{depositEvent("evt-6", "1")}, nil)
	f.xferRepo.On("CreateBatch", ctx, mock.AnythingOfType("[]*domain.Transfer")).Return(1, nil)

	p := f.processor()
	p.ShareClassRepo = scRepo

	results := p.ProcessAll(ctx, testWindow(), domain.TransferDirectionDeposit)

	require.Len(t, results, 2)
	assert.Equal(t, "BROKEN-GBP", results[0].ShareClass)
	assert.Error(t, results[0].Err)
	assert.Zero(t, results[0].Transfers)
	assert.Equal(t, "ALPHA-USD", results[1].ShareClass)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 1, results[1].Transfers)
}
