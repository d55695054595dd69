package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fundops/backoffice/internal/domain"
	"github.com/fundops/backoffice/internal/usecase/scheduler"
)

type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) TriggerSync(ctx context.Context, syncType scheduler.SyncType) (*scheduler.RunResult, error) {
	args := m.Called(ctx, syncType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.RunResult), args.Error(1)
}

func (m *MockOrchestrator) GetStatus(syncType scheduler.SyncType) (scheduler.Status, error) {
	args := m.Called(syncType)
	return args.Get(0).(scheduler.Status), args.Error(1)
}

func (m *MockOrchestrator) GetSchedule(syncType scheduler.SyncType) (scheduler.ScheduleInfo, error) {
	args := m.Called(syncType)
	return args.Get(0).(scheduler.ScheduleInfo), args.Error(1)
}

func (m *MockOrchestrator) UpdateSchedule(syncType scheduler.SyncType, spec string, enabled bool) error {
	args := m.Called(syncType, spec, enabled)
	return args.Error(0)
}

func newTestRouter(orchestrator *MockOrchestrator) *http.ServeMux {
	return NewRouter(NewSyncController(orchestrator))
}

func TestTriggerSync_ReturnsRunResult(t *testing.T) {
	orchestrator := new(MockOrchestrator)
	orchestrator.On("TriggerSync", mock.Anything, scheduler.SyncAccounts).Return(&scheduler.RunResult{
		Type:      scheduler.SyncAccounts,
		StartedAt: time.Date(2024, time.March, 15, 2, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Total:     7,
		Tenants: []scheduler.TenantSummary{
			{ShareClass: "ALPHA-USD", Count: 7},
		},
	}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/sync/accounts/trigger", nil)
	newTestRouter(orchestrator).ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var body runResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "accounts", body.Type)
	assert.Equal(t, 7, body.Total)
	assert.Equal(t, int64(1500), body.DurationMS)
	require.Len(t, body.Tenants, 1)
	assert.Equal(t, "ALPHA-USD", body.Tenants[0].ShareClass)
}

func TestTriggerSync_ConflictWhileRunning(t *testing.T) {
	orchestrator := new(MockOrchestrator)
	orchestrator.On("TriggerSync", mock.Anything, scheduler.SyncRates).Return(nil, domain.ErrAlreadyRunning)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/sync/rates/trigger", nil)
	newTestRouter(orchestrator).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestTriggerSync_UnknownTypeRejected(t *testing.T) {
	orchestrator := new(MockOrchestrator)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/sync/positions/trigger", nil)
	newTestRouter(orchestrator).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	orchestrator.AssertNotCalled(t, "TriggerSync")
}

func TestGetStatus_IncludesLastResult(t *testing.T) {
	lastRun := time.Date(2024, time.March, 15, 2, 30, 0, 0, time.UTC)
	orchestrator := new(MockOrchestrator)
	orchestrator.On("GetStatus", scheduler.SyncTransfers).Return(scheduler.Status{
		Running: false,
		LastRun: lastRun,
		LastResult: &scheduler.RunResult{
			Type:  scheduler.SyncTransfers,
			Total: 12,
		},
		Schedule: scheduler.ScheduleInfo{Enabled: true, Cron: "30 2 * * *"},
	}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/sync/transfers/status", nil)
	newTestRouter(orchestrator).ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.False(t, body.Running)
	require.NotNil(t, body.LastResult)
	assert.Equal(t, 12, body.LastResult.Total)
	assert.Equal(t, "30 2 * * *", body.Schedule.Cron)
}

func TestUpdateSchedule_ValidatesAndReturnsNewSchedule(t *testing.T) {
	orchestrator := new(MockOrchestrator)
	orchestrator.On("UpdateSchedule", scheduler.SyncRates, "15 1 * * *", true).Return(nil)
	orchestrator.On("GetSchedule", scheduler.SyncRates).Return(scheduler.ScheduleInfo{
		Enabled: true,
		Cron:    "15 1 * * *",
	}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPut, "/sync/rates/schedule",
		strings.NewReader(`{"cron":"15 1 * * *","enabled":true}`))
	newTestRouter(orchestrator).ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var body scheduleResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "15 1 * * *", body.Cron)
	assert.True(t, body.Enabled)
}

func TestUpdateSchedule_MissingCronRejected(t *testing.T) {
	orchestrator := new(MockOrchestrator)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPut, "/sync/rates/schedule",
		strings.NewReader(`{"enabled":true}`))
	newTestRouter(orchestrator).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	orchestrator.AssertNotCalled(t, "UpdateSchedule")
}

func TestHealthz(t *testing.T) {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestRouter(nil).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())
}
