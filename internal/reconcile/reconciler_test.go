package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/domain"
)

// MockEventStore is a mock implementation of repository.EventStore
type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) ReadConversions(ctx context.Context) ([]domain.Conversion, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Conversion), args.Error(1)
}

func (m *MockEventStore) ReadSessions(ctx context.Context) ([]domain.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *MockEventStore) ReadCosts(ctx context.Context) ([]domain.SessionCost, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SessionCost), args.Error(1)
}

func (m *MockEventStore) ReadCredit(ctx context.Context) ([]domain.AttributionCredit, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AttributionCredit), args.Error(1)
}

func (m *MockEventStore) UpsertCredit(ctx context.Context, credits []domain.AttributionCredit) (int, error) {
	args := m.Called(ctx, credits)
	return args.Int(0), args.Error(1)
}

func (m *MockEventStore) CreditSums(ctx context.Context) (map[string]float64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *MockEventStore) ReplaceChannelReport(ctx context.Context, rows []domain.ChannelReportRow, window *domain.DateWindow) error {
	args := m.Called(ctx, rows, window)
	return args.Error(0)
}

func (m *MockEventStore) ReadChannelReport(ctx context.Context, window *domain.DateWindow) ([]domain.ChannelReportRow, error) {
	args := m.Called(ctx, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChannelReportRow), args.Error(1)
}

func (m *MockEventStore) Migrate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockEventStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func submittedJourneys() []domain.Journey {
	ts := time.Date(2023, 9, 8, 9, 0, 0, 0, time.UTC)
	return []domain.Journey{
		{ConvID: "c1", Touchpoints: []domain.Touchpoint{
			{SessionID: "s1", Timestamp: ts},
			{SessionID: "s2", Timestamp: ts.Add(time.Hour)},
		}},
		{ConvID: "c2", Touchpoints: []domain.Touchpoint{
			{SessionID: "s3", Timestamp: ts},
		}},
	}
}

func TestReconcile_PersistsValidCreditsGroupedByConversion(t *testing.T) {
	store := new(MockEventStore)
	r := NewReconciler(store, ReconcilerConfig{Concurrency: 2}, zap.NewNop())

	credits := []domain.AttributionCredit{
		{ConvID: "c1", SessionID: "s1", IHC: 0.4},
		{ConvID: "c1", SessionID: "s2", IHC: 0.6},
		{ConvID: "c2", SessionID: "s3", IHC: 1.0},
	}

	store.On("UpsertCredit", mock.Anything, mock.MatchedBy(func(rows []domain.AttributionCredit) bool {
		return len(rows) > 0 && rows[0].ConvID == "c1"
	})).Return(2, nil).Once()
	store.On("UpsertCredit", mock.Anything, mock.MatchedBy(func(rows []domain.AttributionCredit) bool {
		return len(rows) > 0 && rows[0].ConvID == "c2"
	})).Return(1, nil).Once()
	store.On("CreditSums", mock.Anything).Return(map[string]float64{"c1": 1.0, "c2": 1.0}, nil)

	outcome, err := r.Reconcile(context.Background(), credits, IndexJourneys(submittedJourneys()))

	require.NoError(t, err)
	assert.Equal(t, 3, outcome.PersistedCount)
	assert.Empty(t, outcome.RowErrors)
	assert.Empty(t, outcome.Violations)
	store.AssertExpectations(t)
}

func TestReconcile_RejectsCreditOutsideRange(t *testing.T) {
	store := new(MockEventStore)
	r := NewReconciler(store, ReconcilerConfig{Concurrency: 1}, zap.NewNop())

	credits := []domain.AttributionCredit{
		{ConvID: "c1", SessionID: "s1", IHC: 1.2},
		{ConvID: "c1", SessionID: "s2", IHC: -0.1},
		{ConvID: "c2", SessionID: "s3", IHC: 1.0},
	}

	store.On("UpsertCredit", mock.Anything, mock.Anything).Return(1, nil).Once()
	store.On("CreditSums", mock.Anything).Return(map[string]float64{"c2": 1.0}, nil)

	outcome, err := r.Reconcile(context.Background(), credits, IndexJourneys(submittedJourneys()))

	require.NoError(t, err)
	assert.Equal(t, 1, outcome.PersistedCount)
	require.Len(t, outcome.RowErrors, 2)
	assert.Equal(t, "s1", outcome.RowErrors[0].SessionID)
	assert.Equal(t, "s2", outcome.RowErrors[1].SessionID)
}

func TestReconcile_RejectsEchoedRowsForUnsubmittedSessions(t *testing.T) {
	store := new(MockEventStore)
	r := NewReconciler(store, ReconcilerConfig{Concurrency: 1}, zap.NewNop())

	credits := []domain.AttributionCredit{
		{ConvID: "c1", SessionID: "s-unknown", IHC: 0.5},
		{ConvID: "c-unknown", SessionID: "s1", IHC: 0.5},
		{ConvID: "c2", SessionID: "s3", IHC: 1.0},
	}

	store.On("UpsertCredit", mock.Anything, mock.Anything).Return(1, nil).Once()
	store.On("CreditSums", mock.Anything).Return(map[string]float64{"c2": 1.0}, nil)

	outcome, err := r.Reconcile(context.Background(), credits, IndexJourneys(submittedJourneys()))

	require.NoError(t, err)
	assert.Equal(t, 1, outcome.PersistedCount)
	assert.Len(t, outcome.RowErrors, 2)
}

func TestReconcile_ReportsSumViolationsWithoutFailing(t *testing.T) {
	store := new(MockEventStore)
	r := NewReconciler(store, ReconcilerConfig{Concurrency: 1}, zap.NewNop())

	credits := []domain.AttributionCredit{
		{ConvID: "c1", SessionID: "s1", IHC: 0.4},
		{ConvID: "c1", SessionID: "s2", IHC: 0.4},
	}

	store.On("UpsertCredit", mock.Anything, mock.Anything).Return(2, nil).Once()
	store.On("CreditSums", mock.Anything).Return(map[string]float64{"c1": 0.8}, nil)

	outcome, err := r.Reconcile(context.Background(), credits, IndexJourneys(submittedJourneys()))

	require.NoError(t, err)
	assert.Equal(t, 2, outcome.PersistedCount)
	require.Len(t, outcome.Violations, 1)
	assert.Equal(t, "c1", outcome.Violations[0].ConvID)
	assert.InDelta(t, 0.8, outcome.Violations[0].Sum, 1e-9)
}

func TestReconcile_SumWithinToleranceIsNotViolation(t *testing.T) {
	store := new(MockEventStore)
	r := NewReconciler(store, ReconcilerConfig{Concurrency: 1}, zap.NewNop())

	store.On("UpsertCredit", mock.Anything, mock.Anything).Return(1, nil).Once()
	store.On("CreditSums", mock.Anything).Return(map[string]float64{"c2": 1.0000000001}, nil)

	outcome, err := r.Reconcile(context.Background(),
		[]domain.AttributionCredit{{ConvID: "c2", SessionID: "s3", IHC: 1.0}},
		IndexJourneys(submittedJourneys()))

	require.NoError(t, err)
	assert.Empty(t, outcome.Violations)
}

func TestReconcile_StoreErrorIsReturned(t *testing.T) {
	store := new(MockEventStore)
	r := NewReconciler(store, ReconcilerConfig{Concurrency: 1}, zap.NewNop())

	store.On("UpsertCredit", mock.Anything, mock.Anything).Return(0, errors.New("disk full"))

	_, err := r.Reconcile(context.Background(),
		[]domain.AttributionCredit{{ConvID: "c2", SessionID: "s3", IHC: 1.0}},
		IndexJourneys(submittedJourneys()))

	require.Error(t, err)
}

func TestReconcile_SerializesWritesPerConversion(t *testing.T) {
	store := new(MockEventStore)
	r := NewReconciler(store, ReconcilerConfig{Concurrency: 4}, zap.NewNop())

	// Many conversions hammering the same store; the mock records call
	// groups so we can verify each conversion arrives as one write.
	var (
		mu    sync.Mutex
		convs []string
	)
	store.On("UpsertCredit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		rows := args.Get(1).([]domain.AttributionCredit)
		mu.Lock()
		convs = append(convs, rows[0].ConvID)
		mu.Unlock()
	}).Return(1, nil)
	store.On("CreditSums", mock.Anything).Return(map[string]float64{}, nil)

	journeys := []domain.Journey{}
	credits := []domain.AttributionCredit{}
	for _, convID := range []string{"a", "b", "c", "d", "e", "f"} {
		journeys = append(journeys, domain.Journey{ConvID: convID, Touchpoints: []domain.Touchpoint{{SessionID: convID + "-s"}}})
		credits = append(credits, domain.AttributionCredit{ConvID: convID, SessionID: convID + "-s", IHC: 1})
	}

	outcome, err := r.Reconcile(context.Background(), credits, IndexJourneys(journeys))

	require.NoError(t, err)
	assert.Equal(t, 6, outcome.PersistedCount)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f"}, convs)
}
