package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/domain"
	"github.com/shreyank06/data-engineering-project/internal/scorer"
)

// MockScorerClient is a mock implementation of scorer.Client
type MockScorerClient struct {
	mock.Mock
}

func (m *MockScorerClient) Score(ctx context.Context, journeys []domain.Journey) ([]domain.AttributionCredit, error) {
	args := m.Called(ctx, journeys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AttributionCredit), args.Error(1)
}

func testConfig() DispatcherConfig {
	return DispatcherConfig{
		Concurrency:    2,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}
}

func creditsFor(journeys []domain.Journey) []domain.AttributionCredit {
	var credits []domain.AttributionCredit
	for _, j := range journeys {
		for _, tp := range j.Touchpoints {
			credits = append(credits, domain.AttributionCredit{
				ConvID:    j.ConvID,
				SessionID: tp.SessionID,
				IHC:       1.0 / float64(len(j.Touchpoints)),
			})
		}
	}
	return credits
}

func TestDispatch_AllBatchesSucceed(t *testing.T) {
	client := new(MockScorerClient)
	d := NewDispatcher(client, testConfig(), zap.NewNop())

	batches, _ := Partition(makeJourneys(4, 2), Caps{MaxJourneysPerBatch: 2, MaxSessionsPerBatch: 100})
	require.Len(t, batches, 2)

	client.On("Score", mock.Anything, mock.Anything).Return(
		creditsFor(batches[0].Journeys), nil).Once()
	client.On("Score", mock.Anything, mock.Anything).Return(
		creditsFor(batches[1].Journeys), nil).Once()

	result := d.Dispatch(context.Background(), batches)

	assert.Equal(t, 2, result.BatchesDispatched)
	assert.Zero(t, result.BatchesFailed)
	assert.Empty(t, result.FailedConvIDs)
	assert.Len(t, result.Credits, 8)
	client.AssertExpectations(t)
}

func TestDispatch_TransientFailureIsRetried(t *testing.T) {
	client := new(MockScorerClient)
	d := NewDispatcher(client, testConfig(), zap.NewNop())

	batches, _ := Partition(makeJourneys(1, 2), Caps{MaxJourneysPerBatch: 10, MaxSessionsPerBatch: 100})

	client.On("Score", mock.Anything, mock.Anything).Return(
		nil, fmt.Errorf("%w: connection reset", scorer.ErrTransient)).Twice()
	client.On("Score", mock.Anything, mock.Anything).Return(
		creditsFor(batches[0].Journeys), nil).Once()

	result := d.Dispatch(context.Background(), batches)

	assert.Zero(t, result.BatchesFailed)
	assert.Len(t, result.Credits, 2)
	client.AssertExpectations(t)
}

func TestDispatch_RetryExhaustionFailsOnlyThatBatch(t *testing.T) {
	client := new(MockScorerClient)
	d := NewDispatcher(client, DispatcherConfig{
		Concurrency:    1,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	}, zap.NewNop())

	batches, _ := Partition(makeJourneys(2, 2), Caps{MaxJourneysPerBatch: 1, MaxSessionsPerBatch: 100})
	require.Len(t, batches, 2)

	// First batch always fails transiently, second succeeds.
	client.On("Score", mock.Anything, mock.MatchedBy(func(journeys []domain.Journey) bool {
		return journeys[0].ConvID == "c000"
	})).Return(nil, fmt.Errorf("%w: 503", scorer.ErrTransient))
	client.On("Score", mock.Anything, mock.MatchedBy(func(journeys []domain.Journey) bool {
		return journeys[0].ConvID == "c001"
	})).Return(creditsFor(batches[1].Journeys), nil)

	result := d.Dispatch(context.Background(), batches)

	assert.Equal(t, 1, result.BatchesFailed)
	assert.Equal(t, []string{"c000"}, result.FailedConvIDs)
	assert.Len(t, result.Credits, 2)
	client.AssertNumberOfCalls(t, "Score", 3) // 2 attempts + 1 success
}

func TestDispatch_PermanentErrorIsNotRetried(t *testing.T) {
	client := new(MockScorerClient)
	d := NewDispatcher(client, testConfig(), zap.NewNop())

	batches, _ := Partition(makeJourneys(1, 1), Caps{MaxJourneysPerBatch: 10, MaxSessionsPerBatch: 100})

	client.On("Score", mock.Anything, mock.Anything).Return(
		nil, errors.New("scorer rejected request: status 400"))

	result := d.Dispatch(context.Background(), batches)

	assert.Equal(t, 1, result.BatchesFailed)
	assert.Equal(t, []string{"c000"}, result.FailedConvIDs)
	client.AssertNumberOfCalls(t, "Score", 1)
}

func TestDispatch_CancellationAbandonsQueuedBatches(t *testing.T) {
	client := new(MockScorerClient)
	d := NewDispatcher(client, DispatcherConfig{
		Concurrency:    1,
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
	}, zap.NewNop())

	batches, _ := Partition(makeJourneys(5, 1), Caps{MaxJourneysPerBatch: 1, MaxSessionsPerBatch: 100})
	require.Len(t, batches, 5)

	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	client.On("Score", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		if atomic.AddInt32(&calls, 1) == 1 {
			cancel()
		}
	}).Return(nil, fmt.Errorf("%w: rate limited", scorer.ErrTransient))

	result := d.Dispatch(ctx, batches)

	// Every conversion is accounted for exactly once: cancellation reports
	// abandoned batches the same way as retry-exhausted ones.
	assert.Equal(t, 5, result.BatchesDispatched)
	assert.Len(t, result.FailedConvIDs, 5)
	assert.Empty(t, result.Credits)
}
